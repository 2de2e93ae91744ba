// Package config loads server configuration from an optional YAML file and
// environment variables. OpenSky credentials are stored but never logged or
// exposed in tool responses.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"airtrack-mcp/internal/record"
)

// Env var names. If set, they override values from the config file.
const (
	EnvCachePath       = "AIRTRACK_CACHE_PATH"
	EnvOpenSkyUsername = "AIRTRACK_OPENSKY_USERNAME"
	EnvOpenSkyPassword = "AIRTRACK_OPENSKY_PASSWORD"
	EnvDebug           = "AIRTRACK_DEBUG"
)

// Config file path: ~/.airtrack-mcp/config.yaml
const (
	DefaultConfigDir = ".airtrack-mcp"
	ConfigFileName   = "config.yaml"
	CacheFileName    = "cache.db"
)

// Default staleness thresholds per source. Live position data ages out in
// seconds, registry data in days, history in an hour (matching the remote
// APIs' own update cadence). All are overridable in the config file.
const (
	DefaultTTLADSB    = 30 * time.Second
	DefaultTTLFAA     = 7 * 24 * time.Hour
	DefaultTTLOpenSky = time.Hour

	// DefaultMissingCooldown is how long a confirmed-missing result is
	// trusted before the source is asked again.
	DefaultMissingCooldown = 6 * time.Hour

	// DefaultFetchTimeout bounds each remote fetch.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultRetention is the age past which cache entries are evicted.
	DefaultRetention = 30 * 24 * time.Hour
)

// Config holds the loaded configuration.
type Config struct {
	CachePath       string
	Retention       time.Duration
	FetchTimeout    time.Duration
	MissingCooldown time.Duration
	TTL             map[record.Source]time.Duration

	ADSBBaseURL    string
	FAABaseURL     string
	OpenSkyBaseURL string

	openSkyUsername string
	openSkyPassword string

	Debug bool
}

// OpenSkyCredentials returns the configured OpenSky username and password.
// For use only by the OpenSky client; never log the result.
func (c *Config) OpenSkyCredentials() (username, password string) {
	return c.openSkyUsername, c.openSkyPassword
}

// fileFormat is the YAML schema of ~/.airtrack-mcp/config.yaml.
type fileFormat struct {
	Cache struct {
		Path      string `yaml:"path"`
		Retention string `yaml:"retention"`
	} `yaml:"cache"`
	TTL struct {
		ADSBLol string `yaml:"adsblol"`
		FAA     string `yaml:"faa"`
		OpenSky string `yaml:"opensky"`
	} `yaml:"ttl"`
	MissingCooldown string `yaml:"missing_cooldown"`
	FetchTimeout    string `yaml:"fetch_timeout"`
	ADSBLol         struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"adsblol"`
	FAA struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"faa"`
	OpenSky struct {
		BaseURL  string `yaml:"base_url"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"opensky"`
	Debug bool `yaml:"debug"`
}

// Load reads configuration from ~/.airtrack-mcp/config.yaml if present,
// then applies env var overrides. Missing file and missing values fall
// back to defaults; the server runs with no configuration at all.
func Load() (*Config, error) {
	c := defaults()

	path, err := configFilePath()
	if err != nil {
		return nil, fmt.Errorf("config path: %w", err)
	}
	if path != "" {
		if err := c.loadFile(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvCachePath); v != "" {
		c.CachePath = v
	}
	if v := os.Getenv(EnvOpenSkyUsername); v != "" {
		c.openSkyUsername = v
	}
	if v := os.Getenv(EnvOpenSkyPassword); v != "" {
		c.openSkyPassword = v
	}
	if v := os.Getenv(EnvDebug); v == "1" || v == "true" {
		c.Debug = true
	}
	return c, nil
}

func defaults() *Config {
	cachePath := ""
	if home, err := os.UserHomeDir(); err == nil {
		cachePath = filepath.Join(home, DefaultConfigDir, CacheFileName)
	}
	return &Config{
		CachePath:       cachePath,
		Retention:       DefaultRetention,
		FetchTimeout:    DefaultFetchTimeout,
		MissingCooldown: DefaultMissingCooldown,
		TTL: map[record.Source]time.Duration{
			record.SourceADSB:    DefaultTTLADSB,
			record.SourceFAA:     DefaultTTLFAA,
			record.SourceOpenSky: DefaultTTLOpenSky,
		},
		ADSBBaseURL:    "https://api.adsb.lol",
		FAABaseURL:     "https://registry.faa.gov",
		OpenSkyBaseURL: "https://opensky-network.org/api",
	}
}

func configFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	p := filepath.Join(home, DefaultConfigDir, ConfigFileName)
	_, err = os.Stat(p)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return p, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}

	if f.Cache.Path != "" {
		c.CachePath = f.Cache.Path
	}
	if err := setDuration(&c.Retention, f.Cache.Retention, "cache.retention"); err != nil {
		return err
	}
	if err := setDuration(&c.MissingCooldown, f.MissingCooldown, "missing_cooldown"); err != nil {
		return err
	}
	if err := setDuration(&c.FetchTimeout, f.FetchTimeout, "fetch_timeout"); err != nil {
		return err
	}
	ttls := map[record.Source]string{
		record.SourceADSB:    f.TTL.ADSBLol,
		record.SourceFAA:     f.TTL.FAA,
		record.SourceOpenSky: f.TTL.OpenSky,
	}
	for src, raw := range ttls {
		d := c.TTL[src]
		if err := setDuration(&d, raw, "ttl."+string(src)); err != nil {
			return err
		}
		c.TTL[src] = d
	}
	if f.ADSBLol.BaseURL != "" {
		c.ADSBBaseURL = f.ADSBLol.BaseURL
	}
	if f.FAA.BaseURL != "" {
		c.FAABaseURL = f.FAA.BaseURL
	}
	if f.OpenSky.BaseURL != "" {
		c.OpenSkyBaseURL = f.OpenSky.BaseURL
	}
	if f.OpenSky.Username != "" {
		c.openSkyUsername = f.OpenSky.Username
	}
	if f.OpenSky.Password != "" {
		c.openSkyPassword = f.OpenSky.Password
	}
	if f.Debug {
		c.Debug = true
	}
	return nil
}

// setDuration parses raw into dst if raw is non-empty. Durations use Go
// syntax ("30s", "168h").
func setDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s: must be positive, got %s", field, d)
	}
	*dst = d
	return nil
}
