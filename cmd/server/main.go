// Package main runs the airtrack-mcp server: an MCP server that exposes
// adsb.lol live aircraft data, FAA registration lookups, and OpenSky
// flight history to agents, with a local SQLite cache in front of the
// remote APIs.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"airtrack-mcp/internal/cache"
	"airtrack-mcp/internal/config"
	"airtrack-mcp/internal/logging"
	"airtrack-mcp/internal/lookup"
	"airtrack-mcp/internal/record"
	"airtrack-mcp/internal/server"
	"airtrack-mcp/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store := cache.Open(cfg.CachePath, logger)
	defer store.Close()

	user, pass := cfg.OpenSkyCredentials()
	adsb := source.NewADSBClient(cfg.ADSBBaseURL)
	faa := source.NewFAAClient(cfg.FAABaseURL)
	osky := source.NewOpenSkyClient(cfg.OpenSkyBaseURL, user, pass, cfg.TTL[record.SourceOpenSky])

	orch := lookup.New(store,
		[]source.Client{adsb, faa, osky},
		lookup.Policy{TTL: cfg.TTL, MissingCooldown: cfg.MissingCooldown},
		cfg.FetchTimeout, logger)
	orch.EvictExpired(ctx, cfg.Retention)

	srv := server.New(server.Deps{Lookup: orch, ADSB: adsb, OpenSky: osky})
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && context.Cause(ctx) != context.Canceled {
		logger.Fatalw("server exited", "error", err)
	}
}
