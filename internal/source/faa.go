package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"airtrack-mcp/internal/record"
)

// ErrNoTail means the aircraft's registration is not yet known, so the FAA
// registry cannot be queried. The orchestrator treats it like any other
// transient failure; a later lookup retries once the live feed has
// reported the registration.
var ErrNoTail = errors.New("faa: registration not yet known for aircraft")

// FAAClient scrapes the FAA aircraft registry N-Number inquiry page. The
// registry has no JSON API; results come back as HTML tables
// (class devkit-table) of label/value cells.
type FAAClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewFAAClient returns a client for the given base URL (e.g.
// "https://registry.faa.gov").
func NewFAAClient(baseURL string) *FAAClient {
	return &FAAClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Source implements Client.
func (c *FAAClient) Source() record.Source { return record.SourceFAA }

// Fetch implements Client. The registry is keyed by N-Number; the leading
// "N" is stripped for the query. A "No aircraft found" page is confirmed
// missing.
func (c *FAAClient) Fetch(ctx context.Context, id record.Identifier) (record.Partial, error) {
	if id.Tail == "" {
		return record.Partial{}, fmt.Errorf("%w (icao %s)", ErrNoTail, id.ICAO)
	}
	nNumber := strings.TrimPrefix(strings.ToUpper(id.Tail), "N")

	u := c.BaseURL + "/AircraftInquiry/Search/NNumberResult?nNumberTxt=" + url.QueryEscape(nNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return record.Partial{}, err
	}
	// The registry rejects non-browser requests.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return record.Partial{}, fmt.Errorf("faa request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return record.Partial{}, fmt.Errorf("faa: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return record.Partial{}, fmt.Errorf("faa parse: %w", err)
	}
	return parseRegistryPage(doc, id.Tail)
}

// parseRegistryPage extracts the label/value pairs from the inquiry result
// tables. Rows hold either one pair (two cells) or two pairs (four cells).
func parseRegistryPage(doc *goquery.Document, tail string) (record.Partial, error) {
	if strings.Contains(doc.Text(), "No aircraft found") {
		return record.Partial{}, fmt.Errorf("faa %s: %w", tail, ErrNotFound)
	}

	fields := make(map[string]string)
	doc.Find("table.devkit-table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		switch cells.Length() {
		case 2:
			addField(fields, cells.Eq(0).Text(), cells.Eq(1).Text())
		case 4:
			addField(fields, cells.Eq(0).Text(), cells.Eq(1).Text())
			addField(fields, cells.Eq(2).Text(), cells.Eq(3).Text())
		}
	})
	if len(fields) == 0 {
		return record.Partial{}, fmt.Errorf("faa %s: no data tables in response", tail)
	}

	p := record.Partial{Source: record.SourceFAA}
	setString(&p.Owner, fields, "name", "registered_owner")
	setString(&p.Manufacturer, fields, "manufacturer_name", "manufacturer")
	setString(&p.Model, fields, "model_designation", "model")
	setString(&p.SerialNumber, fields, "serial_number")
	setString(&p.YearMfr, fields, "year_manufactured", "mfr_year")
	return p, nil
}

// addField normalizes a label ("Serial Number:" -> "serial_number") and
// stores a non-empty value.
func addField(fields map[string]string, label, value string) {
	label = strings.TrimSpace(label)
	label = strings.TrimSuffix(label, ":")
	label = strings.ToLower(strings.ReplaceAll(label, " ", "_"))
	value = strings.TrimSpace(value)
	if label == "" || value == "" || value == "None" {
		return
	}
	fields[label] = value
}

// setString assigns the first present key's value to dst.
func setString(dst **string, fields map[string]string, keys ...string) {
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			*dst = &v
			return
		}
	}
}

var _ Client = (*FAAClient)(nil)
