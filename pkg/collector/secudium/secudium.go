// Package secudium implements the SECUDIUM source collector: form-based
// login with a forced session expiry flag, single-page fetch, and a
// disable-capable no-op mode.
package secudium

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/jclee94/blacklist/internal/vault"
	"github.com/jclee94/blacklist/pkg/collector"
	"github.com/jclee94/blacklist/pkg/ipstore"
)

const requestTimeout = 30 * time.Second

// Collector implements collector.Collector for SECUDIUM.
type Collector struct {
	baseURL    string
	enabled    bool
	httpClient *http.Client
	vault      *vault.Vault
	logger     *slog.Logger
}

// New creates a SECUDIUM collector. enabled mirrors config's
// SECUDIUM_ENABLED; when false, Run short-circuits to a disabled no-op
// rather than attempting to authenticate.
func New(baseURL string, enabled bool, v *vault.Vault, logger *slog.Logger) *Collector {
	return &Collector{
		baseURL:    baseURL,
		enabled:    enabled,
		httpClient: &http.Client{Timeout: requestTimeout},
		vault:      v,
		logger:     logger,
	}
}

// Source implements collector.Collector.
func (c *Collector) Source() ipstore.Source { return ipstore.SourceSecudium }

// Run authenticates with a forced session expiry, fetches the blacklist
// export, and parses it. When the collector is disabled it returns a
// StatusDisabled-flavored RunStats without making any network call, which
// the Scheduler records as a no-op run rather than a failure.
func (c *Collector) Run(ctx context.Context, window collector.DateRange) (collector.Batch, collector.RunStats, error) {
	if !c.enabled {
		return collector.Batch{Source: ipstore.SourceSecudium}, collector.RunStats{Disabled: true}, nil
	}

	if err := c.vault.Probe(ctx, ipstore.SourceSecudium); err != nil {
		return collector.Batch{}, collector.RunStats{ErrorKind: collector.ErrorAuthFailed, ErrorDetail: err.Error()}, err
	}

	cookie, err := c.authenticate(ctx)
	if err != nil {
		_ = c.vault.Record(ctx, vault.AuthAttempt{Source: ipstore.SourceSecudium, Succeeded: false, At: time.Now()})
		return collector.Batch{}, collector.RunStats{ErrorKind: collector.ErrorAuthFailed, ErrorDetail: err.Error()}, err
	}
	_ = c.vault.Record(ctx, vault.AuthAttempt{Source: ipstore.SourceSecudium, Succeeded: true, At: time.Now()})

	page, err := collector.Fetch(ctx, func() ([]byte, error) {
		return c.fetchExport(ctx, cookie, window)
	})
	if err != nil {
		return collector.Batch{}, collector.RunStats{ErrorKind: collector.ErrorSourceUnavailable, ErrorDetail: err.Error()}, err
	}

	candidates, err := parseExport(page, window.EndDate)
	if err != nil {
		return collector.Batch{}, collector.RunStats{ErrorKind: collector.ErrorParseError, ErrorDetail: err.Error()}, err
	}

	return collector.Batch{Source: ipstore.SourceSecudium, Candidates: candidates}, collector.RunStats{PagesOK: 1}, nil
}

// authenticate posts the form login with force_expire=1, which asks
// SECUDIUM to invalidate any other live session under the same account
// instead of rejecting this login outright.
func (c *Collector) authenticate(ctx context.Context) (*http.Cookie, error) {
	cred, err := c.vault.Get(c.Source())
	if err != nil {
		return nil, fmt.Errorf("loading SECUDIUM credential: %w", err)
	}

	form := url.Values{
		"username":     {cred.Username},
		"password":     {cred.Secret},
		"force_expire": {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling SECUDIUM login: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SECUDIUM login returned HTTP %d", resp.StatusCode)
	}

	for _, ck := range resp.Cookies() {
		if ck.Name == "SECUSESSID" {
			return ck, nil
		}
	}
	return nil, fmt.Errorf("SECUDIUM login response carried no session cookie")
}

func (c *Collector) fetchExport(ctx context.Context, cookie *http.Cookie, window collector.DateRange) ([]byte, error) {
	url := fmt.Sprintf("%s/blacklist/export?start=%s&end=%s",
		c.baseURL, window.StartDate.Format("2006-01-02"), window.EndDate.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}
	req.AddCookie(cookie)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling SECUDIUM export: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("SECUDIUM export returned HTTP %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("reading SECUDIUM export body: %w", err)
	}
	return buf.Bytes(), nil
}

// parseExport reads SECUDIUM's spreadsheet-style CSV export
// (ip,threat_level), stamping every row with the window's end date since
// SECUDIUM's export carries no per-row date column.
func parseExport(page []byte, detectionDate time.Time) ([]collector.Candidate, error) {
	r := csv.NewReader(bytes.NewReader(page))
	r.FieldsPerRecord = -1

	var out []collector.Candidate
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing SECUDIUM export: %w", err)
		}
		if len(record) == 0 {
			continue
		}

		ipText := strings.TrimSpace(record[0])
		if _, err := netip.ParseAddr(ipText); err != nil {
			continue
		}

		level := ipstore.ThreatUnknown
		if len(record) > 1 {
			candidate := ipstore.ThreatLevel(strings.ToLower(strings.TrimSpace(record[1])))
			if candidate.Valid() {
				level = candidate
			}
		}

		out = append(out, collector.Candidate{IP: ipText, ThreatLevel: level, DetectionDate: detectionDate})
	}
	return out, nil
}
