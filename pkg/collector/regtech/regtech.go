// Package regtech implements the REGTECH source collector: cookie-session
// login with a bearer-token fast path, paginated HTML/CSV fetch, and parsing
// into collector.Candidate rows.
package regtech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jclee94/blacklist/internal/vault"
	"github.com/jclee94/blacklist/pkg/collector"
	"github.com/jclee94/blacklist/pkg/ipstore"
)

const requestTimeout = 30 * time.Second

// Collector implements collector.Collector for REGTECH.
type Collector struct {
	baseURL    string
	httpClient *http.Client
	vault      *vault.Vault
	logger     *slog.Logger
}

// New creates a REGTECH collector. cred is looked up from vault at Run time
// so a credential rotation takes effect on the next scheduled run without
// restarting the process.
func New(baseURL string, v *vault.Vault, logger *slog.Logger) *Collector {
	return &Collector{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			},
			// A session fetch redirected to the login page means the
			// bearer token or cookie expired; the run loop needs to see
			// that 302 rather than have it silently followed.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		vault:  v,
		logger: logger,
	}
}

// Source implements collector.Collector.
func (c *Collector) Source() ipstore.Source { return ipstore.SourceRegtech }

// Run authenticates, pages through the date range, and parses every page
// into candidates. A page failure that leaves at least one page successful
// is reported as collector.ErrorPartial rather than aborting the whole run.
func (c *Collector) Run(ctx context.Context, window collector.DateRange) (collector.Batch, collector.RunStats, error) {
	if err := c.vault.Probe(ctx, ipstore.SourceRegtech); err != nil {
		return collector.Batch{}, collector.RunStats{ErrorKind: collector.ErrorAuthFailed, ErrorDetail: err.Error()}, err
	}

	session, err := c.authenticate(ctx)
	if err != nil {
		_ = c.vault.Record(ctx, vault.AuthAttempt{Source: ipstore.SourceRegtech, Succeeded: false, At: time.Now()})
		return collector.Batch{}, collector.RunStats{ErrorKind: collector.ErrorAuthFailed, ErrorDetail: err.Error()}, err
	}
	_ = c.vault.Record(ctx, vault.AuthAttempt{Source: ipstore.SourceRegtech, Succeeded: true, At: time.Now()})

	var candidates []collector.Candidate
	stats := collector.RunStats{}
	reauthed := false

	for day := window.StartDate; !day.After(window.EndDate); day = day.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			break
		}

		page, err := collector.Fetch(ctx, func() ([]byte, error) {
			return c.fetchPage(ctx, session, day)
		})
		if errors.Is(err, errAuthRejected) && !reauthed {
			// The bearer token (or cookie) on file was rejected mid-run;
			// fall back to a username/password login once and retry this
			// page with the new session.
			reauthed = true
			newSession, reauthErr := c.reauthenticateWithCredentials(ctx)
			if reauthErr != nil {
				_ = c.vault.Record(ctx, vault.AuthAttempt{Source: ipstore.SourceRegtech, Succeeded: false, At: time.Now()})
				stats.PagesFailed++
				stats.ErrorDetail = fmt.Sprintf("page %s: %v", day.Format("2006-01-02"), reauthErr)
				continue
			}
			_ = c.vault.Record(ctx, vault.AuthAttempt{Source: ipstore.SourceRegtech, Succeeded: true, At: time.Now()})
			session = newSession
			page, err = collector.Fetch(ctx, func() ([]byte, error) {
				return c.fetchPage(ctx, session, day)
			})
		}
		if err != nil {
			stats.PagesFailed++
			stats.ErrorDetail = fmt.Sprintf("page %s: %v", day.Format("2006-01-02"), err)
			continue
		}

		rows, err := parsePage(page, day)
		if err != nil {
			stats.PagesFailed++
			stats.ErrorDetail = fmt.Sprintf("page %s: %v", day.Format("2006-01-02"), err)
			continue
		}

		candidates = append(candidates, rows...)
		stats.PagesOK++
	}

	switch {
	case stats.PagesOK == 0 && stats.PagesFailed > 0:
		stats.ErrorKind = collector.ErrorSourceUnavailable
	case stats.PagesFailed > 0:
		stats.ErrorKind = collector.ErrorPartial
	}

	return collector.Batch{Source: ipstore.SourceRegtech, Candidates: candidates}, stats, nil
}
