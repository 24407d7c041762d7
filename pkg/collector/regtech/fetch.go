package regtech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// errAuthRejected marks a fetch rejected for authentication reasons (an
// expired bearer token or session): 401 Unauthorized, or a 302 redirect
// back to the login page. The run loop treats this as a signal to log
// in again with the vault entry's username/password.
var errAuthRejected = errors.New("REGTECH rejected the current session")

// fetchPage retrieves one day's blacklist page. Callers wrap this in
// collector.Fetch for the shared exponential-backoff retry.
func (c *Collector) fetchPage(ctx context.Context, sess session, day time.Time) ([]byte, error) {
	url := fmt.Sprintf("%s/blacklist/export?date=%s", c.baseURL, day.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}
	sess.apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling REGTECH export: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusFound {
		return nil, fmt.Errorf("%w (HTTP %d)", errAuthRejected, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("REGTECH export rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("REGTECH export returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading REGTECH export body: %w", err)
	}
	return body, nil
}
