package regtech

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jclee94/blacklist/internal/vault"
)

// session carries whatever REGTECH gave us to authorize subsequent fetches:
// either a bearer token (preferred, the operator-injected out-of-band path)
// or the session cookie from a successful password login.
type session struct {
	bearerToken string
	cookie      *http.Cookie
}

func (s session) apply(req *http.Request) {
	if s.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.bearerToken)
		return
	}
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}
}

// authenticate uses the vault-stored bearer token when the source's entry is
// token-only (empty username), and otherwise performs a username/password
// form login.
func (c *Collector) authenticate(ctx context.Context) (session, error) {
	cred, err := c.vault.Get(c.Source())
	if err != nil {
		return session{}, fmt.Errorf("loading REGTECH credential: %w", err)
	}

	if cred.Username == "" && cred.Secret != "" {
		return session{bearerToken: cred.Secret}, nil
	}

	return c.loginWithCredentials(ctx, cred)
}

// reauthenticateWithCredentials re-reads the vault entry and performs a
// fresh username/password login. Used when a fetch is rejected mid-run:
// REGTECH sessions expire without notice, and the only signal is the next
// fetch coming back 401/302-to-login. The vault holds a single entry per
// source, so when that entry is token-only there is no password to fall
// back to and this returns an error.
func (c *Collector) reauthenticateWithCredentials(ctx context.Context) (session, error) {
	cred, err := c.vault.Get(c.Source())
	if err != nil {
		return session{}, fmt.Errorf("loading REGTECH credential: %w", err)
	}
	if cred.Username == "" {
		return session{}, fmt.Errorf("REGTECH bearer token rejected and no username/password credential is on file")
	}
	return c.loginWithCredentials(ctx, cred)
}

func (c *Collector) loginWithCredentials(ctx context.Context, cred vault.Credential) (session, error) {
	form := url.Values{
		"username": {cred.Username},
		"password": {cred.Secret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return session{}, fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return session{}, fmt.Errorf("calling REGTECH login: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusFound || resp.StatusCode == http.StatusUnauthorized {
		return session{}, fmt.Errorf("REGTECH login rejected credentials (HTTP %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return session{}, fmt.Errorf("REGTECH login returned HTTP %d", resp.StatusCode)
	}

	for _, ck := range resp.Cookies() {
		if ck.Name == "JSESSIONID" {
			return session{cookie: ck}, nil
		}
	}
	return session{}, fmt.Errorf("REGTECH login response carried no session cookie")
}
