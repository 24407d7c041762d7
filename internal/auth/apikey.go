package auth

import "crypto/subtle"

// APIKeyAuthenticator validates the X-API-Key header against the set of keys
// configured for the control plane (DEFAULT_API_KEY plus any additional keys
// wired in at startup).
type APIKeyAuthenticator struct {
	keys [][]byte
}

// NewAPIKeyAuthenticator creates an authenticator for the given valid keys.
// Empty keys are ignored.
func NewAPIKeyAuthenticator(keys ...string) *APIKeyAuthenticator {
	a := &APIKeyAuthenticator{}
	for _, k := range keys {
		if k == "" {
			continue
		}
		a.keys = append(a.keys, []byte(k))
	}
	return a
}

// Enabled reports whether any API key has been configured.
func (a *APIKeyAuthenticator) Enabled() bool {
	return len(a.keys) > 0
}

// Check reports whether raw matches one of the configured keys using a
// constant-time comparison to avoid timing side channels.
func (a *APIKeyAuthenticator) Check(raw string) bool {
	if raw == "" {
		return false
	}
	rb := []byte(raw)
	for _, k := range a.keys {
		if len(k) == len(rb) && subtle.ConstantTimeCompare(k, rb) == 1 {
			return true
		}
	}
	return false
}
