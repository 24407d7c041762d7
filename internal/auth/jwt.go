package auth

import (
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// JWTClaims are the claims carried by a control-plane bearer token.
type JWTClaims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
}

// JWTAuthenticator issues and validates HS256 bearer tokens for the control
// plane. The signing key is JWT_SECRET_KEY.
type JWTAuthenticator struct {
	signingKey []byte
}

// NewJWTAuthenticator creates a JWT authenticator. Returns nil (disabled) if
// secret is empty.
func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	if secret == "" {
		return nil
	}
	return &JWTAuthenticator{signingKey: []byte(secret)}
}

// Issue signs a new bearer token for the given subject/role, valid for ttl.
func (j *JWTAuthenticator) Issue(subject, role string, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: j.signingKey},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating signer: %w", err)
	}

	now := time.Now()
	registered := jwt.Claims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(ttl)),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    "blacklist",
	}

	token, err := jwt.Signed(signer).Claims(registered).Claims(JWTClaims{Subject: subject, Role: role}).Serialize()
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// Validate verifies the token's signature and expiry, returning the claims.
func (j *JWTAuthenticator) Validate(raw string) (*JWTClaims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	var registered jwt.Claims
	var claims JWTClaims
	if err := tok.Claims(j.signingKey, &registered, &claims); err != nil {
		return nil, fmt.Errorf("verifying signature: %w", err)
	}

	if err := registered.Validate(jwt.Expected{Time: time.Now()}); err != nil {
		return nil, fmt.Errorf("validating claims: %w", err)
	}

	return &claims, nil
}
