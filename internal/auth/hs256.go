package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier is satisfied by both the Keycloak RS256/JWKS verifier and
// the shared-secret HS256 verifier, so callers don't need to know
// which auth mode is configured.
type Verifier interface {
	VerifyToken(ctx context.Context, tokenStr string) (jwt.MapClaims, error)
}

// SharedSecretVerifier validates self-issued HS256 tokens, the mode
// used when no Keycloak realm is configured (JWT_SECRET set instead).
type SharedSecretVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewSharedSecretVerifier builds an HS256 verifier from a raw secret.
func NewSharedSecretVerifier(secret, issuer, audience string) (*SharedSecretVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET not set")
	}
	return &SharedSecretVerifier{secret: []byte(secret), issuer: issuer, audience: audience}, nil
}

func (v *SharedSecretVerifier) VerifyToken(_ context.Context, tokenStr string) (jwt.MapClaims, error) {
	if tokenStr == "" {
		return nil, errors.New("token is empty")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// IssueToken mints a signed HS256 token for a user id, used by the
// dev-mode login endpoint when no external identity provider is wired.
func (v *SharedSecretVerifier) IssueToken(userID string, expireMinutes int) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(time.Duration(expireMinutes) * time.Minute).Unix(),
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	if v.audience != "" {
		claims["aud"] = v.audience
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
