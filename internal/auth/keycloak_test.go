package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewKeycloakVerifierFromEnvRequiresIssuer(t *testing.T) {
	t.Setenv("KEYCLOAK_ISSUER", "")
	if _, err := NewKeycloakVerifierFromEnv(); err == nil {
		t.Fatal("expected an error when KEYCLOAK_ISSUER is unset")
	}
}

func TestNewKeycloakVerifierFromEnvDerivesJWKSURL(t *testing.T) {
	t.Setenv("KEYCLOAK_ISSUER", "https://id.example.com/realms/caption/")
	t.Setenv("KEYCLOAK_JWKS_URL", "")
	v, err := NewKeycloakVerifierFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://id.example.com/realms/caption/protocol/openid-connect/certs"
	if v.jwksURL != want {
		t.Fatalf("got %q, want %q", v.jwksURL, want)
	}
}

func TestKeycloakVerifierRejectsEmptyToken(t *testing.T) {
	v := &KeycloakVerifier{}
	if _, err := v.VerifyToken(context.Background(), ""); err == nil {
		t.Fatal("expected an error for an empty token")
	}
}

func b64url(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func TestParseRSAPublicKeyRoundTrips(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("unexpected error generating key: %v", err)
	}
	n := b64url(priv.PublicKey.N.Bytes())
	eBytes := []byte{1, 0, 1} // 65537, matches priv.PublicKey.E in practice
	e := b64url(eBytes)

	pub, err := parseRSAPublicKey(n, e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.N.Cmp(priv.PublicKey.N) != 0 {
		t.Fatal("expected recovered modulus to match the original key")
	}
	if pub.E != 65537 {
		t.Fatalf("expected exponent 65537, got %d", pub.E)
	}
}

func TestParseRSAPublicKeyRejectsInvalidBase64(t *testing.T) {
	if _, err := parseRSAPublicKey("not base64!!", "AQAB"); err == nil {
		t.Fatal("expected an error for invalid base64 in n")
	}
}

func TestKeycloakVerifierVerifiesTokenAgainstLiveJWKS(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("unexpected error generating key: %v", err)
	}

	jwks := jwksResponse{Keys: []jwkKey{{
		Kid: "key-1",
		Kty: "RSA",
		N:   b64url(priv.PublicKey.N.Bytes()),
		E:   b64url([]byte{1, 0, 1}),
		Use: "sig",
		Alg: "RS256",
	}}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jwks)
	}))
	defer srv.Close()

	v := &KeycloakVerifier{
		issuer:     "https://id.example.com/realms/caption",
		jwksURL:    srv.URL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		cache:      jwksCache{keys: make(map[string]*rsa.PublicKey)},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub": "user-1",
		"iss": v.issuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = "key-1"
	signed, err := token.SignedString(priv)
	if err != nil {
		t.Fatalf("unexpected error signing token: %v", err)
	}

	claims, err := v.VerifyToken(context.Background(), signed)
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if claims["sub"] != "user-1" {
		t.Fatalf("unexpected sub claim: %v", claims["sub"])
	}
}

func TestKeycloakVerifierRejectsTokenWithUnknownKid(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("unexpected error generating key: %v", err)
	}
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("unexpected error generating key: %v", err)
	}

	jwks := jwksResponse{Keys: []jwkKey{{
		Kid: "key-1", Kty: "RSA",
		N: b64url(other.PublicKey.N.Bytes()), E: b64url([]byte{1, 0, 1}),
	}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jwks)
	}))
	defer srv.Close()

	v := &KeycloakVerifier{
		jwksURL:    srv.URL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		cache:      jwksCache{keys: make(map[string]*rsa.PublicKey)},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix()})
	token.Header["kid"] = "missing-key"
	signed, _ := token.SignedString(priv)

	if _, err := v.VerifyToken(context.Background(), signed); err == nil {
		t.Fatal("expected verification to fail for an unknown kid")
	}
}
