package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testAudience = "client-id.apps.googleusercontent.com"

type verifierFixture struct {
	verifier   *GoogleVerifier
	privateKey *rsa.PrivateKey
	jwksServer *httptest.Server
	now        time.Time
}

func newVerifierFixture(t *testing.T) *verifierFixture {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("unexpected key generation error: %v", err)
	}

	document := fmt.Sprintf(`{"keys": [{
		"kty": "RSA", "alg": "RS256", "use": "sig", "kid": "test-key",
		"n": %q, "e": %q
	}]}`,
		base64.RawURLEncoding.EncodeToString(privateKey.PublicKey.N.Bytes()),
		base64.RawURLEncoding.EncodeToString(big.NewInt(int64(privateKey.PublicKey.E)).Bytes()),
	)
	jwksServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(document)) //nolint:errcheck
	}))
	t.Cleanup(jwksServer.Close)

	fixture := &verifierFixture{
		privateKey: privateKey,
		jwksServer: jwksServer,
		now:        time.Unix(1770000000, 0),
	}

	verifier, err := NewGoogleVerifier(GoogleVerifierConfig{
		Audience: testAudience,
		JWKSURL:  jwksServer.URL,
		Clock:    func() time.Time { return fixture.now },
	})
	if err != nil {
		t.Fatalf("unexpected verifier error: %v", err)
	}
	fixture.verifier = verifier
	return fixture
}

func (f *verifierFixture) signToken(t *testing.T, claims googleTokenClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(f.privateKey)
	if err != nil {
		t.Fatalf("unexpected signing error: %v", err)
	}
	return signed
}

func (f *verifierFixture) validClaims() googleTokenClaims {
	return googleTokenClaims{
		Email:   "hana@example.com",
		Name:    "Hana",
		Picture: "https://example.com/avatar.png",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uid-1",
			Issuer:    "https://accounts.google.com",
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(f.now),
			ExpiresAt: jwt.NewNumericDate(f.now.Add(time.Hour)),
		},
	}
}

func TestVerifyAcceptsAWellFormedGoogleToken(t *testing.T) {
	fixture := newVerifierFixture(t)

	claims, err := fixture.verifier.Verify(context.Background(), fixture.signToken(t, fixture.validClaims()))
	if err != nil {
		t.Fatalf("unexpected verification error: %v", err)
	}
	if claims.Subject != "uid-1" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.Email != "hana@example.com" || claims.DisplayName != "Hana" {
		t.Fatalf("unexpected identity fields %+v", claims)
	}
}

func TestVerifyRejectsExpiredTokens(t *testing.T) {
	fixture := newVerifierFixture(t)
	tokenClaims := fixture.validClaims()
	tokenClaims.ExpiresAt = jwt.NewNumericDate(fixture.now.Add(-time.Minute))

	if _, err := fixture.verifier.Verify(context.Background(), fixture.signToken(t, tokenClaims)); err == nil {
		t.Fatalf("expected an expired token to be rejected")
	}
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	fixture := newVerifierFixture(t)
	tokenClaims := fixture.validClaims()
	tokenClaims.Audience = jwt.ClaimStrings{"someone-else"}

	if _, err := fixture.verifier.Verify(context.Background(), fixture.signToken(t, tokenClaims)); err == nil {
		t.Fatalf("expected a wrong-audience token to be rejected")
	}
}

func TestVerifyRejectsUntrustedIssuers(t *testing.T) {
	fixture := newVerifierFixture(t)
	tokenClaims := fixture.validClaims()
	tokenClaims.Issuer = "https://evil.example.com"

	if _, err := fixture.verifier.Verify(context.Background(), fixture.signToken(t, tokenClaims)); err == nil {
		t.Fatalf("expected an untrusted issuer to be rejected")
	}
}

func TestVerifyRejectsUnknownSigningKeys(t *testing.T) {
	fixture := newVerifierFixture(t)

	foreignKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("unexpected key generation error: %v", err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, fixture.validClaims())
	token.Header["kid"] = "unknown-key"
	signed, err := token.SignedString(foreignKey)
	if err != nil {
		t.Fatalf("unexpected signing error: %v", err)
	}

	if _, err := fixture.verifier.Verify(context.Background(), signed); err == nil {
		t.Fatalf("expected an unknown key id to be rejected")
	}
}

func TestVerifyRejectsEmptyTokens(t *testing.T) {
	fixture := newVerifierFixture(t)
	if _, err := fixture.verifier.Verify(context.Background(), ""); err == nil {
		t.Fatalf("expected an empty token to be rejected")
	}
}

func TestNewGoogleVerifierValidatesConfiguration(t *testing.T) {
	if _, err := NewGoogleVerifier(GoogleVerifierConfig{JWKSURL: "https://example.com"}); err == nil {
		t.Fatalf("expected an error for a missing audience")
	}
	if _, err := NewGoogleVerifier(GoogleVerifierConfig{Audience: testAudience}); err == nil {
		t.Fatalf("expected an error for a missing jwks url")
	}
}
