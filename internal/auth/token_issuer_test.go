package auth

import (
	"context"
	"testing"
	"time"
)

func newTestIssuer(clock func() time.Time) *TokenIssuer {
	return NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "chapterboard-auth",
		Audience:      "chapterboard-api",
		TokenTTL:      time.Hour,
		Clock:         clock,
	})
}

func TestIssueAndValidateRoundTripPreservesSession(t *testing.T) {
	now := time.Unix(1770000000, 0)
	issuer := newTestIssuer(func() time.Time { return now })

	token, expiresIn, err := issuer.IssueBackendToken(context.Background(), Session{
		Subject: "uid-1",
		IsAdmin: true,
	})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if expiresIn != 3600 {
		t.Fatalf("expected 3600 seconds of validity, got %d", expiresIn)
	}

	session, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if session.Subject != "uid-1" || !session.IsAdmin {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestValidateRejectsExpiredTokens(t *testing.T) {
	now := time.Unix(1770000000, 0)
	issuer := newTestIssuer(func() time.Time { return now })

	token, _, err := issuer.IssueBackendToken(context.Background(), Session{Subject: "uid-1"})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatalf("expected an expired token to be rejected")
	}
}

func TestValidateRejectsTokensFromAnotherSecret(t *testing.T) {
	now := time.Unix(1770000000, 0)
	clock := func() time.Time { return now }

	other := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("different-secret"),
		Issuer:        "chapterboard-auth",
		Audience:      "chapterboard-api",
		Clock:         clock,
	})
	token, _, err := other.IssueBackendToken(context.Background(), Session{Subject: "uid-1"})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	if _, err := newTestIssuer(clock).ValidateToken(token); err == nil {
		t.Fatalf("expected a foreign signature to be rejected")
	}
}

func TestValidateRejectsWrongAudience(t *testing.T) {
	now := time.Unix(1770000000, 0)
	clock := func() time.Time { return now }

	other := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "chapterboard-auth",
		Audience:      "some-other-service",
		Clock:         clock,
	})
	token, _, err := other.IssueBackendToken(context.Background(), Session{Subject: "uid-1"})
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	if _, err := newTestIssuer(clock).ValidateToken(token); err == nil {
		t.Fatalf("expected a wrong-audience token to be rejected")
	}
}

func TestIssueRequiresSubjectAndSecret(t *testing.T) {
	issuer := newTestIssuer(time.Now)
	if _, _, err := issuer.IssueBackendToken(context.Background(), Session{}); err == nil {
		t.Fatalf("expected an error for a missing subject")
	}

	unsigned := NewTokenIssuer(TokenIssuerConfig{})
	if _, _, err := unsigned.IssueBackendToken(context.Background(), Session{Subject: "uid-1"}); err == nil {
		t.Fatalf("expected an error for a missing signing secret")
	}
}
