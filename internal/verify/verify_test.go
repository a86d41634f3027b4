package verify

import (
	"testing"
	"time"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/models"
)

func newTestSigner(t *testing.T, now time.Time) *Signer {
	t.Helper()
	s, err := NewSigner("test-secret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	s.now = func() time.Time { return now }
	return s
}

func TestEmailTokenRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s := newTestSigner(t, now)
	token, err := s.Token(&models.User{ID: 42, Email: "ann@example.com"})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	userID, email, err := s.Verify(token)
	if err != nil || userID != 42 || email != "ann@example.com" {
		t.Fatalf("expected 42 ann@example.com, got %d %q %v", userID, email, err)
	}

	s.now = func() time.Time { return now.Add(DefaultEmailExpiry + time.Second) }
	if _, _, err := s.Verify(token); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestVerify_RejectsOtherTokens(t *testing.T) {
	now := time.Now()
	s := newTestSigner(t, now)
	other := newTestSigner(t, now)
	other.secret = []byte("another-secret")

	forged, _ := other.TokenFor(1, "ann@example.com")
	session, _ := s.SessionToken(&models.User{ID: 1})
	for name, token := range map[string]string{"forged": forged, "session": session, "garbage": "abc.def.ghi"} {
		if _, _, err := s.Verify(token); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestSessionToken(t *testing.T) {
	s := newTestSigner(t, time.Now())
	token, err := s.SessionToken(&models.User{ID: 7})
	if err != nil {
		t.Fatalf("session token: %v", err)
	}
	userID, err := s.ParseSession(token)
	if err != nil || userID != 7 {
		t.Fatalf("expected user 7, got %d %v", userID, err)
	}
	email, _ := s.TokenFor(7, "ann@example.com")
	if _, err := s.ParseSession(email); err == nil {
		t.Fatalf("expected verification token rejected as a session")
	}
	if _, err := NewSigner(""); err == nil {
		t.Fatalf("expected empty secret rejected")
	}
}
