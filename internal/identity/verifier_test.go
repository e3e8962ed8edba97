package identity

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestVerifier(t *testing.T, secret string, clock Clock) *Verifier {
	t.Helper()
	v, err := NewVerifierWithClock(secret, clock)
	if err != nil {
		t.Fatalf("NewVerifierWithClock: %v", err)
	}
	return v
}

func TestIssueAndVerify(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	v := newTestVerifier(t, "s3cret", clock)

	token, expires, err := v.Issue(map[string]any{"email": "alice@x.com", "name": "Alice"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if want := clock.now.Add(DefaultTTL); !expires.Equal(want) {
		t.Errorf("expires = %v, want %v", expires, want)
	}

	p, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Email != "alice@x.com" {
		t.Errorf("Email = %q, want %q", p.Email, "alice@x.com")
	}
	if p.Claims["name"] != "Alice" {
		t.Errorf("name claim = %v, want Alice", p.Claims["name"])
	}
}

func TestIssue_OverridesExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	v := newTestVerifier(t, "s3cret", clock)

	// A caller-supplied exp far in the future must not extend the window.
	token, _, err := v.Issue(map[string]any{"email": "alice@x.com", "exp": clock.now.Add(365 * DefaultTTL).Unix()})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.now = clock.now.Add(DefaultTTL + time.Minute)
	if _, err := v.Verify(token); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Verify after 24h = %v, want ErrUnauthorized", err)
	}
}

func TestIssue_RequiresEmail(t *testing.T) {
	v := newTestVerifier(t, "s3cret", realClock{})

	if _, _, err := v.Issue(map[string]any{"name": "nobody"}); !errors.Is(err, ErrMissingEmail) {
		t.Errorf("Issue without email = %v, want ErrMissingEmail", err)
	}
}

func TestVerify_Failures(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	v := newTestVerifier(t, "s3cret", clock)
	other := newTestVerifier(t, "different", clock)

	good, _, err := v.Issue(map[string]any{"email": "alice@x.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	forged, _, err := other.Issue(map[string]any{"email": "alice@x.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	bob, _, err := v.Issue(map[string]any{"email": "bob@x.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// Bob's claims under Alice's signature.
	g, b := strings.Split(good, "."), strings.Split(bob, ".")
	spliced := g[0] + "." + b[1] + "." + g[2]

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"malformed", "not-a-jwt"},
		{"wrong secret", forged},
		{"spliced payload", spliced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(tt.token); !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Verify = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestVerify_Expired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	v := newTestVerifier(t, "s3cret", clock)

	token, _, err := v.Issue(map[string]any{"email": "alice@x.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.now = clock.now.Add(DefaultTTL - time.Minute)
	if _, err := v.Verify(token); err != nil {
		t.Fatalf("Verify just before expiry: %v", err)
	}

	clock.now = clock.now.Add(2 * time.Minute)
	if _, err := v.Verify(token); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Verify after expiry = %v, want ErrUnauthorized", err)
	}
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	if _, err := NewVerifier(""); err == nil {
		t.Error("expected error for empty secret")
	}
}
