package auth

import "time"

// Kind distinguishes the two token lifecycles.
type Kind string

const (
	KindAccess    Kind = "access"
	KindStreaming Kind = "streaming"
)

// safetyMargin is how long before actual expiry a token is treated as stale.
func (k Kind) safetyMargin() time.Duration {
	if k == KindStreaming {
		return 5 * time.Minute
	}
	return 60 * time.Second
}

// Token is an issued credential. Tokens are replaced wholesale on refresh,
// never mutated in place.
type Token struct {
	Value      string    `json:"value"`
	Kind       Kind      `json:"kind"`
	ObtainedAt time.Time `json:"obtained_at"`
	ExpiresIn  int64     `json:"expires_in"` // seconds
}

// ExpiresAt returns the upstream expiry instant.
func (t Token) ExpiresAt() time.Time {
	return t.ObtainedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// ValidAt reports whether the token is usable at the given instant,
// applying the kind's safety margin.
func (t Token) ValidAt(now time.Time) bool {
	if t.Value == "" {
		return false
	}
	return now.Before(t.ExpiresAt().Add(-t.Kind.safetyMargin()))
}

// Valid reports whether the token is usable now.
func (t Token) Valid() bool {
	return t.ValidAt(time.Now())
}
