package sessions

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"

	"github.com/rs/zerolog"
)

// Session is the server side record of one browser. The ID is supplied by the session transport
// (a signed cookie) and is opaque to everything else.
type Session struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	PendingState  string    `json:"pending_state,omitempty"`   // OAuth state nonce of the login in flight
	StateIssuedAt time.Time `json:"state_issued_at,omitempty"` // When PendingState was generated
	UserID        string    `json:"user_id,omitempty"`         // Provider user id from the code exchange
	Token         *Token    `json:"token,omitempty"`

	// ExpiredAt is set when the provider rejected the refresh token. It lets later requests
	// report an expired session rather than a never-authenticated one.
	ExpiredAt time.Time `json:"expired_at,omitempty"`
}

// Token is the OAuth credential set bound to a session.
// SENSITIVE: AccessToken and RefreshToken never leave the server and are never logged.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	Expiry       time.Time `json:"expiry"`
	RefreshedAt  time.Time `json:"refreshed_at"`
}

// HasPendingState reports whether a login is in flight and its nonce is younger than ttl.
// A zero ttl disables the age check.
func (s *Session) HasPendingState(now time.Time, ttl time.Duration) bool {
	if s.PendingState == "" {
		return false
	}
	return ttl == 0 || now.Sub(s.StateIssuedAt) <= ttl
}

// Bind stores a new token and consumes the pending nonce in one step
func (s *Session) Bind(t Token) {
	s.Token = &t
	s.PendingState = ""
	s.StateIssuedAt = time.Time{}
	s.ExpiredAt = time.Time{}
}

// Expire drops the token after the provider refused to renew it
func (s *Session) Expire(now time.Time) {
	s.Token = nil
	s.ExpiredAt = now
}

// Clone returns a deep copy so callers can't mutate a stored record
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Token != nil {
		t := s.Token.Clone()
		c.Token = &t
	}
	return &c
}

// NeedsRefresh reports whether the token is expired or will expire within margin.
// A token issued without expires_in has no expiry and never needs a refresh.
func (t Token) NeedsRefresh(now time.Time, margin time.Duration) bool {
	if t.Expiry.IsZero() {
		return false
	}
	return !now.Add(margin).Before(t.Expiry)
}

func (t Token) Clone() Token {
	t.Scopes = slices.Clone(t.Scopes)
	return t
}

// Fingerprint is a short hash of the access token, safe to log for correlation
func (t Token) Fingerprint() string {
	if t.AccessToken == "" {
		return ""
	}
	h := sha256.Sum256([]byte(t.AccessToken))
	return hex.EncodeToString(h[:8])
}

// String keeps token material out of fmt and %v output
func (t Token) String() string {
	return "Token{fingerprint=" + t.Fingerprint() + ", expiry=" + t.Expiry.Format(time.RFC3339) + "}"
}

// MarshalZerologObject logs only non-secret fields
func (t Token) MarshalZerologObject(e *zerolog.Event) {
	e.Str("fingerprint", t.Fingerprint()).
		Time("expiry", t.Expiry).
		Bool("refreshable", t.RefreshToken != "").
		Strs("scopes", t.Scopes)
}
