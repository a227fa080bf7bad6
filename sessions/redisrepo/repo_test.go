package redisrepo

import (
	"bytes"
	"context"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-bank-dashboard/internal/errors"
	"github.com/jrsteele09/go-bank-dashboard/sessions"
	"github.com/stretchr/testify/require"
)

var testKey = bytes.Repeat([]byte{7}, 32)

func TestSealer_RoundTripBoundToSession(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	sealed, err := s.Seal("sid-1", []byte(`{"access_token":"secret"}`))
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "secret")

	plain, err := s.Open("sid-1", sealed)
	require.NoError(t, err)
	require.Equal(t, `{"access_token":"secret"}`, string(plain))

	_, err = s.Open("sid-2", sealed)
	require.Error(t, err, "record must not open under another session id")

	_, err = s.Open("sid-1", sealed[:5])
	require.Error(t, err)
}

func TestNewSealer_KeyLength(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	require.Error(t, err)

	_, err = NewSealerFromHex("zz")
	require.Error(t, err)
}

func setupTestRepo(t *testing.T) *Repo {
	t.Helper()
	sealer, err := NewSealer(testKey)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.KeyPrefix = "test:session:"
	cfg.DialTimeout = time.Second
	r, err := New(cfg, sealer)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRepo_RoundTrip(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()

	session := &sessions.Session{
		ID:        "redis-sid",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Token: &sessions.Token{
			AccessToken: "access",
			Expiry:      time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		},
	}
	require.NoError(t, r.Upsert(ctx, session))

	got, err := r.Get(ctx, "redis-sid")
	require.NoError(t, err)
	require.Equal(t, session.Token.AccessToken, got.Token.AccessToken)
	require.True(t, session.Token.Expiry.Equal(got.Token.Expiry))

	require.NoError(t, r.Delete(ctx, "redis-sid"))
	_, err = r.Get(ctx, "redis-sid")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}
