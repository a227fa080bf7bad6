package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-bank-dashboard/internal/errors"
	"github.com/jrsteele09/go-bank-dashboard/internal/metrics"
	"github.com/jrsteele09/go-bank-dashboard/sessions"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// DefaultRefreshMargin is how long before expiry a token is renewed
const DefaultRefreshMargin = 60 * time.Second

// errUnchanged ends a session update without writing
var errUnchanged = errors.New("token unchanged")

// Refresher performs the refresh_token grant against the provider
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Manager hands out access tokens that are valid for at least the refresh margin, renewing
// them at most once per expiry window however many requests ask at the same time.
type Manager struct {
	store     *sessions.Store
	refresher Refresher
	margin    time.Duration
	metrics   metrics.Collector
}

type Option func(*Manager)

// WithMetrics sets the collector for refresh outcomes
func WithMetrics(c metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = c
	}
}

func NewManager(store *sessions.Store, refresher Refresher, margin time.Duration, opts ...Option) *Manager {
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	m := &Manager{
		store:     store,
		refresher: refresher,
		margin:    margin,
		metrics:   metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetValidToken returns the session's token, refreshing it first when it expires within the margin
func (m *Manager) GetValidToken(ctx context.Context, sessionID string) (sessions.Token, error) {
	return m.withToken(ctx, sessionID, func(t *sessions.Token) bool {
		return t.NeedsRefresh(NowTimeFunc(), m.margin)
	})
}

// ForceRefresh renews the token after the API rejected it. When another request already replaced
// the rejected token the newer one is returned without calling the provider.
func (m *Manager) ForceRefresh(ctx context.Context, sessionID string, rejected sessions.Token) (sessions.Token, error) {
	return m.withToken(ctx, sessionID, func(t *sessions.Token) bool {
		return t.AccessToken == rejected.AccessToken || t.NeedsRefresh(NowTimeFunc(), m.margin)
	})
}

func (m *Manager) withToken(ctx context.Context, sessionID string, needsRefresh func(*sessions.Token) bool) (sessions.Token, error) {
	var (
		result   sessions.Token
		terminal error
	)

	_, err := m.store.Update(ctx, sessionID, func(s *sessions.Session) error {
		if s.Token == nil {
			if !s.ExpiredAt.IsZero() {
				return apperrors.ErrSessionExpired
			}
			return apperrors.ErrNotAuthenticated
		}
		if !needsRefresh(s.Token) {
			result = s.Token.Clone()
			return errUnchanged
		}

		refreshed, err := m.refresh(ctx, *s.Token)
		if errors.Is(err, apperrors.ErrSessionExpired) {
			// Persist the cleared token, then report the expiry to the caller
			s.Expire(NowTimeFunc())
			terminal = err
			return nil
		}
		if err != nil {
			return err
		}

		s.Token = &refreshed
		result = refreshed.Clone()
		return nil
	})

	switch {
	case errors.Is(err, errUnchanged):
		return result, nil
	case err != nil:
		return sessions.Token{}, err
	case terminal != nil:
		return sessions.Token{}, terminal
	}
	return result, nil
}

func (m *Manager) refresh(ctx context.Context, current sessions.Token) (sessions.Token, error) {
	if current.RefreshToken == "" {
		m.metrics.RecordRefresh(metrics.OutcomeExpired)
		log.Info().Object("token", current).Msg("Token expired and no refresh token was issued")
		return sessions.Token{}, fmt.Errorf("%w: no refresh token", apperrors.ErrSessionExpired)
	}

	raw, err := m.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		if isGrantRejected(err) {
			m.metrics.RecordRefresh(metrics.OutcomeExpired)
			log.Info().Object("token", current).Msg("Refresh token rejected by provider")
			return sessions.Token{}, fmt.Errorf("%w: %v", apperrors.ErrSessionExpired, err)
		}
		m.metrics.RecordRefresh(metrics.OutcomeFailure)
		log.Warn().Err(err).Object("token", current).Msg("Token refresh failed")
		return sessions.Token{}, fmt.Errorf("%w: %w", apperrors.ErrRefreshUnavailable, err)
	}

	refreshed := sessions.FromOAuth2(raw, NowTimeFunc())
	// Providers that don't rotate refresh tokens omit them from the response
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = current.RefreshToken
	}
	if len(refreshed.Scopes) == 0 {
		refreshed.Scopes = current.Scopes
	}

	m.metrics.RecordRefresh(metrics.OutcomeSuccess)
	log.Debug().Object("token", refreshed).Msg("Token refreshed")
	return refreshed, nil
}

// isGrantRejected reports whether the provider refused the refresh token itself
func isGrantRejected(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	switch re.ErrorCode {
	case "invalid_grant", "invalid_token", "unauthorized_client":
		return true
	}
	return false
}
