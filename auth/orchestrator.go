package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-bank-dashboard/internal/errors"
	"github.com/jrsteele09/go-bank-dashboard/sessions"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const stateLength = 32

// CodeExchanger is the part of the provider the orchestrator needs
type CodeExchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// CallbackParams are the query parameters the provider redirects back with
type CallbackParams struct {
	Code             string
	State            string
	Error            string // e.g. "access_denied"
	ErrorDescription string
}

// Orchestrator drives the authorization-code flow for browser sessions
type Orchestrator struct {
	store    *sessions.Store
	provider CodeExchanger
	stateTTL time.Duration
}

func NewOrchestrator(store *sessions.Store, provider CodeExchanger, stateTTL time.Duration) *Orchestrator {
	return &Orchestrator{
		store:    store,
		provider: provider,
		stateTTL: stateTTL,
	}
}

// BeginLogin issues a fresh state nonce for the session, replacing any login already in flight,
// and returns the provider's authorize URL.
func (o *Orchestrator) BeginLogin(ctx context.Context, sessionID string) (string, error) {
	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("[auth BeginLogin] %w", err)
	}

	_, err = o.store.Update(ctx, sessionID, func(s *sessions.Session) error {
		s.PendingState = state
		s.StateIssuedAt = NowTimeFunc()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("[auth BeginLogin] %w", err)
	}
	return o.provider.AuthCodeURL(state), nil
}

// HandleCallback validates the provider redirect and exchanges the code. Either the token is bound
// and the nonce consumed in a single write, or the session is left exactly as it was.
func (o *Orchestrator) HandleCallback(ctx context.Context, sessionID string, params CallbackParams) (sessions.Token, error) {
	var bound sessions.Token

	_, err := o.store.Update(ctx, sessionID, func(s *sessions.Session) error {
		if !stateMatches(s, params.State, o.stateTTL) {
			return apperrors.ErrStateMismatch
		}
		if params.Error != "" {
			return fmt.Errorf("%w: %s %s", apperrors.ErrDenied, params.Error, params.ErrorDescription)
		}
		if params.Code == "" {
			return fmt.Errorf("%w: missing code", apperrors.ErrExchangeFailed)
		}

		raw, err := o.provider.Exchange(ctx, params.Code)
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrExchangeFailed, err)
		}

		bound = sessions.FromOAuth2(raw, NowTimeFunc())
		s.Bind(bound)
		if userID := sessions.UserIDFromOAuth2(raw); userID != "" {
			s.UserID = userID
		}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("OAuth callback rejected")
		return sessions.Token{}, err
	}

	log.Info().Object("token", bound).Msg("Session authenticated")
	return bound, nil
}

// Logout forgets the session and its token
func (o *Orchestrator) Logout(ctx context.Context, sessionID string) error {
	return o.store.Delete(ctx, sessionID)
}

func stateMatches(s *sessions.Session, received string, ttl time.Duration) bool {
	if received == "" || !s.HasPendingState(NowTimeFunc(), ttl) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(received), []byte(s.PendingState)) == 1
}

// generateState creates a random base64url nonce
func generateState() (string, error) {
	b := make([]byte, stateLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
