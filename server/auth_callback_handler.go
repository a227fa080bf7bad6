package server

import (
	"errors"
	"net/http"

	"github.com/jrsteele09/go-bank-dashboard/auth"
	apperrors "github.com/jrsteele09/go-bank-dashboard/internal/errors"
	"github.com/rs/zerolog/hlog"
)

// OAuthCallbackHandler completes the login when the provider redirects back (GET /callback)
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := hlog.FromRequest(r)

		sessionID, ok := s.cookies.sessionID(r)
		if !ok {
			logger.Warn().Msg("Callback without a session cookie")
			s.renderMessage(w, http.StatusBadRequest, messageSignInFailed)
			return
		}

		query := r.URL.Query()
		_, err := s.login.HandleCallback(r.Context(), sessionID, auth.CallbackParams{
			Code:             query.Get("code"),
			State:            query.Get("state"),
			Error:            query.Get("error"),
			ErrorDescription: query.Get("error_description"),
		})
		switch {
		case err == nil:
			http.Redirect(w, r, RouteDashboard, http.StatusSeeOther)
		case errors.Is(err, apperrors.ErrDenied):
			logger.Info().Err(err).Msg("Authorization denied")
			s.renderMessage(w, http.StatusForbidden, messagePage{
				Title:   "Access not granted",
				Message: "The bank did not grant access to your account.",
				LinkURL: RouteLogin, LinkText: "Try again",
			})
		case errors.Is(err, apperrors.ErrStateMismatch):
			s.renderMessage(w, http.StatusBadRequest, messageSignInFailed)
		case errors.Is(err, apperrors.ErrExchangeFailed):
			s.renderMessage(w, http.StatusBadGateway, messageSignInFailed)
		default:
			logger.Error().Err(err).Msg("OAuth callback failed")
			s.renderMessage(w, http.StatusInternalServerError, messageSignInFailed)
		}
	}
}
