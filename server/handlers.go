package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jrsteele09/go-bank-dashboard/dashboard"
	apperrors "github.com/jrsteele09/go-bank-dashboard/internal/errors"
	"github.com/rs/zerolog/hlog"
)

type dashboardPage struct {
	AppName     string
	Accounts    []dashboard.AccountView
	Selected    *dashboard.AccountView
	GeneratedAt time.Time
}

type messagePage struct {
	Title    string
	Message  string
	LinkURL  string
	LinkText string
}

var (
	messageInternal = messagePage{
		Title:   "Something went wrong",
		Message: "An unexpected error occurred.",
		LinkURL: RouteDashboard, LinkText: "Try again",
	}
	messageUpstream = messagePage{
		Title:   "Bank unavailable",
		Message: "Your bank could not be reached. No data is shown rather than incomplete data.",
		LinkURL: RouteDashboard, LinkText: "Try again",
	}
	messageSignInFailed = messagePage{
		Title:   "Sign in failed",
		Message: "The sign in could not be completed.",
		LinkURL: RouteLogin, LinkText: "Sign in again",
	}
	messageSignedOut = messagePage{
		Title:   "Signed out",
		Message: "You have been signed out.",
		LinkURL: RouteLogin, LinkText: "Sign in",
	}
)

func (s *Server) renderMessage(w http.ResponseWriter, status int, page messagePage) {
	render(w, status, s.pages.message, page)
}

// DashboardHandler renders the dashboard (GET /). ?account= selects an account, the first open
// account is shown otherwise.
func (s *Server) DashboardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, ok := s.cookies.sessionID(r)
		if !ok {
			http.Redirect(w, r, RouteLogin, http.StatusFound)
			return
		}

		d, err := s.dashboards.Dashboard(r.Context(), sessionID)
		if err != nil {
			s.handleDashboardError(w, r, err)
			return
		}

		page := dashboardPage{
			AppName:     s.config.GetAppName(),
			Accounts:    d.Accounts,
			GeneratedAt: d.GeneratedAt,
		}
		selected := r.URL.Query().Get("account")
		for i := range d.Accounts {
			if page.Selected == nil || d.Accounts[i].Account.ID == selected {
				page.Selected = &d.Accounts[i]
			}
		}
		render(w, http.StatusOK, s.pages.dashboard, page)
	}
}

func (s *Server) handleDashboardError(w http.ResponseWriter, r *http.Request, err error) {
	logger := hlog.FromRequest(r)
	switch {
	case apperrors.IsReloginRequired(err), errors.Is(err, apperrors.ErrUnauthorized):
		logger.Info().Err(err).Msg("Session needs a new login")
		http.Redirect(w, r, RouteLogin, http.StatusFound)
	case r.Context().Err() != nil:
		logger.Debug().Err(err).Msg("Client went away")
	default:
		logger.Error().Err(err).Msg("Failed to build dashboard")
		s.renderMessage(w, http.StatusBadGateway, messageUpstream)
	}
}

// LoginHandler starts the authorization-code flow (GET /login)
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := s.cookies.ensure(w, r)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to start session")
			s.renderMessage(w, http.StatusInternalServerError, messageInternal)
			return
		}

		authURL, err := s.login.BeginLogin(r.Context(), sessionID)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to begin login")
			s.renderMessage(w, http.StatusInternalServerError, messageInternal)
			return
		}
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// LogoutHandler forgets the session and its tokens (GET /logout)
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessionID, ok := s.cookies.sessionID(r); ok {
			if err := s.login.Logout(r.Context(), sessionID); err != nil {
				hlog.FromRequest(r).Error().Err(err).Msg("Failed to delete session")
			}
		}
		s.cookies.clear(w, r)
		s.renderMessage(w, http.StatusOK, messageSignedOut)
	}
}

// HealthHandler reports liveness (GET /healthz)
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
