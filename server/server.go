package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-bank-dashboard/auth"
	"github.com/jrsteele09/go-bank-dashboard/dashboard"
	"github.com/jrsteele09/go-bank-dashboard/internal/config"
	"github.com/jrsteele09/go-bank-dashboard/sessions"
	"github.com/rs/zerolog/log"
)

// LoginFlow is the authorization-code flow behind /login, /callback and /logout
type LoginFlow interface {
	BeginLogin(ctx context.Context, sessionID string) (string, error)
	HandleCallback(ctx context.Context, sessionID string, params auth.CallbackParams) (sessions.Token, error)
	Logout(ctx context.Context, sessionID string) error
}

// DashboardSource builds the data behind the dashboard page
type DashboardSource interface {
	Dashboard(ctx context.Context, sessionID string) (*dashboard.Dashboard, error)
}

type Option func(*Server)

// WithMetricsHandler serves h at /metrics
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

type Server struct {
	env            string // Environment (e.g., "DEV", "PROD")
	mux            *http.ServeMux
	routes         []string
	config         config.Config
	login          LoginFlow
	dashboards     DashboardSource
	cookies        *sessionCookies
	pages          *pages
	metricsHandler http.Handler
}

func New(cfg config.Config, login LoginFlow, dashboards DashboardSource, opts ...Option) (*Server, error) {
	cookies, err := newSessionCookies(cfg.GetSessionSecret(), cfg.GetSessionMaxAge())
	if err != nil {
		return nil, fmt.Errorf("[Server New] %w", err)
	}
	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to parse templates: %w", err)
	}

	s := &Server{
		env:        cfg.GetEnv(),
		mux:        http.NewServeMux(),
		config:     cfg,
		login:      login,
		dashboards: dashboards,
		cookies:    cookies,
		pages:      pages,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Debug().Msgf("[%s] %s", color+paddedMethod+ResetColor, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
