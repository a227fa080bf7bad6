package server

import "github.com/jrsteele09/go-bank-dashboard/internal/config"

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteDashboard = "/"
	RouteLogin     = "/login"
	RouteCallback  = config.CallbackPath
	RouteLogout    = "/logout"
	RouteStatic    = "/static/"

	// Operational
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
