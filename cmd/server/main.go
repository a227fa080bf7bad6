package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-bank-dashboard/auth"
	"github.com/jrsteele09/go-bank-dashboard/bankapi"
	"github.com/jrsteele09/go-bank-dashboard/dashboard"
	"github.com/jrsteele09/go-bank-dashboard/internal/config"
	promcollector "github.com/jrsteele09/go-bank-dashboard/internal/metrics/prometheus"
	"github.com/jrsteele09/go-bank-dashboard/server"
	"github.com/jrsteele09/go-bank-dashboard/sessions"
	"github.com/jrsteele09/go-bank-dashboard/sessions/redisrepo"
	"github.com/jrsteele09/go-bank-dashboard/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", ".env", "file to load environment variables from")
	port := pflag.StringP("port", "p", "", "port to listen on, overrides PORT")
	pflag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatal().Err(err).Str("file", *envFile).Msg("Failed to load env file")
	}
	if *port != "" {
		_ = os.Setenv("PORT", *port)
	}

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	if err := config.Validate(c); err != nil {
		return err
	}
	displayAppname(c.GetAppName())

	handler, cleanup, err := build(context.Background(), c)
	if err != nil {
		return err
	}
	defer cleanup()

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(httpServer)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

// build wires the session store, OAuth provider, API client and HTTP server
func build(ctx context.Context, c config.Config) (http.Handler, func(), error) {
	repo, cleanup, err := newSessionRepo(c)
	if err != nil {
		return nil, nil, err
	}
	store := sessions.NewStore(repo)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := promcollector.NewPrometheusCollector("bank_dashboard")
	if err := collector.Register(registry); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	provider, err := auth.NewProvider(ctx, c, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	api := bankapi.New(bankapi.Config{
		BaseURL:  c.GetAPIURL(),
		Timeout:  c.GetAPITimeout(),
		PageSize: c.GetAPIPageSize(),
		Retry: bankapi.RetryPolicy{
			MaxAttempts: c.GetAPIMaxAttempts(),
			BaseDelay:   c.GetAPIBackoffBase(),
			MaxDelay:    c.GetAPIBackoffMax(),
		},
	}, bankapi.WithHTTPClient(&http.Client{}), bankapi.WithMetrics(collector))

	tokens := token.NewManager(store, provider, c.GetRefreshMargin(), token.WithMetrics(collector))
	srv, err := server.New(c,
		auth.NewOrchestrator(store, provider, c.GetStateTTL()),
		dashboard.NewService(tokens, api),
		server.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return srv, cleanup, nil
}

func newSessionRepo(c config.SessionConfig) (sessions.Repo, func(), error) {
	if c.GetRedisAddr() == "" {
		log.Warn().Msg("REDIS_ADDR not set, sessions are kept in memory and lost on restart")
		return sessions.NewInMemoryRepo(), func() {}, nil
	}

	sealer, err := redisrepo.NewSealerFromHex(c.GetSessionEncryptionKey())
	if err != nil {
		return nil, nil, err
	}
	rc := redisrepo.DefaultConfig()
	rc.Addr = c.GetRedisAddr()
	rc.TTL = c.GetSessionMaxAge()

	repo, err := redisrepo.New(rc, sealer)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("addr", rc.Addr).Msg("Using Redis session store")
	return repo, func() { _ = repo.Close() }, nil
}

func setupLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func listenAndServe(srv *http.Server) error {
	log.Info().Str("addr", srv.Addr).Msg("Server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
