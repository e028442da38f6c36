package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/habittks/habit-tks/internal/analytics"
	"github.com/habittks/habit-tks/internal/api"
	"github.com/habittks/habit-tks/internal/cleanup"
	"github.com/habittks/habit-tks/internal/config"
	"github.com/habittks/habit-tks/internal/habit"
	"github.com/habittks/habit-tks/internal/health"
	"github.com/habittks/habit-tks/internal/metrics"
	"github.com/habittks/habit-tks/internal/notify"
	"github.com/habittks/habit-tks/internal/progression"
	"github.com/habittks/habit-tks/internal/setup"
	"github.com/habittks/habit-tks/internal/store"
	"github.com/habittks/habit-tks/internal/user"
)

var version = "dev"

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.IsDevelopment() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	log.Logger = logger

	loc, _ := cfg.Location() // validated by Load

	logger.Info().
		Str("environment", cfg.Environment).
		Int("http_port", cfg.HTTPPort).
		Str("api_addr", cfg.APIListenAddr).
		Str("db_path", cfg.DBPath).
		Str("timezone", loc.String()).
		Str("version", version).
		Msg("starting habit-tks")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	db, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	m := metrics.New()

	hub := notify.NewHub(notify.Config{
		HeartbeatInterval: cfg.HeartbeatInterval,
		MaxMissed:         cfg.HeartbeatMaxMissed,
		WriteTimeout:      cfg.WSWriteTimeout,
		DefaultUserID:     cfg.MockUserID,
		Metrics:           m,
	}, logger)

	engine := progression.NewEngine(db, progression.Options{
		Location:      loc,
		SkipThreshold: cfg.PenaltySkipThreshold,
		PenaltyWindow: cfg.PenaltyWindow,
	}, logger)

	habits := habit.NewService(db, engine, hub, habit.Options{Location: loc, Metrics: m}, logger)
	users := user.NewService(db, logger)
	setupSvc, err := setup.NewService(db, habits, users, engine, hub, m, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load habit templates")
	}

	if cfg.SeedDemoUser {
		if err := seedDemoUser(ctx, cfg.MockUserID, users, habits, setupSvc, logger); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed demo user")
		}
	}

	checker := health.NewChecker(logger)
	checker.Register("database", health.DatabaseCheck(db, logger))

	// HTTP server for the push channel, probes and metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/health", health.LivenessHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	apiServer := api.NewServer(api.ServerConfig{
		ListenAddr:  cfg.APIListenAddr,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit: api.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		MockUserID:  cfg.MockUserID,
		Development: cfg.IsDevelopment(),
		Version:     version,
	}, api.Services{
		Habits:      habits,
		Users:       users,
		Setup:       setupSvc,
		Progression: engine,
		Analytics:   analytics.NewService(db, loc, logger),
	}, checker, m, logger)

	cleaner := cleanup.NewCleaner(cleanup.CleanupConfig{
		CheckInterval: cfg.CleanupInterval,
	}, db, habits, m, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		cleaner.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("API server error")
		}
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	hub.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := apiServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("API server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("habit-tks stopped")
}

// seedDemoUser makes sure the mock account exists and has habits to work with.
func seedDemoUser(ctx context.Context, id string, users *user.Service, habits *habit.Service, setupSvc *setup.Service, logger zerolog.Logger) error {
	u, created, err := users.EnsureDemoUser(ctx, id)
	if err != nil {
		return err
	}
	active, err := habits.ListHabits(ctx, u.ID, "", true)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return nil
	}
	res, err := setupSvc.SetupAccount(ctx, u.ID)
	if err != nil {
		return err
	}
	logger.Info().
		Str("user_id", u.ID).
		Bool("created", created).
		Int("baseline_habits", len(res.BaselineHabits)).
		Msg("demo account seeded")
	return nil
}
