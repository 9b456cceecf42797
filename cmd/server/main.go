package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	appauth "github.com/jw6ventures/campuscal/internal/auth"
	"github.com/jw6ventures/campuscal/internal/backend"
	"github.com/jw6ventures/campuscal/internal/calendar"
	"github.com/jw6ventures/campuscal/internal/config"
	"github.com/jw6ventures/campuscal/internal/dashboard"
	"github.com/jw6ventures/campuscal/internal/feed"
	"github.com/jw6ventures/campuscal/internal/http"
	"github.com/jw6ventures/campuscal/internal/logging"
	"github.com/jw6ventures/campuscal/internal/metrics"
	"github.com/jw6ventures/campuscal/internal/seed"
	"github.com/jw6ventures/campuscal/internal/sharetoken"
	"github.com/jw6ventures/campuscal/internal/store"
	"github.com/jw6ventures/campuscal/internal/ui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	logger := logging.New(cfg.LogLevel, os.Stdout)
	logger.Info().Str("addr", cfg.ListenAddr).Msg("starting campuscal server")
	for _, w := range cfg.Warnings {
		logger.Warn().Msg(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create db pool")
	}
	defer pool.Close()

	stor := store.New(pool)
	applied, err := stor.Migrate(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	}
	if len(applied) > 0 {
		logger.Info().Strs("versions", applied).Msg("migrations applied")
	}

	if cfg.SeedFile != "" {
		file, err := seed.Load(cfg.SeedFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load seed file")
		}
		summary, err := seed.NewSeeder(stor, logger).Apply(ctx, file)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to apply seed file")
		}
		logger.Info().
			Int("event_types", summary.EventTypes).
			Int("universities", summary.Universities).
			Int("calendars", summary.Calendars).
			Int("profiles", summary.Profiles).
			Msg("seed file applied")
	}

	norm := &calendar.Normalizer{Now: time.Now, Location: cfg.Calendar.Location}
	provider := backend.New(stor, sharetoken.NewSigner(cfg.Share.Secret))

	registry := dashboard.NewRegistry(dashboard.Deps{
		Backend:    provider,
		Normalizer: norm,
		WeekStart:  cfg.Calendar.WeekStart,
		Location:   cfg.Calendar.Location,
		BaseURL:    cfg.BaseURL,
		ShareTTL:   cfg.Share.TTL,
		Logger:     logger,
	})

	idp, err := appauth.NewOIDCProvider(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize oidc provider")
	}
	hub := appauth.NewHub()
	hub.Subscribe(registry.UserChanged)
	authService := appauth.NewService(stor.Profiles, appauth.NewSessionManager(cfg), hub, norm, idp)
	authService.OnLogout(registry.Close)
	authService.OnLogin(func(userID, sessionID string) {
		metrics.DashboardViewsEvicted("relogin", registry.Replace(userID, sessionID))
	})

	fetcher := dashboard.NewFetcher(provider, norm, cfg.Calendar.WeekStart, logger)
	feeds := feed.NewService(provider, provider, fetcher, norm, cfg.Calendar.WeekStart, cfg.Calendar.Location)

	scheduler, err := newScheduler(cfg, stor.ShareTokens, registry, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to schedule background jobs")
	}
	scheduler.Start()

	uiHandler := ui.NewHandler(cfg, stor, registry, authService, feeds, provider, norm)
	r := httpserver.NewRouter(cfg, stor, authService, uiHandler, logger)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	<-scheduler.Stop().Done()
}
