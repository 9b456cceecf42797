package main

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/jw6ventures/campuscal/internal/config"
	"github.com/jw6ventures/campuscal/internal/metrics"
	"github.com/jw6ventures/campuscal/internal/store"
)

const purgeTimeout = time.Minute

// cronLogger adapts zerolog to the cron.Logger interface.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

type viewEvicter interface {
	EvictIdle(idle time.Duration) int
}

// newScheduler registers the periodic removal of expired and revoked share
// tokens on cfg.Share.CleanupCron and of idle dashboard views on
// cfg.Dashboard.EvictCron.
func newScheduler(cfg *config.Config, tokens store.ShareTokenRepository, views viewEvicter, logger zerolog.Logger) (*cron.Cron, error) {
	clog := cronLogger{log: logger.With().Str("component", "cron").Logger()}
	opts := []cron.Option{
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	}
	if cfg.Calendar.Location != nil {
		opts = append(opts, cron.WithLocation(cfg.Calendar.Location))
	}
	c := cron.New(opts...)

	if _, err := c.AddFunc(cfg.Share.CleanupCron, purgeShareTokens(tokens, clog.log, time.Now)); err != nil {
		return nil, fmt.Errorf("share cleanup schedule: %w", err)
	}
	if _, err := c.AddFunc(cfg.Dashboard.EvictCron, evictIdleViews(views, cfg.Dashboard.IdleTimeout, clog.log)); err != nil {
		return nil, fmt.Errorf("dashboard eviction schedule: %w", err)
	}
	return c, nil
}

func evictIdleViews(views viewEvicter, idle time.Duration, logger zerolog.Logger) func() {
	return func() {
		n := views.EvictIdle(idle)
		metrics.DashboardViewsEvicted("idle", n)
		if n > 0 {
			logger.Debug().Int("evicted", n).Dur("idle", idle).Msg("idle dashboard views evicted")
		}
	}
}

func purgeShareTokens(tokens store.ShareTokenRepository, logger zerolog.Logger, now func() time.Time) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()

		n, err := tokens.PurgeExpired(ctx, now())
		if err != nil {
			logger.Error().Err(err).Msg("share token cleanup failed")
			return
		}
		metrics.ShareTokensPurged(n)
		if n > 0 {
			logger.Info().Int64("purged", n).Msg("share tokens purged")
		}
	}
}
