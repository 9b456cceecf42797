package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jw6ventures/campuscal/internal/config"
	"github.com/jw6ventures/campuscal/internal/store"
)

type fakeShareTokens struct {
	store.ShareTokenRepository
	purged int64
	err    error
	gotNow time.Time
}

func (f *fakeShareTokens) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	f.gotNow = now
	return f.purged, f.err
}

func TestPurgeShareTokens(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	testCases := []struct {
		name    string
		repo    *fakeShareTokens
		wantLog string
	}{
		{name: "purged rows are logged", repo: &fakeShareTokens{purged: 3}, wantLog: "share tokens purged"},
		{name: "nothing to purge stays quiet", repo: &fakeShareTokens{}},
		{name: "failure is logged", repo: &fakeShareTokens{err: errors.New("db down")}, wantLog: "share token cleanup failed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			purgeShareTokens(tc.repo, zerolog.New(&buf), func() time.Time { return now })()

			if !tc.repo.gotNow.Equal(now) {
				t.Errorf("PurgeExpired called with %v, want %v", tc.repo.gotNow, now)
			}
			if tc.wantLog == "" && buf.Len() != 0 {
				t.Errorf("unexpected log output: %s", buf.String())
			}
			if tc.wantLog != "" && !strings.Contains(buf.String(), tc.wantLog) {
				t.Errorf("log %q missing %q", buf.String(), tc.wantLog)
			}
		})
	}
}

type fakeViews struct {
	evicted int
	gotIdle time.Duration
}

func (f *fakeViews) EvictIdle(idle time.Duration) int {
	f.gotIdle = idle
	return f.evicted
}

func TestEvictIdleViews(t *testing.T) {
	var buf bytes.Buffer
	views := &fakeViews{evicted: 4}
	evictIdleViews(views, 2*time.Hour, zerolog.New(&buf))()

	if views.gotIdle != 2*time.Hour {
		t.Errorf("EvictIdle called with %v, want 2h", views.gotIdle)
	}
	if !strings.Contains(buf.String(), "idle dashboard views evicted") {
		t.Errorf("log %q missing eviction line", buf.String())
	}

	buf.Reset()
	evictIdleViews(&fakeViews{}, time.Hour, zerolog.New(&buf))()
	if buf.Len() != 0 {
		t.Errorf("unexpected log output: %s", buf.String())
	}
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	testCases := []struct {
		name        string
		cleanupCron string
		evictCron   string
		wantErr     bool
	}{
		{name: "valid", cleanupCron: "@hourly", evictCron: "@every 10m"},
		{name: "bad cleanup spec", cleanupCron: "every tuesday", evictCron: "@every 10m", wantErr: true},
		{name: "bad eviction spec", cleanupCron: "@hourly", evictCron: "sometimes", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Share.CleanupCron = tc.cleanupCron
			cfg.Dashboard.EvictCron = tc.evictCron
			cfg.Dashboard.IdleTimeout = time.Hour

			c, err := newScheduler(cfg, &fakeShareTokens{}, &fakeViews{}, zerolog.Nop())
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error for an invalid cron spec")
				}
				return
			}
			if err != nil {
				t.Fatalf("newScheduler() error = %v", err)
			}
			if len(c.Entries()) != 2 {
				t.Errorf("entries = %d, want 2", len(c.Entries()))
			}
		})
	}
}
