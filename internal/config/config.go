package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string
	BaseURL    string

	DB struct {
		DSN string
	}

	OAuth struct {
		ClientID     string
		ClientSecret string
		IssuerURL    string
		RedirectPath string
	}

	Session struct {
		Secret string
	}

	Share struct {
		Secret      string
		TTL         time.Duration
		CleanupCron string
	}

	Calendar struct {
		Location  *time.Location
		WeekStart time.Weekday
	}

	Dashboard struct {
		IdleTimeout time.Duration
		EvictCron   string
	}

	LogLevel          string
	SeedFile          string
	PrometheusEnabled bool
	TrustedProxies    []string

	// Warnings collects non-fatal configuration problems for the caller to log.
	Warnings []string
}

// source resolves a key from the environment first and the optional YAML
// overlay second.
type source struct {
	file map[string]string
}

func (s source) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) getDefault(key, def string) string {
	if v := s.get(key); v != "" {
		return v
	}
	return def
}

func (s source) getBool(key string, def bool) bool {
	if v := s.get(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func (s source) getList(key string) []string {
	if v := s.get(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}

func (s source) getDuration(key string, def time.Duration) (time.Duration, error) {
	v := s.get(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

// Load reads configuration from the environment, falling back to the YAML
// file named by APP_CONFIG_FILE for keys the environment leaves unset.
func Load() (*Config, error) {
	src := source{}
	if path := os.Getenv("APP_CONFIG_FILE"); path != "" {
		file, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = file
	}
	return load(src)
}

func load(src source) (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = src.getDefault("APP_LISTEN_ADDR", ":8080")
	cfg.BaseURL = strings.TrimRight(src.getDefault("APP_BASE_URL", "http://localhost:8080"), "/")
	cfg.DB.DSN = src.get("APP_DB_DSN")

	if cfg.DB.DSN == "" {
		host := src.get("APP_DB_HOST")
		name := src.get("APP_DB_NAME")
		user := src.get("APP_DB_USER")
		password := src.get("APP_DB_PASSWORD")
		port := src.getDefault("APP_DB_PORT", "5432")
		sslmode := src.getDefault("APP_DB_SSLMODE", "disable")

		if host != "" && name != "" && user != "" && password != "" {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		}
	}

	cfg.OAuth.ClientID = src.get("APP_OAUTH_CLIENT_ID")
	cfg.OAuth.ClientSecret = src.get("APP_OAUTH_CLIENT_SECRET")
	cfg.OAuth.IssuerURL = src.get("APP_OAUTH_ISSUER_URL")
	cfg.OAuth.RedirectPath = src.getDefault("APP_OAUTH_REDIRECT_PATH", "/auth/callback")
	cfg.Session.Secret = src.get("APP_SESSION_SECRET")
	cfg.Share.Secret = src.getDefault("APP_SHARE_SECRET", cfg.Session.Secret)
	cfg.Share.CleanupCron = src.getDefault("APP_SHARE_CLEANUP_CRON", "@hourly")
	cfg.LogLevel = src.getDefault("APP_LOG_LEVEL", "info")
	cfg.SeedFile = src.get("APP_SEED_FILE")
	cfg.PrometheusEnabled = src.getBool("APP_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.TrustedProxies = src.getList("APP_TRUSTED_PROXIES")

	ttl, err := src.getDuration("APP_SHARE_TTL", 720*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.Share.TTL = ttl

	idle, err := src.getDuration("APP_DASHBOARD_IDLE_TIMEOUT", 2*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.Dashboard.IdleTimeout = idle
	cfg.Dashboard.EvictCron = src.getDefault("APP_DASHBOARD_EVICT_CRON", "@every 10m")

	loc, err := time.LoadLocation(src.getDefault("APP_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	cfg.Calendar.Location = loc

	weekStart, err := parseWeekStart(src.getDefault("APP_WEEK_START", "sunday"))
	if err != nil {
		return nil, err
	}
	cfg.Calendar.WeekStart = weekStart

	if cfg.DB.DSN == "" {
		return nil, errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}
	if cfg.OAuth.ClientID == "" || cfg.OAuth.ClientSecret == "" {
		return nil, fmt.Errorf("oauth configuration is required: client id and secret")
	}
	if cfg.OAuth.IssuerURL == "" {
		return nil, errors.New("APP_OAUTH_ISSUER_URL is required")
	}
	if cfg.Session.Secret == "" {
		return nil, errors.New("APP_SESSION_SECRET is required")
	}
	if len(cfg.Session.Secret) < 32 {
		return nil, fmt.Errorf("APP_SESSION_SECRET must be at least 32 characters long (got %d)", len(cfg.Session.Secret))
	}
	if len(cfg.Share.Secret) < 32 {
		return nil, fmt.Errorf("APP_SHARE_SECRET must be at least 32 characters long (got %d)", len(cfg.Share.Secret))
	}

	if len(cfg.TrustedProxies) == 0 {
		cfg.Warnings = append(cfg.Warnings, "no APP_TRUSTED_PROXIES configured; client addresses from any proxy are trusted")
	}

	return cfg, nil
}

func parseWeekStart(v string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	}
	return 0, fmt.Errorf("APP_WEEK_START must be sunday or monday (got %q)", v)
}

// readFile loads a flat YAML mapping of configuration keys. Sequences are
// joined with commas so list keys read the same as their env form.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	out := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
		case string:
			out[key] = v
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out, nil
}
