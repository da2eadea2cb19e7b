package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // EVENT_TIMEZONE must resolve on minimal images

	"github.com/joho/godotenv"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Meetup   MeetupConfig
	SwissRPG SwissRPGConfig
	Sync     SyncConfig
	Flow     FlowConfig
	Auth     AuthConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// ShutdownGrace bounds how long in-flight reconciliation and scheduling
	// work may run after a shutdown signal.
	ShutdownGrace time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds the canonical store connection settings.
type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

// RedisConfig holds the key-value store connection settings.
type RedisConfig struct {
	URL string
}

// MeetupConfig configures the Source A adapter and its OAuth2 credentials.
type MeetupConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	// OrganizerID is the principal whose token is used for syncing and cloning.
	OrganizerID string
	Groups      []string
}

// Enabled reports whether enough is configured to talk to Meetup.
func (c MeetupConfig) Enabled() bool {
	return c.BaseURL != "" && c.ClientID != "" && len(c.Groups) > 0
}

// SwissRPGConfig configures the Source B adapter.
type SwissRPGConfig struct {
	BaseURL  string
	APIToken string
}

// Enabled reports whether enough is configured to talk to SwissRPG.
func (c SwissRPGConfig) Enabled() bool {
	return c.BaseURL != "" && c.APIToken != ""
}

// SyncConfig holds the recurring sync schedule.
type SyncConfig struct {
	Interval           time.Duration
	Timeout            time.Duration
	MeetupOffset       time.Duration
	SwissRPGOffset     time.Duration
	FreeSpotsOffset    time.Duration
	TokenRefreshOffset time.Duration
	RateLimit          time.Duration
}

// FlowConfig holds the schedule-session flow settings.
type FlowConfig struct {
	TTL             time.Duration
	BaseURL         string
	TimeZone        *time.Location
	DefaultDuration time.Duration
}

// AuthConfig holds the internal API token settings.
type AuthConfig struct {
	JWTSecret     string
	TokenDuration time.Duration
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultShutdownGrace   = 20 * time.Second

	defaultLogFormat = "json"

	defaultMaxConnections = 20
	defaultRedisURL       = "redis://localhost:6379/0"
	defaultMeetupBaseURL  = "https://api.meetup.com"
	defaultMeetupTokenURL = "https://secure.meetup.com/oauth2/access"
	defaultOrganizerID    = "organizer"

	defaultSyncInterval       = 15 * time.Minute
	defaultSyncTimeout        = 6 * time.Minute
	defaultMeetupOffset       = 15 * time.Minute
	defaultSwissRPGOffset     = 20 * time.Minute
	defaultFreeSpotsOffset    = 25 * time.Minute
	defaultTokenRefreshOffset = 10 * time.Minute
	defaultRateLimit          = time.Second

	defaultFlowTTL         = 10 * time.Minute
	defaultFlowBaseURL     = "http://localhost:8080"
	defaultTimeZone        = "Europe/Zurich"
	defaultSessionDuration = 4 * time.Hour

	defaultJWTSecret     = "change-this-secret"
	defaultTokenDuration = 24 * time.Hour
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided. A .env file in the working directory is loaded
// first when present; variables already set in the environment win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	// PORT is set by most container platforms, SERVER_PORT is for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
			ShutdownGrace:   defaultShutdownGrace,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL:            buildDatabaseURL(),
			MaxConnections: defaultMaxConnections,
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", defaultRedisURL),
		},
		Meetup: MeetupConfig{
			BaseURL:      getEnv("MEETUP_BASE_URL", defaultMeetupBaseURL),
			TokenURL:     getEnv("MEETUP_TOKEN_URL", defaultMeetupTokenURL),
			ClientID:     os.Getenv("MEETUP_CLIENT_ID"),
			ClientSecret: os.Getenv("MEETUP_CLIENT_SECRET"),
			OrganizerID:  getEnv("MEETUP_ORGANIZER_ID", defaultOrganizerID),
			Groups:       splitList(os.Getenv("MEETUP_GROUPS")),
		},
		SwissRPG: SwissRPGConfig{
			BaseURL:  os.Getenv("SWISSRPG_BASE_URL"),
			APIToken: os.Getenv("SWISSRPG_API_TOKEN"),
		},
		Sync: SyncConfig{
			Interval:           defaultSyncInterval,
			Timeout:            defaultSyncTimeout,
			MeetupOffset:       defaultMeetupOffset,
			SwissRPGOffset:     defaultSwissRPGOffset,
			FreeSpotsOffset:    defaultFreeSpotsOffset,
			TokenRefreshOffset: defaultTokenRefreshOffset,
			RateLimit:          defaultRateLimit,
		},
		Flow: FlowConfig{
			TTL:             defaultFlowTTL,
			BaseURL:         strings.TrimRight(getEnv("FLOW_BASE_URL", defaultFlowBaseURL), "/"),
			DefaultDuration: defaultSessionDuration,
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("API_JWT_SECRET", defaultJWTSecret),
			TokenDuration: defaultTokenDuration,
		},
	}

	durations := []struct {
		key  string
		unit time.Duration
		dst  *time.Duration
	}{
		{"SERVER_READ_TIMEOUT_SECONDS", time.Second, &cfg.Server.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT_SECONDS", time.Second, &cfg.Server.WriteTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT_SECONDS", time.Second, &cfg.Server.ShutdownTimeout},
		{"SHUTDOWN_GRACE_SECONDS", time.Second, &cfg.Server.ShutdownGrace},
		{"SYNC_INTERVAL_MINUTES", time.Minute, &cfg.Sync.Interval},
		{"SYNC_TIMEOUT_SECONDS", time.Second, &cfg.Sync.Timeout},
		{"SYNC_MEETUP_OFFSET_MINUTES", time.Minute, &cfg.Sync.MeetupOffset},
		{"SYNC_SWISSRPG_OFFSET_MINUTES", time.Minute, &cfg.Sync.SwissRPGOffset},
		{"SYNC_FREE_SPOTS_OFFSET_MINUTES", time.Minute, &cfg.Sync.FreeSpotsOffset},
		{"SYNC_TOKEN_REFRESH_OFFSET_MINUTES", time.Minute, &cfg.Sync.TokenRefreshOffset},
		{"SYNC_RATE_LIMIT_MS", time.Millisecond, &cfg.Sync.RateLimit},
		{"FLOW_TTL_SECONDS", time.Second, &cfg.Flow.TTL},
		{"SESSION_DEFAULT_DURATION_MINUTES", time.Minute, &cfg.Flow.DefaultDuration},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		n, err := parseNonNegative(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = time.Duration(n) * d.unit
	}

	if cfg.Sync.Interval == 0 {
		return Config{}, fmt.Errorf("invalid SYNC_INTERVAL_MINUTES: must be positive")
	}
	if cfg.Flow.TTL == 0 {
		return Config{}, fmt.Errorf("invalid FLOW_TTL_SECONDS: must be positive")
	}

	if v := os.Getenv("DATABASE_MAX_CONNECTIONS"); v != "" {
		n, err := parseNonNegative(v)
		if err != nil || n == 0 {
			return Config{}, fmt.Errorf("invalid DATABASE_MAX_CONNECTIONS: must be a positive integer")
		}
		cfg.Database.MaxConnections = n
	}

	loc, err := time.LoadLocation(getEnv("EVENT_TIMEZONE", defaultTimeZone))
	if err != nil {
		return Config{}, fmt.Errorf("invalid EVENT_TIMEZONE: %w", err)
	}
	cfg.Flow.TimeZone = loc

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	return cfg, nil
}

// buildDatabaseURL prefers DATABASE_URL and otherwise assembles a keyword/value
// connection string from DB_HOST, DB_USER, DB_PASSWORD and DB_NAME.
func buildDatabaseURL() string {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL
	}

	host, user, name := os.Getenv("DB_HOST"), os.Getenv("DB_USER"), os.Getenv("DB_NAME")
	if host == "" || user == "" || name == "" {
		return ""
	}

	parts := []string{"host=" + host, "user=" + user, "dbname=" + name}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		parts = append(parts, "password="+password)
	}
	parts = append(parts, "sslmode="+getEnv("DB_SSLMODE", "disable"))
	return strings.Join(parts, " ")
}

func parseNonNegative(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
