// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database selection, Telegram credentials,
// rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-magnet-bot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Update ingestion modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// TelegramConfig defines Bot API credentials and update-ingestion settings.
type TelegramConfig struct {
	BotToken       string        // BOT_TOKEN (required)
	AdminIDs       []int64       // ADMIN_USER_IDS, comma-separated numeric ids
	GateChannel    string        // CHANNEL_USERNAME, default subscription gate (e.g. "@mychannel")
	Mode           string        // TELEGRAM_MODE: polling|webhook
	WebhookSecret  string        // TELEGRAM_WEBHOOK_SECRET, echoed by Telegram per request
	PublicURL      string        // PUBLIC_URL, externally reachable base URL for webhook mode
	PollTimeout    time.Duration // TELEGRAM_POLL_TIMEOUT, long-poll window
	RequestTimeout time.Duration // TELEGRAM_REQUEST_TIMEOUT, per Bot API call
	SendRPS        float64       // TELEGRAM_SEND_RPS, outbound send throttle
	SendBurst      int           // TELEGRAM_SEND_BURST
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Database
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path (sqlite driver)
	DatabaseURL string // DSN (postgres driver)

	// Session store (staged rewards)
	RedisAddr     string        // empty selects the in-memory store
	RedisPassword string        // REDIS_PASSWORD
	RedisDB       int           // REDIS_DB
	SessionTTL    time.Duration // staged rewards lapse after this

	// Update dedup
	UpdateDedupTTL time.Duration // how long a processed update id is remembered

	// Ops API
	OpsAPIToken string // bearer token for /api/v1; empty leaves it open (dev)

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Telegram
	Telegram TelegramConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Database
		DBDriver:    strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:      getenv("DB_PATH", "magnet.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		// Session store
		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getint("REDIS_DB", 0),
		SessionTTL:    getdur("SESSION_TTL", 24*time.Hour),

		// Update dedup
		UpdateDedupTTL: getdur("UPDATE_DEDUP_TTL", 24*time.Hour),

		// Ops API
		OpsAPIToken: getenv("OPS_API_TOKEN", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Telegram
		Telegram: TelegramConfig{
			BotToken:       getenv("BOT_TOKEN", ""),
			AdminIDs:       splitCSVInt64(getenv("ADMIN_USER_IDS", "")),
			GateChannel:    getenv("CHANNEL_USERNAME", "@your_channel"),
			Mode:           strings.ToLower(getenv("TELEGRAM_MODE", ModePolling)),
			WebhookSecret:  getenv("TELEGRAM_WEBHOOK_SECRET", ""),
			PublicURL:      strings.TrimRight(getenv("PUBLIC_URL", ""), "/"),
			PollTimeout:    getdur("TELEGRAM_POLL_TIMEOUT", 30*time.Second),
			RequestTimeout: getdur("TELEGRAM_REQUEST_TIMEOUT", 10*time.Second),
			SendRPS:        getfloat("TELEGRAM_SEND_RPS", 25.0),
			SendBurst:      getint("TELEGRAM_SEND_BURST", 5),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-magnet-bot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	// Channel usernames need the @ prefix; numeric chat ids start with "-".
	if gc := cfg.Telegram.GateChannel; gc != "" && !strings.HasPrefix(gc, "@") && !strings.HasPrefix(gc, "-") {
		cfg.Telegram.GateChannel = "@" + gc
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL must be set when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.SessionTTL <= 0 {
		return cfg, errors.New("SESSION_TTL must be > 0")
	}
	if cfg.UpdateDedupTTL <= 0 {
		return cfg, errors.New("UPDATE_DEDUP_TTL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if strings.TrimSpace(cfg.Telegram.BotToken) == "" {
		return cfg, errors.New("BOT_TOKEN is required")
	}
	switch cfg.Telegram.Mode {
	case ModePolling:
	case ModeWebhook:
		if cfg.Telegram.PublicURL == "" {
			return cfg, errors.New("PUBLIC_URL must be set when TELEGRAM_MODE=webhook")
		}
		if cfg.Telegram.WebhookSecret == "" {
			return cfg, errors.New("TELEGRAM_WEBHOOK_SECRET must be set when TELEGRAM_MODE=webhook")
		}
	default:
		return cfg, errors.New("TELEGRAM_MODE must be one of: polling, webhook")
	}
	if cfg.Telegram.PollTimeout <= 0 || cfg.Telegram.RequestTimeout <= 0 {
		return cfg, errors.New("telegram timeouts must be positive durations")
	}
	if cfg.Telegram.SendRPS <= 0 {
		return cfg, errors.New("TELEGRAM_SEND_RPS must be > 0")
	}
	if cfg.Telegram.SendBurst < 1 {
		return cfg, errors.New("TELEGRAM_SEND_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// IsAdmin reports whether the given Telegram user id is in the configured
// administrator allowlist.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// splitCSVInt64 parses a comma-separated list of int64 ids, skipping any
// entry that does not parse.
func splitCSVInt64(s string) []int64 {
	parts := splitCSV(s)
	if len(parts) == 0 {
		return nil
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
