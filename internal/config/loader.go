package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures environment driven configuration values for the booking service.
type Config struct {
	HTTPPort      int
	SQLitePath    string
	SessionSecret string
	SessionTTL    time.Duration
	CookieSecure  bool

	// Timezone is the business zone in which "today" is decided.
	Timezone *time.Location

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CodeTTL       time.Duration
	AppURL        string
	DefaultLocale string
	SMTP          SMTPConfig
	MailQueueSize int
}

// SMTPConfig holds the outbound mail relay settings. An empty Host means mail
// is logged instead of sent.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether an SMTP relay is configured.
func (c SMTPConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

// Load reads an optional .env file (or the file named by BOOKING_ENV_FILE)
// and then parses the process environment. Variables already set in the
// environment win over the file.
func Load() (Config, error) {
	if err := LoadEnvFile(); err != nil {
		return Config{}, err
	}
	return FromEnv(os.Getenv)
}

// LoadEnvFile copies the .env file (or BOOKING_ENV_FILE) into the process
// environment. A missing default .env is not an error.
func LoadEnvFile() error {
	path := strings.TrimSpace(os.Getenv("BOOKING_ENV_FILE"))
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}

// FromEnv builds a Config from lookup, applying defaults for optional keys.
// Missing and invalid keys are reported together.
func FromEnv(lookup func(string) string) (Config, error) {
	cfg := Config{
		HTTPPort:      8080,
		SQLitePath:    "booking.db",
		SessionTTL:    24 * time.Hour,
		CookieSecure:  true,
		CodeTTL:       time.Hour,
		AppURL:        "http://localhost:8080",
		DefaultLocale: "es",
		MailQueueSize: 64,
		SMTP:          SMTPConfig{Port: 587},
	}

	env := envReader{lookup: lookup}

	cfg.HTTPPort = env.positiveInt("BOOKING_HTTP_PORT", cfg.HTTPPort)
	cfg.SQLitePath = env.str("BOOKING_SQLITE_DSN", cfg.SQLitePath)
	cfg.SessionSecret = env.required("BOOKING_SESSION_SECRET")
	cfg.SessionTTL = env.duration("BOOKING_SESSION_TTL", cfg.SessionTTL)
	cfg.CookieSecure = env.boolean("BOOKING_COOKIE_SECURE", cfg.CookieSecure)

	zone := env.str("BOOKING_TIMEZONE", "Europe/Madrid")
	loc, err := time.LoadLocation(zone)
	if err != nil {
		env.invalid = append(env.invalid, "BOOKING_TIMEZONE")
	}
	cfg.Timezone = loc

	cfg.RedisAddr = env.str("BOOKING_REDIS_ADDR", "")
	cfg.RedisPassword = env.str("BOOKING_REDIS_PASSWORD", "")
	cfg.RedisDB = env.nonNegativeInt("BOOKING_REDIS_DB", 0)

	cfg.CodeTTL = env.duration("BOOKING_CODE_TTL", cfg.CodeTTL)
	cfg.AppURL = strings.TrimRight(env.str("BOOKING_APP_URL", cfg.AppURL), "/")
	cfg.DefaultLocale = strings.ToLower(env.str("BOOKING_DEFAULT_LOCALE", cfg.DefaultLocale))
	if cfg.DefaultLocale != "es" && cfg.DefaultLocale != "en" {
		env.invalid = append(env.invalid, "BOOKING_DEFAULT_LOCALE")
	}
	cfg.MailQueueSize = env.positiveInt("BOOKING_MAIL_QUEUE_SIZE", cfg.MailQueueSize)

	cfg.SMTP.Host = env.str("BOOKING_SMTP_HOST", "")
	cfg.SMTP.Port = env.positiveInt("BOOKING_SMTP_PORT", cfg.SMTP.Port)
	cfg.SMTP.Username = env.str("BOOKING_SMTP_USER", "")
	cfg.SMTP.Password = env.str("BOOKING_SMTP_PASS", "")
	cfg.SMTP.From = env.str("BOOKING_SMTP_FROM", "")
	if cfg.SMTP.Enabled() && cfg.SMTP.From == "" {
		env.missing = append(env.missing, "BOOKING_SMTP_FROM")
	}

	if len(env.missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(env.missing, ", "))
	}
	if len(env.invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variables: %s", strings.Join(env.invalid, ", "))
	}

	return cfg, nil
}

type envReader struct {
	lookup  func(string) string
	missing []string
	invalid []string
}

func (e *envReader) get(key string) string {
	if e.lookup == nil {
		return ""
	}
	return strings.TrimSpace(e.lookup(key))
}

func (e *envReader) str(key, fallback string) string {
	if value := e.get(key); value != "" {
		return value
	}
	return fallback
}

func (e *envReader) required(key string) string {
	value := e.get(key)
	if value == "" {
		e.missing = append(e.missing, key)
	}
	return value
}

func (e *envReader) positiveInt(key string, fallback int) int {
	value := e.get(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		e.invalid = append(e.invalid, key)
		return fallback
	}
	return n
}

func (e *envReader) nonNegativeInt(key string, fallback int) int {
	value := e.get(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		e.invalid = append(e.invalid, key)
		return fallback
	}
	return n
}

func (e *envReader) boolean(key string, fallback bool) bool {
	value := e.get(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		e.invalid = append(e.invalid, key)
		return fallback
	}
	return b
}

// duration accepts a Go duration in key or whole seconds in key_SECONDS.
func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	if value := e.get(key); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			e.invalid = append(e.invalid, key)
			return fallback
		}
		return d
	}
	if value := e.get(key + "_SECONDS"); value != "" {
		secs, err := strconv.Atoi(value)
		if err != nil || secs <= 0 {
			e.invalid = append(e.invalid, key+"_SECONDS")
			return fallback
		}
		return time.Duration(secs) * time.Second
	}
	return fallback
}
