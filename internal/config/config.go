package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers understood by DatabaseConfig.Driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Postgres     PostgresConfig
	SQLite       SQLiteConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Mail         MailConfig
	Storage      StorageConfig
	HTTP         HTTPConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name    string
	Env     string
	Host    string
	Port    string
	Version string
}

// DatabaseConfig selects the persistence backend.
type DatabaseConfig struct {
	Driver string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// SQLiteConfig configures the embedded store.
type SQLiteConfig struct {
	DSN string
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret       string
	TokenTTLMinutes int
	BcryptCost      int
}

// NotificationConfig controls the fan-out of in-app and email notices.
type NotificationConfig struct {
	// AppURL prefixes ticket links in outgoing email.
	AppURL       string
	EmailEnabled bool
}

// MailConfig configures outbound email.
type MailConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	SubjectPrefix  string
	UseOutbox      bool
	QueueKey       string
	DeadLetterKey  string
	RetryAttempts  int
	RetryInitialMS int
	RetryMaxMS     int
	SendTimeoutSec int
	WorkerPollSec  int
}

// StorageConfig configures attachment storage.
type StorageConfig struct {
	UploadDir      string
	PublicPrefix   string
	MaxUploadBytes int64
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	AllowedOrigins        string
	RequestTimeoutSeconds int
}

// Load reads configuration from environment variables, applying defaults
// where possible. envFile is optional; a missing file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	driver := strings.ToLower(getEnv("DB_DRIVER", DriverPostgres))
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("invalid DB_DRIVER %q", driver)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "taskpilot"),
			Env:     getEnv("APP_ENV", "development"),
			Host:    getEnv("APP_HOST", "0.0.0.0"),
			Port:    getEnv("APP_PORT", "8080"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Database: DatabaseConfig{
			Driver: driver,
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		SQLite: SQLiteConfig{
			DSN: getEnv("SQLITE_DSN", "file:taskpilot.db?cache=shared"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("AUTH_JWT_SECRET", "dev-secret"),
			TokenTTLMinutes: getEnvAsInt("AUTH_TOKEN_TTL_MINUTES", 30*24*60),
			BcryptCost:      getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			AppURL:       strings.TrimRight(getEnv("NOTIFY_APP_URL", "http://localhost:3000"), "/"),
			EmailEnabled: getEnvAsBool("NOTIFY_EMAIL_ENABLED", true),
		},
		Mail: MailConfig{
			Host:           os.Getenv("MAIL_HOST"),
			Port:           getEnvAsInt("MAIL_PORT", 587),
			Username:       os.Getenv("MAIL_USERNAME"),
			Password:       os.Getenv("MAIL_PASSWORD"),
			From:           getEnv("MAIL_FROM", "noreply@taskpilot.local"),
			SubjectPrefix:  getEnv("MAIL_SUBJECT_PREFIX", "[TaskPilot]"),
			UseOutbox:      getEnvAsBool("MAIL_USE_OUTBOX", true),
			QueueKey:       getEnv("MAIL_QUEUE_KEY", "taskpilot:mail:outbox"),
			DeadLetterKey:  getEnv("MAIL_DEAD_LETTER_KEY", "taskpilot:mail:dead"),
			RetryAttempts:  getEnvAsInt("MAIL_RETRY_ATTEMPTS", 3),
			RetryInitialMS: getEnvAsInt("MAIL_RETRY_INITIAL_MS", 500),
			RetryMaxMS:     getEnvAsInt("MAIL_RETRY_MAX_MS", 10000),
			SendTimeoutSec: getEnvAsInt("MAIL_SEND_TIMEOUT_SECONDS", 15),
			WorkerPollSec:  getEnvAsInt("MAIL_WORKER_POLL_SECONDS", 5),
		},
		Storage: StorageConfig{
			UploadDir:      getEnv("STORAGE_UPLOAD_DIR", "uploads"),
			PublicPrefix:   getEnv("STORAGE_PUBLIC_PREFIX", "/uploads"),
			MaxUploadBytes: int64(getEnvAsInt("STORAGE_MAX_UPLOAD_BYTES", 5<<20)),
		},
		HTTP: HTTPConfig{
			AllowedOrigins:        getEnv("HTTP_ALLOWED_ORIGINS", "*"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsDevelopment reports whether error responses may carry stack traces.
func (a AppConfig) IsDevelopment() bool {
	return strings.EqualFold(a.Env, "development")
}

// RequestTimeout returns the configured request timeout duration.
func (h HTTPConfig) RequestTimeout() time.Duration {
	if h.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(h.RequestTimeoutSeconds) * time.Second
}

// TokenTTL returns the bearer token lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

// SMTPEnabled reports whether a relay host is configured.
func (m MailConfig) SMTPEnabled() bool {
	return m.Host != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
