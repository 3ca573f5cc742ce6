package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Guard    GuardConfig
	Geo      GeoConfig
	Notify   NotifyConfig
}

type DatabaseConfig struct {
	Driver            string
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	SQLitePath        string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	// LoginRateLimit caps POST /login requests per client IP per minute.
	LoginRateLimit int
}

type AuthConfig struct {
	JWTSecret     string
	SessionTTL    time.Duration
	AdminUsername string
	AdminPassword string
	// LoginDelayFloor and LoginDelayJitter pad rejected logins.
	LoginDelayFloor  time.Duration
	LoginDelayJitter time.Duration
}

// GuardConfig tunes attempt tracking and auto-blocking.
type GuardConfig struct {
	MaxFailedAttempts     int
	CriticalAfterAttempts int
	AutoBlockDuration     string
	TrackerIdleTTL        time.Duration
	TrackerSweepInterval  time.Duration
}

type GeoConfig struct {
	CountryDBPath string
	ASNDBPath     string
}

type NotifyConfig struct {
	QueueSize      int
	Timeout        time.Duration
	TelegramAPIURL string
	RedisURL       string
	RedisStream    string
	SESRegion      string
	EmailFrom      string
	EmailTo        []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:            strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bruteguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			SQLitePath:        getEnv("SQLITE_PATH", "bruteguard.db"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			LoginRateLimit: getEnvAsInt("LOGIN_RATE_LIMIT", 30),
		},
		Auth: AuthConfig{
			JWTSecret:     jwtSecret,
			SessionTTL:    getEnvAsDuration("SESSION_TTL", time.Hour),
			AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
			AdminPassword: getEnv("ADMIN_PASSWORD", ""),

			LoginDelayFloor:  getEnvAsDuration("LOGIN_DELAY_FLOOR", 250*time.Millisecond),
			LoginDelayJitter: getEnvAsDuration("LOGIN_DELAY_JITTER", 50*time.Millisecond),
		},
		Guard: GuardConfig{
			MaxFailedAttempts:     getEnvAsInt("MAX_FAILED_ATTEMPTS", 5),
			CriticalAfterAttempts: getEnvAsInt("CRITICAL_AFTER_ATTEMPTS", 3),
			AutoBlockDuration:     getEnv("AUTO_BLOCK_DURATION", "10m"),
			TrackerIdleTTL:        getEnvAsDuration("TRACKER_IDLE_TTL", 24*time.Hour),
			TrackerSweepInterval:  getEnvAsDuration("TRACKER_SWEEP_INTERVAL", 5*time.Minute),
		},
		Geo: GeoConfig{
			CountryDBPath: getEnv("GEOIP_COUNTRY_DB", ""),
			ASNDBPath:     getEnv("GEOIP_ASN_DB", ""),
		},
		Notify: NotifyConfig{
			QueueSize:      getEnvAsInt("NOTIFY_QUEUE_SIZE", 64),
			Timeout:        getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
			TelegramAPIURL: getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			RedisURL:       getEnv("REDIS_URL", ""),
			RedisStream:    getEnv("REDIS_STREAM", "bruteguard:blocks"),
			SESRegion:      getEnv("SES_REGION", ""),
			EmailFrom:      getEnv("ALERT_EMAIL_FROM", ""),
			EmailTo:        getEnvAsList("ALERT_EMAIL_TO"),
		},
	}

	switch cfg.Database.Driver {
	case DriverPostgres:
		if cfg.Database.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD is required")
		}
	case DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}

	if cfg.Guard.MaxFailedAttempts < 1 {
		return nil, fmt.Errorf("MAX_FAILED_ATTEMPTS must be at least 1")
	}
	if cfg.Guard.CriticalAfterAttempts < 1 {
		cfg.Guard.CriticalAfterAttempts = 1
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// EmailEnabled reports whether SES alerts have enough configuration to send.
func (c *NotifyConfig) EmailEnabled() bool {
	return c.SESRegion != "" && c.EmailFrom != "" && len(c.EmailTo) > 0
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS")
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
