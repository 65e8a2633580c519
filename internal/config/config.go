package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Email    EmailConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
	// TrustedProxies lists proxy CIDRs whose forwarding headers are
	// honored for client IP extraction. Empty means trust no headers.
	TrustedProxies []string
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	// Backend is one of "memory", "file", "postgres".
	Backend string
	// DataDir is the file backend's data directory.
	DataDir string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type AuthConfig struct {
	// MasterKey seals TOTP secrets at rest. Hex, at least 64 chars
	// (32 bytes).
	MasterKey []byte

	TOTPIssuer string

	MaxFailedAttempts uint
	LockoutDuration   time.Duration

	SessionTimeout time.Duration
	WarningWindow  time.Duration
}

type EmailConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	masterKeyHex := getEnv("MASTER_KEY_HEX", "")
	if masterKeyHex == "" {
		return nil, fmt.Errorf("MASTER_KEY_HEX is required")
	}
	masterKey, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("MASTER_KEY_HEX must be hex: %w", err)
	}
	if len(masterKey) < 32 {
		return nil, fmt.Errorf("MASTER_KEY_HEX must decode to at least 32 bytes (got %d)", len(masterKey))
	}

	backend := getEnv("STORE_BACKEND", "file")
	switch backend {
	case "memory", "file", "postgres":
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be memory, file, or postgres (got %q)", backend)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            getEnv("ENV", "development"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
		},
		Store: StoreConfig{
			Backend: backend,
			DataDir: getEnv("DATA_DIR", "./data"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "vaultgate"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxConns:        int32(getEnvAsInt("DB_MAX_CONNS", 10)),
			MinConns:        int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
		},
		Auth: AuthConfig{
			MasterKey:         masterKey,
			TOTPIssuer:        getEnv("TOTP_ISSUER", "VaultGate"),
			MaxFailedAttempts: uint(getEnvAsInt("MAX_FAILED_ATTEMPTS", 5)),
			LockoutDuration:   getEnvAsDuration("LOCKOUT_DURATION", 5*time.Minute),
			SessionTimeout:    getEnvAsDuration("SESSION_TIMEOUT", 30*time.Minute),
			WarningWindow:     getEnvAsDuration("SESSION_WARNING_WINDOW", 60*time.Second),
		},
		Email: EmailConfig{
			Enabled:     getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		},
	}

	if backend == "postgres" && cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required for the postgres store backend")
	}
	if cfg.Email.Enabled && cfg.Email.FromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when EMAIL_ENABLED is set")
	}
	if cfg.Auth.WarningWindow >= cfg.Auth.SessionTimeout {
		return nil, fmt.Errorf("SESSION_WARNING_WINDOW must be shorter than SESSION_TIMEOUT")
	}

	return cfg, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
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

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
