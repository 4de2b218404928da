package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr         string
	StoreMode          string
	DatabaseURL        string
	JWTSecret          string
	SessionTTL         time.Duration
	PageSize           int
	SeedFile           string
	CORSAllowedOrigins []string
	LogLevel           string
	ShutdownTimeout    time.Duration
}

// ClientConfig configures cartctl and its cart engine.
type ClientConfig struct {
	ServerURL   string
	Timeout     time.Duration
	SyncTimeout time.Duration
	MaxRetries  int
	RetryBase   time.Duration
	RetryMax    time.Duration
	LogLevel    string
}

func Load() Config {
	return Config{
		ListenAddr:         getEnv("LISTEN_ADDR", ":8080"),
		StoreMode:          getEnv("STORE_MODE", "memory"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTSecret:          getEnv("JWT_SECRET", "change-this-secret"),
		SessionTTL:         getDuration("SESSION_TTL", 24*time.Hour),
		PageSize:           getInt("PAGE_SIZE", 8),
		SeedFile:           getEnv("SEED_FILE", ""),
		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func LoadClient() ClientConfig {
	return ClientConfig{
		ServerURL:   strings.TrimRight(getEnv("CARTCTL_SERVER", "http://localhost:8080"), "/"),
		Timeout:     getDuration("CARTCTL_TIMEOUT", 5*time.Second),
		SyncTimeout: getDuration("CARTCTL_SYNC_TIMEOUT", 5*time.Second),
		MaxRetries:  getInt("CARTCTL_MAX_RETRIES", 0),
		RetryBase:   getDuration("CARTCTL_RETRY_BASE", 200*time.Millisecond),
		RetryMax:    getDuration("CARTCTL_RETRY_MAX", 2*time.Second),
		LogLevel:    getEnv("LOG_LEVEL", "warn"),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// getList splits a comma separated value, dropping empty entries.
func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	out := make([]string, 0, 4)
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
