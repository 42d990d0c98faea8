package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Tracking  TrackingConfig
	Ingest    IngestConfig
	Log       LogConfig
}

type AppConfig struct {
	Port        string
	CORSOrigins []string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type AuthConfig struct {
	APIKeys   map[string]string // API key -> name/description
	JWTSecret string
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// TrackingConfig параметры учёта просмотров
type TrackingConfig struct {
	BlockTTL         time.Duration // окно блокировки повторного просмотра
	BotFragments     []string      // пусто = встроенный список
	VisitorCookie    string
	VisitorCookieTTL time.Duration
	SessionCookie    string
	SessionTTL       time.Duration
	CookieSecure     bool // Secure для visitor и session cookie (HTTPS)
}

type IngestConfig struct {
	Workers    int
	MaxRetries int
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	// .env необязателен: в контейнере всё приходит из окружения
	if err := viper.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	setDefaults()

	var cfg Config
	cfg.App.Port = viper.GetString("APP_PORT")
	cfg.App.CORSOrigins = splitList(viper.GetString("CORS_ORIGINS"))
	cfg.DB.Host = viper.GetString("DB_HOST")
	cfg.DB.Port = viper.GetString("DB_PORT")
	cfg.DB.User = viper.GetString("DB_USER")
	cfg.DB.Password = viper.GetString("DB_PASSWORD")
	cfg.DB.Name = viper.GetString("DB_NAME")
	cfg.Redis.Host = viper.GetString("REDIS_HOST")
	cfg.Redis.Port = viper.GetString("REDIS_PORT")
	cfg.Redis.Password = viper.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = viper.GetInt("REDIS_DB")

	// Auth config - parse API keys from comma-separated string
	// Format: key1:name1,key2:name2
	apiKeysRaw := viper.GetString("API_KEYS")
	cfg.Auth.APIKeys = parseAPIKeys(apiKeysRaw)
	cfg.Auth.JWTSecret = viper.GetString("JWT_SECRET")

	// Rate limit config
	cfg.RateLimit.RequestsPerSecond = viper.GetFloat64("RATE_LIMIT_RPS")
	cfg.RateLimit.BurstSize = viper.GetInt("RATE_LIMIT_BURST")

	cfg.Tracking.BlockTTL = viper.GetDuration("TRACKING_BLOCK_TTL")
	cfg.Tracking.BotFragments = splitList(viper.GetString("TRACKING_BOT_FRAGMENTS"))
	cfg.Tracking.VisitorCookie = viper.GetString("VISITOR_COOKIE")
	cfg.Tracking.VisitorCookieTTL = viper.GetDuration("VISITOR_COOKIE_TTL")
	cfg.Tracking.SessionCookie = viper.GetString("SESSION_COOKIE")
	cfg.Tracking.SessionTTL = viper.GetDuration("SESSION_TTL")
	cfg.Tracking.CookieSecure = viper.GetBool("COOKIE_SECURE")

	cfg.Ingest.Workers = viper.GetInt("INGEST_WORKERS")
	cfg.Ingest.MaxRetries = viper.GetInt("INGEST_MAX_RETRIES")

	cfg.Log.Level = viper.GetString("LOG_LEVEL")
	cfg.Log.File = viper.GetString("LOG_FILE")
	cfg.Log.MaxSizeMB = viper.GetInt("LOG_MAX_SIZE_MB")
	cfg.Log.MaxBackups = viper.GetInt("LOG_MAX_BACKUPS")
	cfg.Log.MaxAgeDays = viper.GetInt("LOG_MAX_AGE_DAYS")

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("RATE_LIMIT_RPS", 10)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("TRACKING_BLOCK_TTL", time.Hour)
	viper.SetDefault("VISITOR_COOKIE", "visitor_id")
	viper.SetDefault("VISITOR_COOKIE_TTL", 2*365*24*time.Hour)
	viper.SetDefault("SESSION_COOKIE", "session_id")
	viper.SetDefault("SESSION_TTL", 2*time.Hour)
	viper.SetDefault("COOKIE_SECURE", false)
	viper.SetDefault("INGEST_WORKERS", 3)
	viper.SetDefault("INGEST_MAX_RETRIES", 3)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_MAX_SIZE_MB", 100)
	viper.SetDefault("LOG_MAX_BACKUPS", 3)
	viper.SetDefault("LOG_MAX_AGE_DAYS", 7)
}

// parseAPIKeys parses comma-separated API keys in format "key1:name1,key2:name2"
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	if raw == "" {
		return keys
	}

	pairs := strings.Split(raw, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 {
			keys[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}

	return keys
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
