package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const devJWTSecret = "dev_secret"

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Auth        AuthConfig
	Storage     StorageConfig
	RateLimit   RateLimitConfig
	Maintenance MaintenanceConfig
	CORS        CORSConfig
	Log         LogConfig
}

type DatabaseConfig struct {
	// URL overrides the discrete connection fields when set.
	URL           string
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	MigrationsDir string
	AutoMigrate   bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret        string
	Issuer        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// AuthConfig governs account creation and the bootstrap admin.
type AuthConfig struct {
	AllowSignup   bool
	AdminEmail    string
	AdminPassword string
	BcryptCost    int
}

// StorageConfig controls the on-disk file store and signed download links.
type StorageConfig struct {
	Path             string
	MaxFileSizeBytes int64
	SignedURLSecret  string
	SignedURLTTL     time.Duration
}

// RateLimitConfig tunes the Redis fixed-window limiter per route group.
type RateLimitConfig struct {
	Enabled         bool
	Window          time.Duration
	AuthPerWindow   int
	UploadPerWindow int
}

// MaintenanceConfig drives the background purge of dead refresh tokens.
type MaintenanceConfig struct {
	PurgeInterval     time.Duration
	TokenRetention    time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		URL:           v.GetString("DATABASE_URL"),
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		MigrationsDir: v.GetString("MIGRATIONS_DIR"),
		AutoMigrate:   v.GetBool("AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:        v.GetString("JWT_SECRET"),
		Issuer:        v.GetString("JWT_ISSUER"),
		AccessExpiry:  parseDuration(v.GetString("ACCESS_TOKEN_EXPIRY"), 30*time.Minute),
		RefreshExpiry: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRY"), 168*time.Hour),
	}

	cfg.Auth = AuthConfig{
		AllowSignup:   v.GetBool("ALLOW_SIGNUP"),
		AdminEmail:    v.GetString("ADMIN_EMAIL"),
		AdminPassword: v.GetString("ADMIN_PASSWORD"),
		BcryptCost:    v.GetInt("BCRYPT_COST"),
	}

	maxFileSize := v.GetInt64("MAX_FILE_SIZE")
	if maxFileSize <= 0 {
		maxFileSize = 100 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		Path:             v.GetString("STORAGE_PATH"),
		MaxFileSizeBytes: maxFileSize,
		SignedURLSecret:  v.GetString("SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("SIGNED_URL_TTL"), 15*time.Minute),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:         v.GetBool("RATE_LIMIT_ENABLED"),
		Window:          parseDuration(v.GetString("RATE_LIMIT_WINDOW"), time.Minute),
		AuthPerWindow:   v.GetInt("AUTH_RATE_LIMIT"),
		UploadPerWindow: v.GetInt("UPLOAD_RATE_LIMIT"),
	}

	cfg.Maintenance = MaintenanceConfig{
		PurgeInterval:     parseDuration(v.GetString("TOKEN_PURGE_INTERVAL"), time.Hour),
		TokenRetention:    parseDuration(v.GetString("TOKEN_RETENTION"), 720*time.Hour),
		WorkerConcurrency: v.GetInt("MAINTENANCE_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("MAINTENANCE_WORKER_RETRIES"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate refuses deployments that would run production traffic on
// development secrets.
func (c *Config) validate() error {
	if c.Env != EnvProduction {
		return nil
	}
	if c.JWT.Secret == "" || c.JWT.Secret == devJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.Storage.SignedURLSecret == "" {
		return fmt.Errorf("SIGNED_URL_SECRET must be set in production")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "filerunner")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", devJWTSecret)
	v.SetDefault("JWT_ISSUER", "filerunner")
	v.SetDefault("ACCESS_TOKEN_EXPIRY", "30m")
	v.SetDefault("REFRESH_TOKEN_EXPIRY", "168h")

	v.SetDefault("ALLOW_SIGNUP", true)
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("BCRYPT_COST", 12)

	v.SetDefault("STORAGE_PATH", "./storage")
	v.SetDefault("MAX_FILE_SIZE", 100*1024*1024)
	v.SetDefault("SIGNED_URL_SECRET", "dev_signed_url_secret")
	v.SetDefault("SIGNED_URL_TTL", "15m")

	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("AUTH_RATE_LIMIT", 10)
	v.SetDefault("UPLOAD_RATE_LIMIT", 30)

	v.SetDefault("TOKEN_PURGE_INTERVAL", "1h")
	v.SetDefault("TOKEN_RETENTION", "720h")
	v.SetDefault("MAINTENANCE_WORKER_CONCURRENCY", 1)
	v.SetDefault("MAINTENANCE_WORKER_RETRIES", 3)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
