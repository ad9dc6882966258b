package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	EmailProviderConsole  = "console"
	EmailProviderSendgrid = "sendgrid"
)

type Config struct {
	Env           string
	Port          int
	APIPrefix     string
	PublicBaseURL string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Cache    CacheConfig
	Essays   EssaysConfig
	Email    EmailConfig
	AI       AIConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret       string
	Issuer       string
	Expiration   time.Duration
	FileTokenTTL time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig toggles the Redis-backed read cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// EssaysConfig controls essay uploads, artifact storage and downstream timeouts.
type EssaysConfig struct {
	StorageDir         string
	MaxUploadBytes     int64
	AllowedMIMEs       []string
	SignedURLSecret    string
	SignedURLTTL       time.Duration
	RenderTimeout      time.Duration
	DispatchTimeout    time.Duration
	MaxAnnulmentReason int
}

// EmailConfig selects the dispatcher used for corrected essays.
type EmailConfig struct {
	Provider       string
	SendgridAPIKey string
	FromName       string
	FromAddress    string
	Signature      string
}

// AIConfig gates the AI-assisted correction suggestion adjunct.
type AIConfig struct {
	Enabled    bool
	Provider   string
	MaxRawText int
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
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.PublicBaseURL = strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:       v.GetString("JWT_SECRET"),
		Issuer:       v.GetString("JWT_ISSUER"),
		Expiration:   parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		FileTokenTTL: parseDuration(v.GetString("FILE_TOKEN_TTL"), 5*time.Minute),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
	}

	maxUpload := v.GetInt64("ESSAYS_MAX_UPLOAD_BYTES")
	if maxUpload <= 0 {
		maxUpload = 15 * 1024 * 1024
	}
	cfg.Essays = EssaysConfig{
		StorageDir:         v.GetString("ESSAYS_STORAGE_DIR"),
		MaxUploadBytes:     maxUpload,
		AllowedMIMEs:       splitAndTrim(v.GetString("ESSAYS_ALLOWED_MIME_TYPES")),
		SignedURLSecret:    v.GetString("ESSAYS_SIGNED_URL_SECRET"),
		SignedURLTTL:       parseDuration(v.GetString("ESSAYS_SIGNED_URL_TTL"), 7*24*time.Hour),
		RenderTimeout:      parseDuration(v.GetString("ESSAYS_RENDER_TIMEOUT"), 30*time.Second),
		DispatchTimeout:    parseDuration(v.GetString("ESSAYS_DISPATCH_TIMEOUT"), 15*time.Second),
		MaxAnnulmentReason: v.GetInt("ESSAYS_MAX_ANNULMENT_REASONS"),
	}

	cfg.Email = EmailConfig{
		Provider:       strings.ToLower(v.GetString("EMAIL_PROVIDER")),
		SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromName:       v.GetString("EMAIL_FROM_NAME"),
		FromAddress:    v.GetString("EMAIL_FROM_ADDRESS"),
		Signature:      v.GetString("EMAIL_SIGNATURE"),
	}

	cfg.AI = AIConfig{
		Enabled:    v.GetBool("ENABLE_AI_CORRECTION"),
		Provider:   v.GetString("AI_PROVIDER"),
		MaxRawText: v.GetInt("AI_MAX_RAW_TEXT"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "essay_correction")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "essay-correction-api")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("FILE_TOKEN_TTL", "5m")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "5m")

	v.SetDefault("ESSAYS_STORAGE_DIR", "./essays")
	v.SetDefault("ESSAYS_MAX_UPLOAD_BYTES", 15*1024*1024)
	v.SetDefault("ESSAYS_ALLOWED_MIME_TYPES", "application/pdf,image/jpeg,image/png")
	v.SetDefault("ESSAYS_SIGNED_URL_SECRET", "dev_essays_secret")
	v.SetDefault("ESSAYS_SIGNED_URL_TTL", "168h")
	v.SetDefault("ESSAYS_RENDER_TIMEOUT", "30s")
	v.SetDefault("ESSAYS_DISPATCH_TIMEOUT", "15s")
	v.SetDefault("ESSAYS_MAX_ANNULMENT_REASONS", 5)

	v.SetDefault("EMAIL_PROVIDER", EmailProviderConsole)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("EMAIL_FROM_NAME", "Correção de Redações")
	v.SetDefault("EMAIL_FROM_ADDRESS", "no-reply@localhost")
	v.SetDefault("EMAIL_SIGNATURE", "Equipe de Correção")

	v.SetDefault("ENABLE_AI_CORRECTION", false)
	v.SetDefault("AI_PROVIDER", "mock")
	v.SetDefault("AI_MAX_RAW_TEXT", 12000)
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
