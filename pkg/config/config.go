package config

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage drivers supported for generated assets.
const (
	StorageDriverLocal = "local"
	StorageDriverGCS   = "gcs"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Cache        CacheConfig
	Gemini       GeminiConfig
	Renderer     RendererConfig
	Storage      StorageConfig
	Certificates CertificatesConfig
	Billing      BillingConfig
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
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig governs Redis caching of reconciliation results and plan permissions.
type CacheConfig struct {
	Enabled        bool
	ProgressTTL    time.Duration
	PermissionsTTL time.Duration
}

// GeminiConfig configures the generative content client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RendererConfig points at the HTML-to-image service used for certificates.
type RendererConfig struct {
	URL     string
	UserID  string
	APIKey  string
	Timeout time.Duration
}

// StorageConfig selects where certificate images are persisted.
type StorageConfig struct {
	Driver          string
	LocalDir        string
	GCSBucket       string
	PublicBaseURL   string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// CertificatesConfig tunes the certificate render queue and maintenance sweep.
type CertificatesConfig struct {
	Workers         int
	MaxRetries      int
	RetryDelay      time.Duration
	MaintenanceCron string
	StaleAfter      time.Duration
}

// BillingConfig holds the shared secret used to verify tier-change webhooks.
type BillingConfig struct {
	WebhookSecret string
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

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
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled:        v.GetBool("ENABLE_CACHE"),
		ProgressTTL:    parseDuration(v.GetString("PROGRESS_CACHE_TTL"), 2*time.Minute),
		PermissionsTTL: parseDuration(v.GetString("PERMISSIONS_CACHE_TTL"), 15*time.Minute),
	}

	cfg.Gemini = GeminiConfig{
		APIKey:      v.GetString("GEMINI_API_KEY"),
		Model:       v.GetString("GEMINI_MODEL"),
		BaseURL:     v.GetString("GEMINI_BASE_URL"),
		Timeout:     parseDuration(v.GetString("GEMINI_TIMEOUT"), 60*time.Second),
		MaxAttempts: v.GetInt("GEMINI_MAX_ATTEMPTS"),
		BaseDelay:   parseDuration(v.GetString("GEMINI_BASE_DELAY"), 2*time.Second),
		MaxDelay:    parseDuration(v.GetString("GEMINI_MAX_DELAY"), 30*time.Second),
	}

	cfg.Renderer = RendererConfig{
		URL:     v.GetString("RENDERER_URL"),
		UserID:  v.GetString("RENDERER_USER_ID"),
		APIKey:  v.GetString("RENDERER_API_KEY"),
		Timeout: parseDuration(v.GetString("RENDERER_TIMEOUT"), 30*time.Second),
	}

	cfg.Storage = StorageConfig{
		Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LocalDir:        v.GetString("STORAGE_LOCAL_DIR"),
		GCSBucket:       v.GetString("STORAGE_GCS_BUCKET"),
		PublicBaseURL:   strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		SignedURLSecret: v.GetString("SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("SIGNED_URL_TTL"), time.Hour),
	}

	cfg.Certificates = CertificatesConfig{
		Workers:         v.GetInt("CERTIFICATE_WORKERS"),
		MaxRetries:      v.GetInt("CERTIFICATE_MAX_RETRIES"),
		RetryDelay:      parseDuration(v.GetString("CERTIFICATE_RETRY_DELAY"), 5*time.Second),
		MaintenanceCron: v.GetString("CERTIFICATE_MAINTENANCE_CRON"),
		StaleAfter:      parseDuration(v.GetString("CERTIFICATE_STALE_AFTER"), 15*time.Minute),
	}

	cfg.Billing = BillingConfig{WebhookSecret: v.GetString("BILLING_WEBHOOK_SECRET")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sql_academy")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "sql-academy")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("PROGRESS_CACHE_TTL", "2m")
	v.SetDefault("PERMISSIONS_CACHE_TTL", "15m")

	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")
	v.SetDefault("GEMINI_TIMEOUT", "60s")
	v.SetDefault("GEMINI_MAX_ATTEMPTS", 3)
	v.SetDefault("GEMINI_BASE_DELAY", "2s")
	v.SetDefault("GEMINI_MAX_DELAY", "30s")

	v.SetDefault("RENDERER_URL", "https://hcti.io/v1/image")
	v.SetDefault("RENDERER_USER_ID", "")
	v.SetDefault("RENDERER_API_KEY", "")
	v.SetDefault("RENDERER_TIMEOUT", "30s")

	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("STORAGE_LOCAL_DIR", "./assets")
	v.SetDefault("STORAGE_GCS_BUCKET", "")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("SIGNED_URL_SECRET", "dev_signed_url_secret")
	v.SetDefault("SIGNED_URL_TTL", "1h")

	v.SetDefault("CERTIFICATE_WORKERS", 2)
	v.SetDefault("CERTIFICATE_MAX_RETRIES", 3)
	v.SetDefault("CERTIFICATE_RETRY_DELAY", "5s")
	v.SetDefault("CERTIFICATE_MAINTENANCE_CRON", "*/10 * * * *")
	v.SetDefault("CERTIFICATE_STALE_AFTER", "15m")

	v.SetDefault("BILLING_WEBHOOK_SECRET", "")
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return strings.Join([]string{
		"host=" + c.Host,
		"port=" + strconv.Itoa(c.Port),
		"user=" + c.User,
		"password=" + c.Password,
		"dbname=" + c.Name,
		"sslmode=" + c.SSLMode,
	}, " ")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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
