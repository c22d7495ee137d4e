// Package config loads application configuration from environment variables.
package config

import (
	"crypto/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/bimbel/storagegw/internal/storage"
)

// Config holds all runtime configuration for the service.
type Config struct {
	Port     string
	AppEnv   string
	LogLevel string

	// JWTSecret verifies bearer tokens minted by the dashboard's session layer.
	JWTSecret string

	// DatabaseURL enables the upload ledger. Empty disables it.
	DatabaseURL string

	// Object storage (S3-compatible: MinIO locally, Cloudflare R2 in production)
	StorageDriver       string
	StorageEndpoint     string
	StorageRegion       string
	StorageBucket       string
	StorageAccessKey    string
	StorageSecretKey    string
	StorageUseSSL       bool
	StoragePathStyle    bool
	StoragePublicBase   string // browser-accessible base URL, e.g. "https://files.example.com"
	StorageEnsureBucket bool

	PresignTTL     time.Duration
	UploadMaxBytes int64

	RateLimitRPS   float64
	RateLimitBurst int

	CORSAllowedOrigins []string
	HTTPWriteTimeout   time.Duration
}

// Load reads configuration from a .env file (if present) and environment variables.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, reading from environment")
	}

	return &Config{
		Port:     getEnv("PORT", "8080"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		JWTSecret:   getEnv("JWT_SECRET", "change_me_in_production"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		StorageDriver:       getEnv("STORAGE_DRIVER", storage.DriverMinio),
		StorageEndpoint:     getEnv("STORAGE_ENDPOINT", ""),
		StorageRegion:       getEnv("STORAGE_REGION", "auto"),
		StorageBucket:       getEnv("STORAGE_BUCKET", ""),
		StorageAccessKey:    getEnv("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey:    getEnv("STORAGE_SECRET_KEY", ""),
		StorageUseSSL:       getBool("STORAGE_USE_SSL", true),
		StoragePathStyle:    getBool("STORAGE_PATH_STYLE", false),
		StoragePublicBase:   getEnv("STORAGE_PUBLIC_BASE", ""),
		StorageEnsureBucket: getBool("STORAGE_ENSURE_BUCKET", false),

		PresignTTL:     getDuration("PRESIGN_TTL", 5*time.Minute),
		UploadMaxBytes: getInt64("UPLOAD_MAX_BYTES", 100<<20),

		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: int(getInt64("RATE_LIMIT_BURST", 20)),

		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		HTTPWriteTimeout:   getDuration("HTTP_WRITE_TIMEOUT", 10*time.Minute),
	}
}

// IsProduction returns true when the app is running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Storage builds the explicit store configuration handed to storage.Open.
// The memory driver defaults its presign endpoint to this server's /_memstore
// mount. Without STORAGE_SECRET_KEY it signs with a random key that lives as
// long as the process, so call Storage once per store.
func (c *Config) Storage() storage.StoreConfig {
	sc := storage.StoreConfig{
		Driver:       c.StorageDriver,
		Endpoint:     c.StorageEndpoint,
		Region:       c.StorageRegion,
		Bucket:       c.StorageBucket,
		AccessKey:    c.StorageAccessKey,
		SecretKey:    c.StorageSecretKey,
		UseSSL:       c.StorageUseSSL,
		PathStyle:    c.StoragePathStyle,
		PublicBase:   c.StoragePublicBase,
		EnsureBucket: c.StorageEnsureBucket,
	}
	if sc.Driver == storage.DriverMemory {
		if sc.Endpoint == "" {
			sc.Endpoint = "http://localhost:" + c.Port + MemstorePath
		}
		if sc.SecretKey == "" {
			sc.SecretKey = rand.Text()
			log.Warn().Msg("STORAGE_SECRET_KEY not set, memory driver signs URLs with a per-process random key")
		}
	}
	return sc
}

// MemstorePath is where the memory driver's signed-URL endpoint is mounted.
const MemstorePath = "/_memstore"

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid boolean, using default")
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration, using default")
		return fallback
	}
	return d
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid integer, using default")
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid number, using default")
		return fallback
	}
	return f
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
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
