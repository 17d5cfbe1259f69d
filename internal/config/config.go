package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends selectable with STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
)

// Config holds runtime configuration for the consume server.
type Config struct {
	ListenAddr         string
	AdminToken         string
	CORSAllowedOrigins []string

	StorageBackend  string
	StorageRoot     string
	MemoryBlobLimit int64
	DatabaseURL     string
	S3              S3Config

	MaxBodyBytes          int64
	MaxConcurrentConsumes int64

	RateLimitWindow   time.Duration
	RateLimitBuffered int
	RateLimitBlob     int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	ShutdownTimeout  time.Duration
}

type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

func Load() (Config, error) {
	defaultCORSOrigins := []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	cfg := Config{
		ListenAddr:            getenv("LISTEN_ADDR", ":8080"),
		AdminToken:            getenv("ADMIN_TOKEN", "dev-admin-token"),
		StorageBackend:        strings.ToLower(getenv("STORAGE_BACKEND", BackendMemory)),
		StorageRoot:           getenv("STORAGE_ROOT", "./data"),
		MemoryBlobLimit:       getenvInt64("MEMORY_BLOB_LIMIT", 8*1024*1024),
		DatabaseURL:           getenv("DATABASE_URL", ""),
		MaxBodyBytes:          getenvInt64("MAX_BODY_BYTES", 128*1024*1024),
		MaxConcurrentConsumes: getenvInt64("MAX_CONCURRENT_CONSUMES", 64),
		RateLimitWindow:       getenvDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitBuffered:     getenvInt("RATE_LIMIT_BUFFERED", 600),
		RateLimitBlob:         getenvInt("RATE_LIMIT_BLOB", 60),
		HTTPReadTimeout:       getenvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		HTTPWriteTimeout:      getenvDuration("HTTP_WRITE_TIMEOUT", 60*time.Second),
		HTTPIdleTimeout:       getenvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:       getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		S3: S3Config{
			Bucket:          getenv("S3_BUCKET", ""),
			Prefix:          getenv("S3_PREFIX", "bodies"),
			Region:          getenv("S3_REGION", "us-east-1"),
			Endpoint:        getenv("S3_ENDPOINT", ""),
			AccessKeyID:     getenv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getenv("S3_SECRET_ACCESS_KEY", ""),
			ForcePathStyle:  getenvBool("S3_FORCE_PATH_STYLE", false),
		},
	}
	cfg.CORSAllowedOrigins = parseList(getenv("CORS_ALLOWED_ORIGINS", strings.Join(defaultCORSOrigins, ",")))
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = defaultCORSOrigins
	}

	if strings.TrimSpace(cfg.AdminToken) == "" {
		return Config{}, fmt.Errorf("ADMIN_TOKEN cannot be empty")
	}
	switch cfg.StorageBackend {
	case BackendMemory:
	case BackendLocal:
		if strings.TrimSpace(cfg.StorageRoot) == "" {
			return Config{}, fmt.Errorf("STORAGE_ROOT cannot be empty for the local backend")
		}
	case BackendS3:
		if cfg.S3.Bucket == "" {
			return Config{}, fmt.Errorf("S3_BUCKET cannot be empty for the s3 backend")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL cannot be empty for the postgres backend")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 128 * 1024 * 1024
	}
	if cfg.MaxConcurrentConsumes <= 0 {
		cfg.MaxConcurrentConsumes = 1
	}
	if cfg.MemoryBlobLimit < 0 {
		cfg.MemoryBlobLimit = 0
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvInt64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseList(raw string) []string {
	replacer := strings.NewReplacer("\n", ",", ";", ",")
	parts := strings.Split(replacer.Replace(raw), ",")
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		p := strings.TrimSpace(part)
		key := strings.ToLower(p)
		if p == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
