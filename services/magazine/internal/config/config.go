package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is read when MAGAZINE_CONFIG is unset.
const ConfigPath = "config.yaml"

const (
	StorageMinio = "minio"
	StorageFS    = "fs"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port           string   `yaml:"port"`
	LogLevel       string   `yaml:"logLevel"`
	LogFormat      string   `yaml:"logFormat"`
	DatabaseURL    string   `yaml:"databaseURL"`
	PublicBaseURL  string   `yaml:"publicBaseURL"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	TrustedProxies []string `yaml:"trustedProxies"`

	StorageBackend string `yaml:"storageBackend"`
	StoragePath    string `yaml:"storagePath"`
	FilesBaseURL   string `yaml:"filesBaseURL"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	MinioRegion    string `yaml:"minioRegion"`
	PresignExpiry  string `yaml:"presignExpiry"`

	RedisAddr      string `yaml:"redisAddr"`
	RedisPassword  string `yaml:"redisPassword"`
	ViewerStateTTL string `yaml:"viewerStateTTL"`

	AuthJWTSecret string `yaml:"authJwtSecret"`
	AuthJWKSURL   string `yaml:"authJwksURL"`
	JWTIssuer     string `yaml:"jwtIssuer"`
	JWTAudience   string `yaml:"jwtAudience"`
	JWTLeeway     string `yaml:"jwtLeeway"`

	MaxUploadBytes           int64    `yaml:"maxUploadBytes"`
	MaxCoverBytes            int64    `yaml:"maxCoverBytes"`
	Categories               []string `yaml:"categories"`
	UploadRateLimitPerMinute int      `yaml:"uploadRateLimitPerMinute"`
	ReadRateLimitPerMinute   int      `yaml:"readRateLimitPerMinute"`
}

// Path returns MAGAZINE_CONFIG or the default config path.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("MAGAZINE_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("MAGAZINE_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("MAGAZINE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("MAGAZINE_PUBLIC_BASE_URL"); v != "" {
		cfg.PublicBaseURL = v
	}
	if v := os.Getenv("MAGAZINE_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("MAGAZINE_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	if v := os.Getenv("MAGAZINE_STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = v
	}
	if v := os.Getenv("MAGAZINE_STORAGE_PATH"); v != "" {
		cfg.StoragePath = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_REGION"); v != "" {
		cfg.MinioRegion = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AUTH_JWT_SECRET"); v != "" {
		cfg.AuthJWTSecret = v
	}
	if v := os.Getenv("AUTH_JWKS_URL"); v != "" {
		cfg.AuthJWKSURL = v
	}
	if v := os.Getenv("MAGAZINE_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("MAGAZINE_MAX_COVER_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxCoverBytes = n
		}
	}
	if v := os.Getenv("MAGAZINE_CATEGORIES"); v != "" {
		cfg.Categories = splitCSV(v)
	}
	if v := os.Getenv("MAGAZINE_UPLOAD_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.UploadRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("MAGAZINE_READ_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReadRateLimitPerMinute = n
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = StorageMinio
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if cfg.MaxCoverBytes == 0 {
		cfg.MaxCoverBytes = 5 << 20
	}
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.PublicBaseURL == "" {
		return errors.New("config: publicBaseURL is required for share links")
	}
	switch cfg.StorageBackend {
	case StorageMinio:
		if cfg.MinioEndpoint == "" {
			return errors.New("config: minioEndpoint is required (set in config.yaml)")
		}
		if cfg.MinioAccessKey == "" {
			return errors.New("config: minioAccessKey is required (set in config.yaml)")
		}
		if cfg.MinioSecretKey == "" {
			return errors.New("config: minioSecretKey is required (set in config.yaml)")
		}
		if cfg.MinioBucket == "" {
			return errors.New("config: minioBucket is required (set in config.yaml)")
		}
	case StorageFS:
		if strings.TrimSpace(cfg.StoragePath) == "" {
			return errors.New("config: storagePath is required for the fs storage backend")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q (want minio or fs)", cfg.StorageBackend)
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for rate limiting, viewer state and sign-out")
	}
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	jwks := strings.TrimSpace(cfg.AuthJWKSURL)
	if (secret == "") == (jwks == "") {
		return errors.New("config: set exactly one of authJwtSecret (AUTH_JWT_SECRET) or authJwksURL (AUTH_JWKS_URL)")
	}
	if cfg.MaxUploadBytes < 0 || cfg.MaxCoverBytes < 0 {
		return errors.New("config: upload limits must be >= 0")
	}
	if cfg.UploadRateLimitPerMinute < 0 || cfg.ReadRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	for _, field := range []struct{ name, value string }{
		{"presignExpiry", cfg.PresignExpiry},
		{"viewerStateTTL", cfg.ViewerStateTTL},
		{"jwtLeeway", cfg.JWTLeeway},
	} {
		if _, err := ParseDuration(field.name, field.value); err != nil {
			return err
		}
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseDuration parses an optional duration setting. Empty means zero, so callers
// fall back to their own defaults.
func ParseDuration(name, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("config: %s must be >= 0", name)
	}
	return dur, nil
}
