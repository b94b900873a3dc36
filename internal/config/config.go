package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/evault/evault/internal/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server       ServerConfig
	MongoDB      MongoDBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	Storage      StorageConfig
	Upload       UploadConfig
	Mail         MailConfig
	Attestation  AttestationConfig
	Verification VerificationConfig
	LogLevel     string
}

type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  string
}

func (s ServerConfig) Production() bool {
	return strings.EqualFold(s.Environment, "production")
}

// MongoDBConfig is optional; an empty URI selects in-memory repositories.
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	ConnectAttempts int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
	// Generated is set when Secret was created for this process only.
	Generated bool
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type StorageConfig struct {
	storage.Config
	Timeout time.Duration
}

type UploadConfig struct {
	MaxBytes     int64
	AllowedTypes []string
}

type MailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
	Retries  int
}

// AttestationConfig selects how anchors are derived from fingerprints.
type AttestationConfig struct {
	Backend string // "suffix" or "hmac"
	Secret  string
}

type VerificationConfig struct {
	CodeTTL time.Duration
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5000")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 15)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("MONGODB_DATABASE", "evault")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("MONGODB_CONNECT_ATTEMPTS", 5)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 1440)
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("STORAGE_BACKEND", "file")
	v.SetDefault("STORAGE_PATH", "uploads")
	v.SetDefault("STORAGE_TIMEOUT", 30)
	v.SetDefault("MINIO_BUCKET", "evault")
	v.SetDefault("UPLOAD_MAX_BYTES", 10<<20)
	v.SetDefault("MAIL_PORT", "587")
	v.SetDefault("MAIL_USE_TLS", true)
	v.SetDefault("MAIL_TIMEOUT", 10)
	v.SetDefault("MAIL_RETRIES", 2)
	v.SetDefault("ATTESTATION_BACKEND", "suffix")
	v.SetDefault("VERIFICATION_CODE_TTL", 1440)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			Host:            v.GetString("SERVER_HOST"),
			Environment:     v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: time.Duration(v.GetInt("SERVER_SHUTDOWN_TIMEOUT")) * time.Second,
			AllowedOrigins:  v.GetString("CORS_ALLOWED_ORIGINS"),
		},
		MongoDB: MongoDBConfig{
			URI:             v.GetString("MONGODB_URI"),
			Database:        v.GetString("MONGODB_DATABASE"),
			Timeout:         time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
			ConnectAttempts: v.GetInt("MONGODB_CONNECT_ATTEMPTS"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			AccessTokenTTL: time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Storage: StorageConfig{
			Config: storage.Config{
				Backend: strings.ToLower(v.GetString("STORAGE_BACKEND")),
				Path:    v.GetString("STORAGE_PATH"),
				MinIO: storage.MinIOConfig{
					Endpoint:  v.GetString("MINIO_ENDPOINT"),
					AccessKey: v.GetString("MINIO_ACCESS_KEY"),
					SecretKey: os.Getenv("MINIO_SECRET_KEY"),
					UseSSL:    v.GetBool("MINIO_USE_SSL"),
					Bucket:    v.GetString("MINIO_BUCKET"),
				},
			},
			Timeout: time.Duration(v.GetInt("STORAGE_TIMEOUT")) * time.Second,
		},
		Upload: UploadConfig{
			MaxBytes:     v.GetInt64("UPLOAD_MAX_BYTES"),
			AllowedTypes: splitList(v.GetString("UPLOAD_ALLOWED_TYPES")),
		},
		Mail: MailConfig{
			Host:     v.GetString("MAIL_HOST"),
			Port:     v.GetString("MAIL_PORT"),
			Username: v.GetString("MAIL_USERNAME"),
			Password: os.Getenv("MAIL_PASSWORD"),
			From:     v.GetString("MAIL_FROM"),
			UseTLS:   v.GetBool("MAIL_USE_TLS"),
			Timeout:  time.Duration(v.GetInt("MAIL_TIMEOUT")) * time.Second,
			Retries:  v.GetInt("MAIL_RETRIES"),
		},
		Attestation: AttestationConfig{
			Backend: strings.ToLower(v.GetString("ATTESTATION_BACKEND")),
			Secret:  os.Getenv("ATTESTATION_SECRET"),
		},
		Verification: VerificationConfig{
			CodeTTL: time.Duration(v.GetInt("VERIFICATION_CODE_TTL")) * time.Minute,
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolveSecrets() error {
	if c.JWT.Secret == "" {
		if c.Server.Production() {
			return errors.New("JWT_SECRET is required in production")
		}
		s, err := randomSecret()
		if err != nil {
			return err
		}
		c.JWT.Secret = s
		c.JWT.Generated = true
	}
	if c.Attestation.Backend == "hmac" && c.Attestation.Secret == "" {
		return errors.New("ATTESTATION_SECRET is required for the hmac attestation backend")
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "file", "minio":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be file or minio, got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "minio" && c.Storage.MinIO.Endpoint == "" {
		return errors.New("MINIO_ENDPOINT is required for the minio storage backend")
	}
	switch c.Attestation.Backend {
	case "suffix", "hmac":
	default:
		return fmt.Errorf("ATTESTATION_BACKEND must be suffix or hmac, got %q", c.Attestation.Backend)
	}
	if c.Upload.MaxBytes <= 0 {
		return errors.New("UPLOAD_MAX_BYTES must be positive")
	}
	if c.JWT.AccessTokenTTL <= 0 {
		return errors.New("JWT_ACCESS_TOKEN_TTL must be positive")
	}
	// without a mail host verification codes never reach the user
	if c.Server.Production() && c.Mail.Host == "" {
		return errors.New("MAIL_HOST is required in production")
	}
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
