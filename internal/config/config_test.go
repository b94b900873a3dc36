package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	t.Setenv("MONGODB_DATABASE", "evault_test")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("JWT_SECRET", "testsecret123456789012345678901234")
	t.Setenv("UPLOAD_ALLOWED_TYPES", "application/pdf, text/plain,")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "mongodb://localhost:27017/testdb", cfg.MongoDB.URI)
	require.Equal(t, "evault_test", cfg.MongoDB.Database)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
	require.False(t, cfg.JWT.Generated)
	require.Equal(t, 24*time.Hour, cfg.JWT.AccessTokenTTL)
	require.Equal(t, 24*time.Hour, cfg.Verification.CodeTTL)
	require.Equal(t, []string{"application/pdf", "text/plain"}, cfg.Upload.AllowedTypes)
	require.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
	require.Equal(t, 2.5, cfg.RateLimit.RPS)
	require.Equal(t, "file", cfg.Storage.Backend)
	require.Equal(t, "suffix", cfg.Attestation.Backend)
}

func TestLoadConfigWithoutMongoUsesMemory(t *testing.T) {
	t.Setenv("MONGODB_URI", "")
	t.Setenv("JWT_SECRET", "x")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Empty(t, cfg.MongoDB.URI)
}

func TestJWTSecretGeneratedOutsideProduction(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SERVER_ENVIRONMENT", "development")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.JWT.Generated)
	require.Len(t, cfg.JWT.Secret, 64)
}

func TestJWTSecretRequiredInProduction(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SERVER_ENVIRONMENT", "production")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "JWT_SECRET")
}

func TestInvalidBackendsRejected(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")

	t.Run("storage", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "s3")
		_, err := LoadConfig()
		require.ErrorContains(t, err, "STORAGE_BACKEND")
	})
	t.Run("minio without endpoint", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "minio")
		t.Setenv("MINIO_ENDPOINT", "")
		_, err := LoadConfig()
		require.ErrorContains(t, err, "MINIO_ENDPOINT")
	})
	t.Run("hmac without secret", func(t *testing.T) {
		t.Setenv("ATTESTATION_BACKEND", "hmac")
		t.Setenv("ATTESTATION_SECRET", "")
		_, err := LoadConfig()
		require.ErrorContains(t, err, "ATTESTATION_SECRET")
	})
}

func TestMailHostRequiredInProduction(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("SERVER_ENVIRONMENT", "production")
	t.Setenv("MAIL_HOST", "")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "MAIL_HOST")

	t.Setenv("MAIL_HOST", "smtp.example.com")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "smtp.example.com", cfg.Mail.Host)
}

func TestMailHostOptionalOutsideProduction(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("SERVER_ENVIRONMENT", "development")
	t.Setenv("MAIL_HOST", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Empty(t, cfg.Mail.Host)
}
