package storage

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
)

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Config selects and configures the blob backend.
type Config struct {
	// Backend is "minio" or "file".
	Backend string
	Path    string
	MinIO   MinIOConfig
}

// New builds the configured backend. The file backend uses the OS filesystem.
func New(ctx context.Context, cfg Config) (BlobStore, error) {
	switch cfg.Backend {
	case "minio":
		return NewMinIOStorage(ctx, &cfg.MinIO)
	case "file", "":
		return NewFileStore(afero.NewOsFs(), cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
