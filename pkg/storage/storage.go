package storage

import (
	"context"
	"fmt"
	"io"
)

// Storage stores attachment bytes under opaque keys.
type Storage interface {
	// Put uploads data from a reader to storage.
	// The size parameter is used for content-length header.
	Put(ctx context.Context, r io.Reader, size int64, opts ...Option) (*FileInfo, error)

	// Get retrieves a file from storage.
	// The caller is responsible for closing the returned reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes a file from storage. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Driver selects a Storage implementation.
type Driver string

const (
	DriverLocal Driver = "local"
	DriverS3    Driver = "s3"
)

// Config holds storage configuration for both drivers.
type Config struct {
	Driver Driver `env:"STORAGE_DRIVER" envDefault:"local"`

	// UploadPath is the root directory of the local driver.
	UploadPath string `env:"UPLOAD_PATH" envDefault:"./uploads"`

	// MaxFileSize caps a single upload in bytes.
	MaxFileSize int64 `env:"MAX_FILE_SIZE" envDefault:"10485760"`

	Bucket    string `env:"S3_BUCKET"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	// Endpoint is the custom S3 endpoint URL (MinIO and other S3-compatible services).
	Endpoint  string `env:"S3_ENDPOINT"`
	Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	PathStyle bool   `env:"S3_PATH_STYLE" envDefault:"false"`
}

// FileInfo contains metadata about an uploaded file.
type FileInfo struct {
	// Key is the storage key (path) for the file.
	Key string

	// ContentType is the detected or supplied MIME type.
	ContentType string

	// Size is the file size in bytes.
	Size int64
}

// Default configuration values.
const (
	DefaultRegion      = "us-east-1"
	DefaultMaxFileSize = 10 << 20 // 10MB
)

// Open builds the Storage selected by cfg.Driver.
func Open(cfg Config) (Storage, error) {
	switch cfg.Driver {
	case DriverLocal, "":
		return NewDisk(cfg.UploadPath)
	case DriverS3:
		return New(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, cfg.Driver)
	}
}

func (c *Config) applyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.MaxFileSize == 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
}

func (c *Config) validate() error {
	if c.Bucket == "" || c.AccessKey == "" || c.SecretKey == "" {
		return ErrInvalidConfig
	}
	return nil
}
