package storage

import (
	"context"
	"fmt"
	"strings"
)

// Supported drivers.
const (
	DriverMinio  = "minio"
	DriverS3     = "s3"
	DriverMemory = "memory"
)

// StoreConfig describes how to reach the bucket. It is built explicitly by the
// caller; nothing in this package reads the process environment.
type StoreConfig struct {
	Driver    string
	Endpoint  string // host[:port] for minio, URL for s3, presign base URL for memory
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool

	// PublicBase is the browser-accessible base URL, e.g. "https://files.example.com/bucket".
	PublicBase string
	// EnsureBucket creates the bucket on startup when it is missing.
	EnsureBucket bool
}

// Validate reports the first missing setting as an ErrNotConfigured error.
func (c StoreConfig) Validate() error {
	switch c.Driver {
	case DriverMemory:
		if strings.TrimSpace(c.Endpoint) == "" {
			return fmt.Errorf("%w: memory driver needs an endpoint for presigned URLs", ErrNotConfigured)
		}
		if strings.TrimSpace(c.SecretKey) == "" {
			return fmt.Errorf("%w: memory driver needs a signing secret", ErrNotConfigured)
		}
		return nil
	case DriverMinio, DriverS3:
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrNotConfigured, c.Driver)
	}

	required := []struct{ name, value string }{
		{"endpoint", c.Endpoint},
		{"bucket", c.Bucket},
		{"access key", c.AccessKey},
		{"secret key", c.SecretKey},
	}
	if c.Driver == DriverS3 {
		required = append(required, struct{ name, value string }{"region", c.Region})
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s missing", ErrNotConfigured, r.name)
		}
	}
	return nil
}

// Open validates cfg and builds the matching driver.
func Open(ctx context.Context, cfg StoreConfig) (Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case DriverS3:
		return NewS3Storage(ctx, cfg)
	case DriverMemory:
		return NewMemoryStorage(cfg.Endpoint, cfg.SecretKey, cfg.PublicBase), nil
	default:
		return NewMinioStorage(ctx, cfg)
	}
}

func publicBaseFor(cfg StoreConfig) string {
	if base := strings.TrimRight(cfg.PublicBase, "/"); base != "" {
		return base
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if !strings.Contains(endpoint, "://") {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		endpoint = scheme + "://" + endpoint
	}
	return endpoint + "/" + cfg.Bucket
}
