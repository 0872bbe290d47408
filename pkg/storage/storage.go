// Package storage persists generated assets such as certificate images.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/noah-isme/sql-academy-api/pkg/config"
)

// ErrObjectNotFound is returned when a key has no stored object.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the minimal blob API needed by the application.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// URL returns a location clients can fetch the object from.
	URL(key string) (string, error)
}

// New selects the backend configured by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Driver {
	case "", config.StorageDriverLocal:
		signer := NewSignedURLSigner(cfg.SignedURLSecret, cfg.SignedURLTTL)
		return NewLocalStorage(cfg.LocalDir, cfg.PublicBaseURL+"/api/v1/assets", signer)
	case config.StorageDriverGCS:
		return NewGCSStorage(ctx, cfg.GCSBucket)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// CleanKey normalises a key and rejects traversal outside the store root.
func CleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(key))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return cleaned, nil
}
