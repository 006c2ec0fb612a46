package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"reimagine/internal/models"
)

var (
	// ErrNotFound is returned when a blob key does not exist in its namespace.
	ErrNotFound = errors.New("blob not found")
	// ErrExists is returned by Create when the key is already taken.
	ErrExists = errors.New("blob already exists")
)

// BlobPutResult describes one persisted blob payload.
type BlobPutResult struct {
	SHA256    string
	SizeBytes int64
	Key       string
}

// BlobStore is the named byte-storage abstraction used by the gallery service.
//
// Keys are flat filenames scoped to a namespace. The store knows nothing about
// records and never cascades; Delete of a missing key is a no-op. Put
// replaces an existing key, Create never does.
type BlobStore interface {
	Put(ctx context.Context, ns models.Namespace, key string, r io.Reader) (BlobPutResult, error)
	Create(ctx context.Context, ns models.Namespace, key string, r io.Reader) (BlobPutResult, error)
	Open(ctx context.Context, ns models.Namespace, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, ns models.Namespace, key string) (models.BlobInfo, error)
	Delete(ctx context.Context, ns models.Namespace, key string) error
	List(ctx context.Context, ns models.Namespace) ([]models.BlobInfo, error)
	Purge(ctx context.Context, ns models.Namespace) (int, error)
	Close() error
}

// ValidateKey rejects keys that could escape a namespace.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("blob key is required")
	}
	if key != strings.TrimSpace(key) {
		return fmt.Errorf("invalid blob key")
	}
	if key == "." || key == ".." || strings.ContainsAny(key, "/\\\x00") {
		return fmt.Errorf("invalid blob key")
	}
	return nil
}

func validateNamespace(ns models.Namespace) error {
	for _, known := range models.Namespaces {
		if ns == known {
			return nil
		}
	}
	return fmt.Errorf("invalid namespace: %s", ns)
}

func validateTarget(ns models.Namespace, key string) error {
	if err := validateNamespace(ns); err != nil {
		return err
	}
	return ValidateKey(key)
}
