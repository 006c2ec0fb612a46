package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"reimagine/internal/models"
)

// LocalFS stores blobs as plain files, one directory per namespace.
type LocalFS struct {
	root string
}

var _ BlobStore = (*LocalFS)(nil)

// NewLocalFS creates a filesystem blob store rooted at root.
func NewLocalFS(root string) (*LocalFS, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local blob root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	for _, ns := range models.Namespaces {
		if err := os.MkdirAll(filepath.Join(abs, string(ns)), 0o755); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, err
	}
	return &LocalFS{root: abs}, nil
}

// Root returns the absolute storage root.
func (l *LocalFS) Root() string {
	return l.root
}

// Put streams bytes into a temp file and renames it over the target key.
func (l *LocalFS) Put(ctx context.Context, ns models.Namespace, key string, r io.Reader) (BlobPutResult, error) {
	tmpPath, res, err := l.writeTemp(ctx, ns, key, r)
	if err != nil {
		return BlobPutResult{}, err
	}
	if err := os.Rename(tmpPath, l.path(ns, key)); err != nil {
		_ = os.Remove(tmpPath)
		return BlobPutResult{}, err
	}
	return res, nil
}

// Create links the temp file into place, so the key only ever appears with
// its full content and an existing key is left untouched.
func (l *LocalFS) Create(ctx context.Context, ns models.Namespace, key string, r io.Reader) (BlobPutResult, error) {
	tmpPath, res, err := l.writeTemp(ctx, ns, key, r)
	if err != nil {
		return BlobPutResult{}, err
	}
	defer os.Remove(tmpPath)

	if err := os.Link(tmpPath, l.path(ns, key)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return BlobPutResult{}, ErrExists
		}
		return BlobPutResult{}, err
	}
	return res, nil
}

func (l *LocalFS) writeTemp(ctx context.Context, ns models.Namespace, key string, r io.Reader) (string, BlobPutResult, error) {
	var zero BlobPutResult
	if l == nil {
		return "", zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return "", zero, fmt.Errorf("reader is required")
	}
	if err := validateTarget(ns, key); err != nil {
		return "", zero, err
	}
	if err := ctx.Err(); err != nil {
		return "", zero, err
	}

	tmp, err := os.CreateTemp(filepath.Join(l.root, "tmp"), "put-*")
	if err != nil {
		return "", zero, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		cleanup()
		return "", zero, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", zero, err
	}
	return tmpPath, BlobPutResult{SHA256: hex.EncodeToString(h.Sum(nil)), SizeBytes: n, Key: key}, nil
}

// Open returns a reader for blob content.
func (l *LocalFS) Open(ctx context.Context, ns models.Namespace, key string) (io.ReadCloser, error) {
	if l == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := validateTarget(ns, key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.path(ns, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Stat returns blob metadata.
func (l *LocalFS) Stat(ctx context.Context, ns models.Namespace, key string) (models.BlobInfo, error) {
	var zero models.BlobInfo
	if l == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if err := validateTarget(ns, key); err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	info, err := os.Stat(l.path(ns, key))
	if errors.Is(err, os.ErrNotExist) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, err
	}
	if info.IsDir() {
		return zero, ErrNotFound
	}
	return models.BlobInfo{Namespace: ns, Key: key, SizeBytes: info.Size(), ModifiedAt: info.ModTime().UTC()}, nil
}

// Delete removes a blob. Missing files are ignored.
func (l *LocalFS) Delete(ctx context.Context, ns models.Namespace, key string) error {
	if l == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := validateTarget(ns, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(l.path(ns, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// List enumerates regular files in a namespace ordered by key.
func (l *LocalFS) List(ctx context.Context, ns models.Namespace) ([]models.BlobInfo, error) {
	if l == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := validateNamespace(ns); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(l.root, string(ns)))
	if errors.Is(err, os.ErrNotExist) {
		return []models.BlobInfo{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]models.BlobInfo, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		out = append(out, models.BlobInfo{Namespace: ns, Key: entry.Name(), SizeBytes: info.Size(), ModifiedAt: info.ModTime().UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Purge removes every regular file in a namespace and recreates the directory
// if it went missing. It does not consult any record.
func (l *LocalFS) Purge(ctx context.Context, ns models.Namespace) (int, error) {
	if l == nil {
		return 0, fmt.Errorf("blob store is not configured")
	}
	if err := validateNamespace(ns); err != nil {
		return 0, err
	}
	dir := filepath.Join(l.root, string(ns))
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		errs = append(errs, err)
	}
	return removed, errors.Join(errs...)
}

// Close is a no-op for the filesystem backend.
func (l *LocalFS) Close() error {
	return nil
}

func (l *LocalFS) path(ns models.Namespace, key string) string {
	return filepath.Join(l.root, string(ns), key)
}
