package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"reimagine/internal/models"
)

const (
	boltOpenTimeout = 5 * time.Second
	boltMetaSuffix  = ".meta"
)

// BoltStore keeps every namespace inside a single bbolt file. Each namespace
// has a data bucket holding the bytes and a meta bucket holding the write time.
type BoltStore struct {
	db *bolt.DB
}

var _ BlobStore = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the bbolt file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("bolt blob path is required")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, ns := range models.Namespaces {
			if err := createNamespaceBuckets(tx, ns); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Put reads r fully and stores it under key in one transaction.
func (b *BoltStore) Put(ctx context.Context, ns models.Namespace, key string, r io.Reader) (BlobPutResult, error) {
	return b.write(ctx, ns, key, r, true)
}

// Create stores r under key unless the key is already present. The check and
// the write share one transaction.
func (b *BoltStore) Create(ctx context.Context, ns models.Namespace, key string, r io.Reader) (BlobPutResult, error) {
	return b.write(ctx, ns, key, r, false)
}

func (b *BoltStore) write(ctx context.Context, ns models.Namespace, key string, r io.Reader, replace bool) (BlobPutResult, error) {
	var zero BlobPutResult
	if b == nil || b.db == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := validateTarget(ns, key); err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return zero, err
	}
	sum := sha256.Sum256(data)

	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(dataBucket(ns))
		if !replace && bucket.Get([]byte(key)) != nil {
			return ErrExists
		}
		if err := bucket.Put([]byte(key), data); err != nil {
			return fmt.Errorf("failed to update data bucket: %w", err)
		}
		if err := tx.Bucket(metaBucket(ns)).Put([]byte(key), encodeModTime(time.Now().UTC())); err != nil {
			return fmt.Errorf("failed to update meta bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		return zero, err
	}
	return BlobPutResult{SHA256: hex.EncodeToString(sum[:]), SizeBytes: int64(len(data)), Key: key}, nil
}

// Open copies the blob out of the read transaction and returns a reader over it.
func (b *BoltStore) Open(ctx context.Context, ns models.Namespace, key string) (io.ReadCloser, error) {
	if b == nil || b.db == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := validateTarget(ns, key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(dataBucket(ns)).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		data = bytes.Clone(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Stat returns blob metadata.
func (b *BoltStore) Stat(ctx context.Context, ns models.Namespace, key string) (models.BlobInfo, error) {
	var info models.BlobInfo
	if b == nil || b.db == nil {
		return info, fmt.Errorf("blob store is not configured")
	}
	if err := validateTarget(ns, key); err != nil {
		return info, err
	}
	if err := ctx.Err(); err != nil {
		return info, err
	}

	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(dataBucket(ns)).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		info = models.BlobInfo{
			Namespace:  ns,
			Key:        key,
			SizeBytes:  int64(len(v)),
			ModifiedAt: decodeModTime(tx.Bucket(metaBucket(ns)).Get([]byte(key))),
		}
		return nil
	})
	return info, err
}

// Delete removes a blob. Missing keys are ignored.
func (b *BoltStore) Delete(ctx context.Context, ns models.Namespace, key string) error {
	if b == nil || b.db == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := validateTarget(ns, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(dataBucket(ns)).Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(metaBucket(ns)).Delete([]byte(key))
	})
}

// List enumerates a namespace in key order.
func (b *BoltStore) List(ctx context.Context, ns models.Namespace) ([]models.BlobInfo, error) {
	if b == nil || b.db == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := validateNamespace(ns); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := []models.BlobInfo{}
	err := b.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket(ns))
		return tx.Bucket(dataBucket(ns)).ForEach(func(k, v []byte) error {
			out = append(out, models.BlobInfo{
				Namespace:  ns,
				Key:        string(k),
				SizeBytes:  int64(len(v)),
				ModifiedAt: decodeModTime(meta.Get(k)),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Purge drops and recreates the namespace buckets.
func (b *BoltStore) Purge(ctx context.Context, ns models.Namespace) (int, error) {
	if b == nil || b.db == nil {
		return 0, fmt.Errorf("blob store is not configured")
	}
	if err := validateNamespace(ns); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	removed := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		if bucket := tx.Bucket(dataBucket(ns)); bucket != nil {
			if err := bucket.ForEach(func(_, _ []byte) error {
				removed++
				return nil
			}); err != nil {
				return err
			}
		}
		for _, name := range [][]byte{dataBucket(ns), metaBucket(ns)} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
		}
		return createNamespaceBuckets(tx, ns)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Close closes the bbolt file.
func (b *BoltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func createNamespaceBuckets(tx *bolt.Tx, ns models.Namespace) error {
	if _, err := tx.CreateBucketIfNotExists(dataBucket(ns)); err != nil {
		return err
	}
	_, err := tx.CreateBucketIfNotExists(metaBucket(ns))
	return err
}

func dataBucket(ns models.Namespace) []byte {
	return []byte(ns)
}

func metaBucket(ns models.Namespace) []byte {
	return []byte(string(ns) + boltMetaSuffix)
}

func encodeModTime(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))
	return buf
}

func decodeModTime(v []byte) time.Time {
	if len(v) != 8 {
		return time.Time{}
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(v))).UTC()
}
