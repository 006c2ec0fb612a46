package blobstore

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"reimagine/internal/models"
)

func TestBoltStoreContract(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "blobs.db"))
	if err != nil {
		t.Fatalf("new bolt store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	exerciseBlobStore(t, store)
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs.db")
	store, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("new bolt store: %v", err)
	}
	if _, err := store.Put(context.Background(), models.NamespaceOriginals, "cat.png", bytes.NewBufferString("meow")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewBoltStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	rc, err := reopened.Open(context.Background(), models.NamespaceOriginals, "cat.png")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "meow" {
		t.Fatalf("expected meow, got %q", string(data))
	}

	info, err := reopened.Stat(context.Background(), models.NamespaceOriginals, "cat.png")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.ModifiedAt.IsZero() {
		t.Fatal("expected modification time to be recorded")
	}
}
