package gallery

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"reimagine/internal/blobstore"
	"reimagine/internal/models"
	"reimagine/internal/provider"
	"reimagine/internal/store"
)

type fakeProvider struct {
	result   provider.Result
	calls    int
	requests []provider.Request
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(_ context.Context, req provider.Request) provider.Result {
	f.calls++
	f.requests = append(f.requests, req)
	return f.result
}

type testEnv struct {
	svc      *Service
	records  *store.Store
	blobs    *blobstore.LocalFS
	provider *fakeProvider
	metrics  *Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	records, err := store.Open(filepath.Join(dir, "gallery.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { records.Close() })

	blobs, err := blobstore.NewLocalFS(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("open blobs: %v", err)
	}

	p := &fakeProvider{}
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewService(records, blobs, p, Options{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: metrics,
	})
	return &testEnv{svc: svc, records: records, blobs: blobs, provider: p, metrics: metrics}
}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func dataURI(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func (e *testEnv) upload(t *testing.T, filename, comment string) models.Image {
	t.Helper()
	image, err := e.svc.Upload(context.Background(), UploadInput{
		Filename: filename,
		Comment:  comment,
		Content:  bytes.NewReader(pngBytes(t, color.RGBA{B: 255, A: 255})),
	})
	if err != nil {
		t.Fatalf("upload %s: %v", filename, err)
	}
	return image
}

func (e *testEnv) blobExists(t *testing.T, ns models.Namespace, key string) bool {
	t.Helper()
	_, err := e.blobs.Stat(context.Background(), ns, key)
	return err == nil
}

func (e *testEnv) blobCount(t *testing.T, ns models.Namespace) int {
	t.Helper()
	list, err := e.blobs.List(context.Background(), ns)
	if err != nil {
		t.Fatalf("list %s: %v", ns, err)
	}
	return len(list)
}

func strPtr(s string) *string { return &s }

func bytesReader(data []byte) io.Reader { return bytes.NewReader(data) }
