// Package gallery keeps image records and their original and generated blobs
// consistent across upload, generation, deletion and reset.
package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"reimagine/internal/blobstore"
	"reimagine/internal/models"
	"reimagine/internal/provider"
	"reimagine/internal/store"
)

// DefaultMaxUploadBytes caps original uploads at 16 MiB.
const DefaultMaxUploadBytes int64 = 16 << 20

// Options tunes a Service. Zero values select defaults, except SweepMinAge
// where zero disables the age filter.
type Options struct {
	MaxUploadBytes int64
	SweepMinAge    time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
	Metrics        *Metrics
	Now            func() time.Time
}

// Service orchestrates the record store, the blob store and one provider.
type Service struct {
	records  store.ImageStore
	blobs    blobstore.BlobStore
	provider provider.Provider

	httpClient     *http.Client
	logger         *slog.Logger
	metrics        *Metrics
	now            func() time.Time
	maxUploadBytes int64
	sweepMinAge    time.Duration

	// commitMu is held shared between a blob write and the record change
	// that references it, and exclusively by the orphan sweep.
	commitMu sync.RWMutex
}

// NewService constructs a Service.
func NewService(records store.ImageStore, blobs blobstore.BlobStore, p provider.Provider, opts Options) *Service {
	svc := &Service{
		records:        records,
		blobs:          blobs,
		provider:       p,
		httpClient:     opts.HTTPClient,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		now:            opts.Now,
		maxUploadBytes: opts.MaxUploadBytes,
		sweepMinAge:    opts.SweepMinAge,
	}
	if svc.httpClient == nil {
		svc.httpClient = &http.Client{}
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	svc.logger = svc.logger.With("component", "gallery")
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.maxUploadBytes <= 0 {
		svc.maxUploadBytes = DefaultMaxUploadBytes
	}
	if svc.sweepMinAge < 0 {
		svc.sweepMinAge = 0
	}
	return svc
}

// MaxUploadBytes returns the configured upload cap.
func (s *Service) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// SweepMinAge returns the age below which unreferenced blobs are left alone
// when a sweep does not name its own.
func (s *Service) SweepMinAge() time.Duration {
	return s.sweepMinAge
}

// ProviderName returns the configured provider, or "" when none is set.
func (s *Service) ProviderName() string {
	if s == nil || s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

func (s *Service) configured() error {
	if s == nil || s.records == nil || s.blobs == nil {
		return internalError(fmt.Errorf("gallery service is not configured"))
	}
	return nil
}

// UploadInput describes one original image upload.
type UploadInput struct {
	Filename string
	Comment  string
	Content  io.Reader
}

// Upload stores the original blob and then inserts its record. An existing
// original is never replaced.
func (s *Service) Upload(ctx context.Context, in UploadInput) (models.Image, error) {
	var zero models.Image
	if err := s.configured(); err != nil {
		return zero, err
	}
	if in.Content == nil {
		return zero, badRequest("No image file")
	}
	if strings.TrimSpace(in.Filename) == "" {
		return zero, badRequest("No selected file")
	}

	filename, err := models.SanitizeFilename(in.Filename)
	if err != nil || !models.AllowedImageExtension(filename) {
		return zero, badRequest("Invalid file type")
	}

	data, err := io.ReadAll(io.LimitReader(in.Content, s.maxUploadBytes+1))
	if err != nil {
		return zero, badRequest("read upload: %v", err)
	}
	if int64(len(data)) > s.maxUploadBytes {
		return zero, badRequest("file exceeds %d bytes", s.maxUploadBytes)
	}
	if len(data) == 0 {
		return zero, badRequest("empty image file")
	}
	if _, err := sourceFormat(data); err != nil {
		return zero, badRequest("Invalid file type: %v", err)
	}

	// The body is consumed; the rest runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	existing, err := s.records.GetImage(ctx, filename)
	if err != nil {
		return zero, internalError(err)
	}
	if existing != nil {
		return zero, conflict("image %s already exists", filename)
	}

	image, err := s.commitUpload(ctx, filename, in.Comment, data)
	if err != nil {
		return zero, err
	}
	s.logger.Info("image uploaded", "filename", filename, "bytes", len(data))
	return *image, nil
}

// commitUpload writes the original only if the key is free and then inserts
// its record. A record that cannot be inserted takes the blob with it.
func (s *Service) commitUpload(ctx context.Context, filename, comment string, data []byte) (*models.Image, error) {
	s.commitMu.RLock()
	defer s.commitMu.RUnlock()

	if _, err := s.blobs.Create(ctx, models.NamespaceOriginals, filename, bytes.NewReader(data)); err != nil {
		if errors.Is(err, blobstore.ErrExists) {
			return nil, conflict("image %s already exists", filename)
		}
		return nil, internalError(fmt.Errorf("store original: %w", err))
	}

	now := s.now().UTC()
	image := &models.Image{Filename: filename, Comment: comment, CreatedAt: now, UpdatedAt: now}
	if err := s.records.CreateImage(ctx, image); err != nil {
		if delErr := s.blobs.Delete(ctx, models.NamespaceOriginals, filename); delErr != nil {
			s.logger.Error("remove original after failed insert", "filename", filename, "error", delErr)
		}
		if errors.Is(err, store.ErrConflict) {
			return nil, conflict("image %s already exists", filename)
		}
		return nil, internalError(fmt.Errorf("insert record: %w", err))
	}
	return image, nil
}

// List returns every record.
func (s *Service) List(ctx context.Context) ([]models.Image, error) {
	if err := s.configured(); err != nil {
		return nil, err
	}
	images, err := s.records.ListImages(ctx)
	if err != nil {
		return nil, internalError(err)
	}
	return images, nil
}

// Get returns one record by original filename.
func (s *Service) Get(ctx context.Context, filename string) (models.Image, error) {
	var zero models.Image
	if err := s.configured(); err != nil {
		return zero, err
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return zero, badRequest("No filename provided")
	}
	image, err := s.records.GetImage(ctx, filename)
	if err != nil {
		return zero, internalError(err)
	}
	if image == nil {
		return zero, notFound("image %s not found", filename)
	}
	return *image, nil
}

// EditComment replaces a record's comment. Empty comments are rejected.
func (s *Service) EditComment(ctx context.Context, filename, comment string) (models.Image, error) {
	var zero models.Image
	if err := s.configured(); err != nil {
		return zero, err
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return zero, badRequest("No filename provided")
	}
	if strings.TrimSpace(comment) == "" {
		return zero, badRequest("comment must not be empty")
	}

	updated, err := s.records.UpdateComment(ctx, filename, comment)
	if err != nil {
		return zero, internalError(err)
	}
	if !updated {
		return zero, notFound("image %s not found", filename)
	}
	return s.Get(ctx, filename)
}

// BlobContent is an open blob stream with its metadata.
type BlobContent struct {
	Reader    io.ReadCloser
	SizeBytes int64
	MediaType string
	Filename  string
}

// FetchBlob opens one blob. Missing blobs are NotFound.
func (s *Service) FetchBlob(ctx context.Context, ns models.Namespace, key string) (BlobContent, error) {
	var zero BlobContent
	if err := s.configured(); err != nil {
		return zero, err
	}
	if err := blobstore.ValidateKey(key); err != nil {
		return zero, notFound("file %s not found", key)
	}

	info, err := s.blobs.Stat(ctx, ns, key)
	if errors.Is(err, blobstore.ErrNotFound) {
		return zero, notFound("file %s not found", key)
	}
	if err != nil {
		return zero, internalError(err)
	}
	rc, err := s.blobs.Open(ctx, ns, key)
	if errors.Is(err, blobstore.ErrNotFound) {
		return zero, notFound("file %s not found", key)
	}
	if err != nil {
		return zero, internalError(err)
	}
	return BlobContent{Reader: rc, SizeBytes: info.SizeBytes, MediaType: mediaTypeForKey(key), Filename: key}, nil
}
