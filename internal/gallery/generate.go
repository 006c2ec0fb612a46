package gallery

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"reimagine/internal/blobstore"
	"reimagine/internal/models"
	"reimagine/internal/provider"
)

const promptTemplate = "Based on this image and comment: '%s', create a creative AI-generated image that captures the essence and enhances the visual appeal."

// Generation outcomes recorded in metrics besides the failure kinds.
const (
	outcomeSuccess  = "success"
	outcomeNotFound = "not_found"
)

// GenerateInput names the record to regenerate. A nil Comment uses the
// comment stored on the record.
type GenerateInput struct {
	Filename string
	Comment  *string
}

// BuildPrompt renders the instruction text sent to the provider.
func BuildPrompt(comment string) string {
	return fmt.Sprintf(promptTemplate, comment)
}

// NewGeneratedKey returns a fresh random key for a generated blob.
func NewGeneratedKey(ext string) string {
	id := uuid.New()
	return "generated_" + hex.EncodeToString(id[:]) + "." + ext
}

// Generate runs one provider call for a record and links the result.
//
// The generated blob is written before the record is updated. If the update
// fails the blob is removed again and a consistency fault is returned. On
// success the previously linked generated blob, if any, is removed.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (models.Image, error) {
	var zero models.Image
	if err := s.configured(); err != nil {
		return zero, err
	}
	if s.provider == nil {
		return zero, internalError(fmt.Errorf("no provider configured"))
	}
	providerName := s.provider.Name()

	// Validating
	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		return zero, badRequest("No filename provided")
	}
	record, err := s.records.GetImage(ctx, filename)
	if err != nil {
		return zero, internalError(err)
	}
	if record == nil {
		return zero, notFound("File not found")
	}
	original, err := s.readOriginal(ctx, filename)
	if err != nil {
		return zero, err
	}
	source, err := sourceFormat(original)
	if err != nil {
		return zero, badRequest("original %s is not a supported image", filename)
	}

	comment := record.Comment
	if in.Comment != nil {
		comment = *in.Comment
	}

	// Calling
	started := s.now()
	result := s.provider.Generate(ctx, provider.Request{
		Image:    original,
		MimeType: source.MediaType,
		Prompt:   BuildPrompt(comment),
	})

	// Normalizing
	data, err := provider.Resolve(ctx, s.httpClient, result)
	if err != nil {
		gerr := fromFailure(err)
		s.metrics.recordGeneration(providerName, string(KindOf(gerr)), s.now().Sub(started))
		s.logger.Warn("generation failed", "filename", filename, "provider", providerName, "kind", KindOf(gerr), "error", err)
		return zero, gerr
	}
	format, err := generatedFormat(data)
	if err != nil {
		s.metrics.recordGeneration(providerName, string(KindProviderError), s.now().Sub(started))
		return zero, &Error{Kind: KindProviderError, Message: err.Error()}
	}

	// Past this point the work is kept even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	key := NewGeneratedKey(format.Extension)
	updated, err := s.commitGenerated(ctx, filename, key, data)
	if err != nil {
		s.metrics.recordGeneration(providerName, string(KindOf(err)), s.now().Sub(started))
		return zero, err
	}
	if !updated {
		s.metrics.recordGeneration(providerName, outcomeNotFound, s.now().Sub(started))
		return zero, notFound("File not found")
	}

	// Committed
	s.metrics.recordGeneration(providerName, outcomeSuccess, s.now().Sub(started))
	if previous := record.GeneratedName(); previous != "" && previous != key {
		s.removeBlob(ctx, models.NamespaceGenerated, previous)
	}
	s.logger.Info("image generated", "filename", filename, "generated_filename", key, "provider", providerName, "bytes", len(data))

	stored, err := s.records.GetImage(ctx, filename)
	if err != nil {
		return zero, internalError(err)
	}
	if stored == nil {
		return zero, notFound("File not found")
	}
	return *stored, nil
}

// commitGenerated writes the generated blob and links it to the record. The
// blob is gone again unless the link succeeded.
func (s *Service) commitGenerated(ctx context.Context, filename, key string, data []byte) (bool, error) {
	s.commitMu.RLock()
	defer s.commitMu.RUnlock()

	if _, err := s.blobs.Put(ctx, models.NamespaceGenerated, key, bytes.NewReader(data)); err != nil {
		return false, internalError(fmt.Errorf("store generated image: %w", err))
	}
	updated, err := s.records.SetGenerated(ctx, filename, key)
	if err != nil {
		return false, s.abandonGenerated(ctx, filename, key, err)
	}
	if !updated {
		// The record vanished while the provider call was in flight.
		s.removeBlob(ctx, models.NamespaceGenerated, key)
	}
	return updated, nil
}

func (s *Service) readOriginal(ctx context.Context, filename string) ([]byte, error) {
	rc, err := s.blobs.Open(ctx, models.NamespaceOriginals, filename)
	if errors.Is(err, blobstore.ErrNotFound) {
		s.logger.Warn("record has no original blob", "filename", filename)
		return nil, notFound("File not found")
	}
	if err != nil {
		return nil, internalError(err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, internalError(err)
	}
	return data, nil
}

// abandonGenerated handles a written blob whose record update failed.
func (s *Service) abandonGenerated(ctx context.Context, filename, key string, cause error) error {
	s.metrics.recordConsistencyFault()
	if delErr := s.blobs.Delete(ctx, models.NamespaceGenerated, key); delErr != nil {
		s.logger.Error("generated blob orphaned", "filename", filename, "generated_filename", key, "update_error", cause, "delete_error", delErr)
		return consistencyFault(fmt.Sprintf("generated blob %s written but record update failed; blob left orphaned", key), cause)
	}
	s.logger.Error("record update failed after generated blob write", "filename", filename, "generated_filename", key, "error", cause)
	return consistencyFault(fmt.Sprintf("generated blob %s written but record update failed; blob removed", key), cause)
}

func (s *Service) removeBlob(ctx context.Context, ns models.Namespace, key string) {
	if err := s.blobs.Delete(ctx, ns, key); err != nil {
		s.logger.Warn("blob delete failed", "namespace", ns, "key", key, "error", err)
	}
}
