package gallery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reimagine/internal/blobstore"
	"reimagine/internal/models"
)

// Delete removes a record and both of its blobs. The generated filename is
// captured before the record goes away. Each blob removal is attempted even
// if an earlier step failed; missing blobs are not errors.
func (s *Service) Delete(ctx context.Context, filename string) error {
	if err := s.configured(); err != nil {
		return err
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return badRequest("No filename provided")
	}
	if err := blobstore.ValidateKey(filename); err != nil {
		return badRequest("Invalid filename: %v", err)
	}
	ctx = context.WithoutCancel(ctx)

	var errs []error
	generated := ""
	record, err := s.records.GetImage(ctx, filename)
	if err != nil {
		errs = append(errs, fmt.Errorf("read record: %w", err))
	} else if record != nil {
		generated = record.GeneratedName()
	}

	if _, err := s.records.DeleteImage(ctx, filename); err != nil {
		errs = append(errs, fmt.Errorf("delete record: %w", err))
	}

	if err := s.blobs.Delete(ctx, models.NamespaceOriginals, filename); err != nil {
		s.logger.Warn("original blob delete failed", "filename", filename, "error", err)
		errs = append(errs, fmt.Errorf("delete original: %w", err))
	}
	if generated != "" {
		if err := s.blobs.Delete(ctx, models.NamespaceGenerated, generated); err != nil {
			s.logger.Warn("generated blob delete failed", "filename", filename, "generated_filename", generated, "error", err)
			errs = append(errs, fmt.Errorf("delete generated: %w", err))
		}
	}

	if len(errs) > 0 {
		return internalError(errors.Join(errs...))
	}
	s.logger.Info("image deleted", "filename", filename, "generated_filename", generated)
	return nil
}

// ResetResult reports what a reset removed. RecordsRemoved is counted just
// before the wipe.
type ResetResult struct {
	RecordsRemoved  int `json:"records_removed"`
	OriginalsPurged int `json:"originals_purged"`
	GeneratedPurged int `json:"generated_purged"`
}

// Reset wipes the record store and both blob namespaces without consulting
// any record. Every step is attempted.
func (s *Service) Reset(ctx context.Context) (ResetResult, error) {
	var result ResetResult
	if err := s.configured(); err != nil {
		return result, err
	}

	ctx = context.WithoutCancel(ctx)
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	var errs []error
	count, err := s.records.CountImages(ctx)
	if err != nil {
		s.logger.Warn("count records before reset", "error", err)
	}
	if err := s.records.Reset(ctx); err != nil {
		errs = append(errs, fmt.Errorf("reset records: %w", err))
	} else {
		result.RecordsRemoved = count
	}

	n, err := s.blobs.Purge(ctx, models.NamespaceOriginals)
	result.OriginalsPurged = n
	if err != nil {
		errs = append(errs, fmt.Errorf("purge originals: %w", err))
	}
	n, err = s.blobs.Purge(ctx, models.NamespaceGenerated)
	result.GeneratedPurged = n
	if err != nil {
		errs = append(errs, fmt.Errorf("purge generated: %w", err))
	}

	if len(errs) > 0 {
		s.logger.Error("reset incomplete", "error", errors.Join(errs...))
		return result, internalError(errors.Join(errs...))
	}
	s.logger.Info("gallery reset", "records_removed", result.RecordsRemoved, "originals_purged", result.OriginalsPurged, "generated_purged", result.GeneratedPurged)
	return result, nil
}
