package gallery

import (
	"context"
	"time"

	"reimagine/internal/models"
)

// SweepResult reports one orphan sweep.
type SweepResult struct {
	CandidateCount int               `json:"candidate_count"`
	DeletedCount   int               `json:"deleted_count"`
	FailedCount    int               `json:"failed_count"`
	ReclaimedBytes int64             `json:"reclaimed_bytes"`
	DryRun         bool              `json:"dry_run"`
	Candidates     []models.BlobInfo `json:"candidates"`
}

// SweepOrphans finds blobs no record references. Blobs modified within minAge
// are skipped. Uploads and generations wait while a sweep runs, so a blob
// written ahead of its record is never collected. Nothing is deleted unless
// apply is set.
func (s *Service) SweepOrphans(ctx context.Context, apply bool, minAge time.Duration) (SweepResult, error) {
	result := SweepResult{DryRun: !apply, Candidates: []models.BlobInfo{}}
	if err := s.configured(); err != nil {
		return result, err
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	originals, err := s.records.ListFilenames(ctx)
	if err != nil {
		return result, internalError(err)
	}
	generated, err := s.records.ListGeneratedFilenames(ctx)
	if err != nil {
		return result, internalError(err)
	}
	referenced := map[models.Namespace]map[string]struct{}{
		models.NamespaceOriginals: keySet(originals),
		models.NamespaceGenerated: keySet(generated),
	}

	cutoff := s.now().Add(-minAge)
	for _, ns := range models.Namespaces {
		blobs, err := s.blobs.List(ctx, ns)
		if err != nil {
			return result, internalError(err)
		}
		for _, blob := range blobs {
			if _, ok := referenced[ns][blob.Key]; ok {
				continue
			}
			if minAge > 0 && blob.ModifiedAt.After(cutoff) {
				continue
			}
			result.Candidates = append(result.Candidates, blob)
		}
	}
	result.CandidateCount = len(result.Candidates)

	if !apply {
		return result, nil
	}
	for _, blob := range result.Candidates {
		if err := s.blobs.Delete(ctx, blob.Namespace, blob.Key); err != nil {
			result.FailedCount++
			s.logger.Warn("orphan delete failed", "namespace", blob.Namespace, "key", blob.Key, "error", err)
			continue
		}
		result.DeletedCount++
		result.ReclaimedBytes += blob.SizeBytes
	}
	s.metrics.recordOrphansDeleted(result.DeletedCount)
	s.logger.Info("orphan sweep", "candidates", result.CandidateCount, "deleted", result.DeletedCount, "failed", result.FailedCount)
	return result, nil
}

func keySet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		set[key] = struct{}{}
	}
	return set
}
