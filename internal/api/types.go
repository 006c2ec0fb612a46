package api

import "reimagine/internal/models"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// GenerateRequest asks for a generated image. A nil Comment uses the stored one.
type GenerateRequest struct {
	Filename string  `json:"filename"`
	Comment  *string `json:"comment,omitempty"`
}

// CommentUpdateRequest replaces a record's comment.
type CommentUpdateRequest struct {
	Comment *string `json:"comment"`
}

// DeleteResponse acknowledges a delete.
type DeleteResponse struct {
	Filename string `json:"filename"`
	Deleted  bool   `json:"deleted"`
}

// ResetResponse reports how many records and blobs a reset removed.
type ResetResponse struct {
	RecordsRemoved  int `json:"records_removed"`
	OriginalsPurged int `json:"originals_purged"`
	GeneratedPurged int `json:"generated_purged"`
}

// SweepResponse reports an orphan sweep.
type SweepResponse struct {
	CandidateCount int               `json:"candidate_count"`
	DeletedCount   int               `json:"deleted_count"`
	FailedCount    int               `json:"failed_count"`
	ReclaimedBytes int64             `json:"reclaimed_bytes"`
	DryRun         bool              `json:"dry_run"`
	Candidates     []models.BlobInfo `json:"candidates"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
}
