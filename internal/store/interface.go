package store

import (
	"context"

	"reimagine/internal/models"
)

// ImageStore abstracts image record storage backends.
type ImageStore interface {
	CreateImage(ctx context.Context, image *models.Image) error
	GetImage(ctx context.Context, filename string) (*models.Image, error)
	ListImages(ctx context.Context) ([]models.Image, error)
	ListFilenames(ctx context.Context) ([]string, error)
	ListGeneratedFilenames(ctx context.Context) ([]string, error)
	CountImages(ctx context.Context) (int, error)
	UpdateComment(ctx context.Context, filename, comment string) (bool, error)
	SetGenerated(ctx context.Context, filename, generatedFilename string) (bool, error)
	DeleteImage(ctx context.Context, filename string) (bool, error)
	Reset(ctx context.Context) error
}

var _ ImageStore = (*Store)(nil)
