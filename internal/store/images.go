package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"reimagine/internal/models"
)

const imageColumns = "id, filename, comment, generated_filename, created_at, updated_at"

// ErrConflict is returned when an image with the same filename already exists.
var ErrConflict = errors.New("image already exists")

// CreateImage inserts one image row. A missing id is generated.
func (s *Store) CreateImage(ctx context.Context, image *models.Image) error {
	if image == nil {
		return fmt.Errorf("image is required")
	}
	if strings.TrimSpace(image.Filename) == "" {
		return fmt.Errorf("filename is required")
	}

	now := time.Now().UTC()
	if image.CreatedAt.IsZero() {
		image.CreatedAt = now
	}
	if image.UpdatedAt.IsZero() {
		image.UpdatedAt = image.CreatedAt
	}
	if image.ID == "" {
		id, err := GenerateImageID(func(id string) (bool, error) { return s.imageIDExists(ctx, id) })
		if err != nil {
			return err
		}
		image.ID = id
	}

	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`INSERT INTO images (`+imageColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		image.ID,
		image.Filename,
		image.Comment,
		nullString(image.GeneratedFilename),
		formatTime(image.CreatedAt),
		formatTime(image.UpdatedAt),
	)
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// GetImage returns the image with the given filename, or nil if absent.
func (s *Store) GetImage(ctx context.Context, filename string) (*models.Image, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+imageColumns+` FROM images WHERE filename = ?`), filename)
	return scanImage(row)
}

// ListImages returns every image ordered by creation time.
func (s *Store) ListImages(ctx context.Context) ([]models.Image, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+imageColumns+` FROM images ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := []models.Image{}
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		if image == nil {
			continue
		}
		images = append(images, *image)
	}
	return images, rows.Err()
}

// ListFilenames returns the original filename of every record.
func (s *Store) ListFilenames(ctx context.Context) ([]string, error) {
	return s.listNames(ctx, `SELECT filename FROM images`)
}

// ListGeneratedFilenames returns every generated key currently referenced by a record.
func (s *Store) ListGeneratedFilenames(ctx context.Context) ([]string, error) {
	return s.listNames(ctx, `SELECT generated_filename FROM images WHERE generated_filename IS NOT NULL`)
}

func (s *Store) listNames(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// UpdateComment replaces the comment on one image. It reports whether a row matched.
func (s *Store) UpdateComment(ctx context.Context, filename, comment string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`UPDATE images SET comment = ?, updated_at = ? WHERE filename = ?`),
		comment, formatTime(time.Now()), filename)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// SetGenerated points an image at a generated blob key. Updating a missing
// row is not an error; the caller checks the returned flag.
func (s *Store) SetGenerated(ctx context.Context, filename, generatedFilename string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`UPDATE images SET generated_filename = ?, updated_at = ? WHERE filename = ?`),
		generatedFilename, formatTime(time.Now()), filename)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// DeleteImage removes one image row. It reports whether a row was removed.
func (s *Store) DeleteImage(ctx context.Context, filename string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM images WHERE filename = ?`), filename)
	if err != nil {
		return false, err
	}
	return affected(res)
}

// Reset drops the images table and rebuilds the schema from scratch in one
// transaction. It does not read existing rows.
func (s *Store) Reset(ctx context.Context) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DROP TABLE IF EXISTS images`); err != nil {
		return fmt.Errorf("drop images: %w", err)
	}
	if err = ensureMigrationsTable(tx); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		return fmt.Errorf("clear migrations: %w", err)
	}
	for _, m := range sortedMigrations() {
		if err = applyMigration(ctx, tx, s.dialect, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CountImages returns the number of image rows.
func (s *Store) CountImages(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&count)
	return count, err
}

func (s *Store) imageIDExists(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind("SELECT 1 FROM images WHERE id = ? LIMIT 1"), id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanImage(scanner interface {
	Scan(dest ...any) error
}) (*models.Image, error) {
	var image models.Image
	var generated sql.NullString
	var createdAt, updatedAt string

	if err := scanner.Scan(
		&image.ID,
		&image.Filename,
		&image.Comment,
		&generated,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if generated.Valid && generated.String != "" {
		name := generated.String
		image.GeneratedFilename = &name
	}

	parsedCreated, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	parsedUpdated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	image.CreatedAt = parsedCreated
	image.UpdatedAt = parsedUpdated
	return &image, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullString(value *string) any {
	if value == nil || *value == "" {
		return nil
	}
	return *value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
