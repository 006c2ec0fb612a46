package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Image is the relational record tracking one uploaded original and the
// generated output linked to it.
type Image struct {
	ID                string    `json:"id"`
	Filename          string    `json:"filename"`
	Comment           string    `json:"comment"`
	GeneratedFilename *string   `json:"generated_filename"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// HasGenerated reports whether a generated blob is linked to the record.
func (i Image) HasGenerated() bool {
	return i.GeneratedFilename != nil && *i.GeneratedFilename != ""
}

// GeneratedName returns the linked generated filename or "".
func (i Image) GeneratedName() string {
	if i.GeneratedFilename == nil {
		return ""
	}
	return *i.GeneratedFilename
}

var allowedImageExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
}

// AllowedImageExtension reports whether filename carries an upload-eligible extension.
func AllowedImageExtension(filename string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	_, ok := allowedImageExtensions[ext]
	return ok
}

// SanitizeFilename reduces a client supplied name to a safe flat filename.
// Path components are dropped, whitespace becomes underscores and any rune
// outside [A-Za-z0-9._-] is removed. Leading dots are stripped.
func SanitizeFilename(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, "\\", "/")
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		raw = raw[idx+1:]
	}

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r == ' ' || r == '\t':
			b.WriteByte('_')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}

	name := strings.TrimLeft(b.String(), "._")
	if name == "" {
		return "", fmt.Errorf("filename is empty after sanitization")
	}
	return name, nil
}
