package models

import (
	"fmt"
	"strings"
	"time"
)

// Namespace is one logical blob directory.
type Namespace string

const (
	NamespaceOriginals Namespace = "originals"
	NamespaceGenerated Namespace = "generated"
)

// Namespaces lists every blob namespace in a stable order.
var Namespaces = []Namespace{NamespaceOriginals, NamespaceGenerated}

// ParseNamespace normalizes a namespace name. "original" is accepted as an alias.
func ParseNamespace(raw string) (Namespace, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "originals", "original", "uploads":
		return NamespaceOriginals, nil
	case "generated":
		return NamespaceGenerated, nil
	default:
		return "", fmt.Errorf("invalid namespace: %s", raw)
	}
}

// BlobInfo describes one stored blob without its content.
type BlobInfo struct {
	Namespace  Namespace `json:"namespace"`
	Key        string    `json:"key"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}
