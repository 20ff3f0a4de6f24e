// Package storage defines the output tree file-system abstraction.
package storage

import "github.com/starford/clickup-notes/internal/models"

// Provider is the interface for output tree operations. All paths are
// relative to the provider root.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Mkdir creates dir and any missing parents.
	Mkdir(dir string) error
	// Create writes content to a new file at path. It fails with
	// apperr.ErrAlreadyExists if the file is already there.
	Create(path string, content []byte) error
}
