package models

// NoteMetadata is a lightweight listing entry for a written note file.
type NoteMetadata struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
}
