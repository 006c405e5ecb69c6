// Package storage defines the interface for image persistence.
// Two implementations exist: LocalStorage writes to a directory served as
// static files, MinioStorage talks to any S3-compatible provider (MinIO,
// ArvanCloud, AWS S3).
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a reference does not resolve to a stored object.
var ErrNotFound = errors.New("object not found")

// File is a payload to persist.
type File struct {
	Name        string // original filename as sent by the client
	Body        io.Reader
	Size        int64 // -1 when unknown
	ContentType string
}

// Object describes a persisted file.
type Object struct {
	// URL is where the object can be retrieved.
	URL string
	// ID is the store-assigned identifier. Empty for backends whose URL
	// doubles as the reference.
	ID string
}

// Storage is the interface for storing and removing images.
type Storage interface {
	// Save persists f under a newly generated unique name.
	Save(ctx context.Context, f File) (*Object, error)
	// Delete removes the object identified by ref.
	Delete(ctx context.Context, ref string) error
}
