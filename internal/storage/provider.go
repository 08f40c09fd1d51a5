// Package storage provides the persistence primitives used by the front-end
// and tooling: a key/value Provider that plays the role of browser local
// storage, and a file-system store for content and uploads.
package storage

import (
	"context"
	"time"
)

// Provider is a string key/value store.
type Provider interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes the given keys. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error
}

// Files is the interface for file operations relative to a root directory.
type Files interface {
	// List returns metadata for every file under dir whose name ends with ext
	// (all files when ext is empty).
	List(dir, ext string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}

// FileInfo describes one file returned by Files.List.
type FileInfo struct {
	Path      string
	Checksum  string
	Size      int64
	UpdatedAt time.Time
}
