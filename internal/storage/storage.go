package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Package storage holds uploaded document bytes. Keys form a flat namespace:
// a key never contains a path separator and is never overwritten.

// ErrObjectNotFound is returned by Get when the key has no bytes behind it.
var ErrObjectNotFound = errors.New("object not found")

// ErrObjectExists is returned by Put when the key is already taken.
var ErrObjectExists = errors.New("object already exists")

// ErrInvalidKey is returned for keys that would escape the flat namespace.
var ErrInvalidKey = errors.New("invalid object key")

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
// ContentType and Metadata are optional.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is the document byte store.
// Methods use context and streaming readers; implementations are safe for concurrent use.
type Storage interface {
	// Put stores the reader's bytes under key. If reading r fails part way,
	// nothing is left behind under key.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	// A missing object yields ErrObjectNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes an object by key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns every key currently stored.
	List(ctx context.Context) ([]string, error)
}
