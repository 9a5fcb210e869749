// Package blobstore abstracts the durable key/value store holding
// serialized section records, keyed by the canonical position string.
// Any transactional blob store keyed this way suffices; implementations
// exist for memory (tests), the local filesystem, S3, MinIO and
// DynamoDB.
package blobstore

import (
	"context"
	"os"
)

// ErrNotFound is returned when no record exists for a key.
//
// Implementations return an error satisfying errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// Store is the durable storage collaborator. Values are opaque record
// bytes; the engine handles summaries, checksums and payloads itself.
type Store interface {
	// Load returns the record stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Put stores the record under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error
	// Has reports whether a record exists under key.
	Has(ctx context.Context, key string) (bool, error)
	// Delete removes the record under key. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error
	// DeleteAll removes every record.
	DeleteAll(ctx context.Context) error
	// List returns every stored key.
	List(ctx context.Context) ([]string, error)
}
