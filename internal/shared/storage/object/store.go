package object

import (
	"context"
	"io"
)

// Store saves and retrieves transcript documents and job outputs.
type Store interface {
	// Save writes r under namespace with a random prefix and returns the generated key.
	Save(ctx context.Context, namespace string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	// SaveWithKey writes r at exactly storageKey, replacing any existing object.
	SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}
