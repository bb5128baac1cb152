package uploads

import (
	"context"
	"io"
)

// StorageDriver stores staged spreadsheets until they have been ingested.
type StorageDriver interface {
	// Save writes body under key.
	Save(ctx context.Context, key string, body io.Reader, contentType string) error

	// Open streams the content stored under key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
