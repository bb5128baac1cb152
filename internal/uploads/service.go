package uploads

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Stager keeps uploaded spreadsheets in staging storage while they are
// ingested.
type Stager struct {
	Driver StorageDriver
}

func NewStager(driver StorageDriver) *Stager {
	return &Stager{Driver: driver}
}

// Stage stores the upload under a fresh key that keeps the original
// extension, so the reader can still pick the format from it.
func (s *Stager) Stage(ctx context.Context, filename string, reader io.Reader, size int64, mime string) (*StagedFile, error) {
	if mime == "" {
		mime = "application/octet-stream"
	}
	id := uuid.New()
	ext := strings.ToLower(filepath.Ext(filename))
	key := fmt.Sprintf("%s%s", id.String(), ext)

	if err := s.Driver.Save(ctx, key, reader, mime); err != nil {
		return nil, fmt.Errorf("storage driver failed: %w", err)
	}

	staged := &StagedFile{
		ID:       id,
		Name:     filepath.Base(filename),
		Key:      key,
		Size:     size,
		MimeType: mime,
	}

	slog.InfoContext(ctx, "upload staged", "id", id, "key", key, "name", staged.Name, "size", size)
	return staged, nil
}

// Open streams a staged file back.
func (s *Stager) Open(ctx context.Context, f *StagedFile) (io.ReadCloser, error) {
	return s.Driver.Open(ctx, f.Key)
}

// Discard removes a staged file. Failures are logged, not returned, since the
// ingestion result no longer depends on the staged copy.
func (s *Stager) Discard(ctx context.Context, f *StagedFile) {
	if err := s.Driver.Delete(ctx, f.Key); err != nil {
		slog.WarnContext(ctx, "failed to discard staged upload", "key", f.Key, "error", err)
	}
}
