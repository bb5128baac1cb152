package uploads

import (
	"github.com/google/uuid"
)

// StagedFile describes an upload held in staging storage.
type StagedFile struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	MimeType string    `json:"mime_type"`
}
