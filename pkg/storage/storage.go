// Package storage archives raw import uploads so they can be audited and
// replayed later.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrUploadNotFound is returned when an archive has no upload with the given ID
var ErrUploadNotFound = errors.New("upload not found")

// Upload contains metadata about an archived file
type Upload struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Format    string    `json:"format,omitempty"`
	Scenario  string    `json:"scenario,omitempty"`
	Size      int64     `json:"size"`
	Path      string    `json:"path"` // relative to the archive root
	CreatedAt time.Time `json:"created_at"`
	Outcome   *Outcome  `json:"outcome,omitempty"`
}

// Outcome is what importing an upload produced
type Outcome struct {
	ImportedPlans    int       `json:"imported_plans"`
	ImportedExpenses int       `json:"imported_expenses"`
	SkippedRows      int       `json:"skipped_rows"`
	Error            string    `json:"error,omitempty"`
	CompletedAt      time.Time `json:"completed_at"`
}

// Archive defines the upload archive operations
type Archive interface {
	// Save stores the raw upload and its metadata
	Save(ctx context.Context, filename, scenario string, r io.Reader) (*Upload, error)

	// Record attaches the import outcome to an archived upload
	Record(ctx context.Context, id uuid.UUID, outcome Outcome) error

	// Open returns the raw bytes of an upload
	Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, *Upload, error)

	// Get returns metadata without opening the file
	Get(ctx context.Context, id uuid.UUID) (*Upload, error)

	// List returns every archived upload, oldest first
	List(ctx context.Context) ([]*Upload, error)

	// Delete removes an upload and its metadata
	Delete(ctx context.Context, id uuid.UUID) error
}

// New opens the local archive rooted at dir
func New(dir string) (Archive, error) {
	return NewLocalArchive(dir)
}
