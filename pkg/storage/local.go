package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalArchive implements Archive on the local filesystem. Files live in
// <root>/<yyyy-mm>/ and metadata sidecars in <root>/.meta/<id>.json.
type LocalArchive struct {
	basePath string
	now      func() time.Time
	mu       sync.Mutex // serializes sidecar rewrites
}

// NewLocalArchive creates the archive directory when missing
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(filepath.Join(basePath, ".meta"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &LocalArchive{basePath: basePath, now: time.Now}, nil
}

// Save stores a file and returns its metadata
func (s *LocalArchive) Save(ctx context.Context, filename, scenario string, r io.Reader) (*Upload, error) {
	id := uuid.New()
	now := s.now().UTC()

	month := now.Format("2006-01")
	dir := filepath.Join(s.basePath, month)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create month directory: %w", err)
	}

	stored := fmt.Sprintf("%s_%s", id.String()[:8], sanitizeFilename(filepath.Base(filename)))
	path := filepath.Join(dir, stored)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	upload := &Upload{
		ID:        id,
		Name:      filename,
		Format:    strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."),
		Scenario:  strings.TrimSpace(scenario),
		Size:      size,
		Path:      filepath.ToSlash(filepath.Join(month, stored)),
		CreatedAt: now,
	}

	if err := s.writeMetadata(upload); err != nil {
		os.Remove(path)
		return nil, err
	}
	return upload, nil
}

// Record attaches the outcome to the upload sidecar
func (s *LocalArchive) Record(ctx context.Context, id uuid.UUID, outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	upload, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if outcome.CompletedAt.IsZero() {
		outcome.CompletedAt = s.now().UTC()
	}
	upload.Outcome = &outcome
	return s.writeMetadata(upload)
}

// Open returns a reader over the raw upload
func (s *LocalArchive) Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, *Upload, error) {
	upload, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(filepath.Join(s.basePath, filepath.FromSlash(upload.Path)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, upload, nil
}

// Get reads the metadata sidecar
func (s *LocalArchive) Get(ctx context.Context, id uuid.UUID) (*Upload, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, id)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var upload Upload
	if err := json.Unmarshal(data, &upload); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &upload, nil
}

// List returns all uploads ordered by creation time
func (s *LocalArchive) List(ctx context.Context) ([]*Upload, error) {
	entries, err := os.ReadDir(filepath.Join(s.basePath, ".meta"))
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}

	uploads := make([]*Upload, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		upload, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		uploads = append(uploads, upload)
	}

	sort.SliceStable(uploads, func(i, j int) bool {
		return uploads[i].CreatedAt.Before(uploads[j].CreatedAt)
	})
	return uploads, nil
}

// Delete removes the file and its sidecar
func (s *LocalArchive) Delete(ctx context.Context, id uuid.UUID) error {
	upload, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	path := filepath.Join(s.basePath, filepath.FromSlash(upload.Path))
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}

func (s *LocalArchive) metaPath(id uuid.UUID) string {
	return filepath.Join(s.basePath, ".meta", id.String()+".json")
}

func (s *LocalArchive) writeMetadata(upload *Upload) error {
	data, err := json.MarshalIndent(upload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(upload.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// sanitizeFilename removes unsafe characters from filenames
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return replacer.Replace(name)
}
