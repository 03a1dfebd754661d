package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oshokin/ical-alarm-relay/internal/config"
	"github.com/oshokin/ical-alarm-relay/internal/domain/alarm"
)

// Repository defines persistence operations for notified alarms.
type Repository interface {
	Load(ctx context.Context) ([]alarm.Record, error)
	Save(ctx context.Context, records []alarm.Record) error
}

// FileRepository persists notified alarms to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the JSON artifact.
	path string
	// mu protects concurrent access to the artifact.
	mu sync.Mutex
}

// document is the on-disk layout.
type document struct {
	Alarms []alarm.Record `json:"alarms"`
}

var (
	// ErrNotFound is returned when the artifact does not exist yet.
	ErrNotFound = errors.New("state not found")
	// ErrCorrupt is returned when the artifact cannot be decoded.
	ErrCorrupt = errors.New("state file is corrupt")
)

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the artifact location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the records from disk in stored order.
func (r *FileRepository) Load(_ context.Context) ([]alarm.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	var doc document
	if err = json.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, r.path, err)
	}

	return doc.Alarms, nil
}

// Save replaces the artifact with records.
// The data goes to a temporary file in the same directory first, so readers
// never observe a partially written artifact.
func (r *FileRepository) Save(_ context.Context, records []alarm.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if records == nil {
		records = []alarm.Record{}
	}

	data, err := json.Marshal(document{Alarms: records})
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary state file: %w", err)
	}

	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write state file: %w", err)
	}

	if err = tmp.Chmod(config.DefaultFilePermissions); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("chmod state file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}

	if err = os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}
