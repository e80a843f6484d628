package run

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/faize-ai/diskconv/internal/config"
)

// Store manages run record persistence at ~/.diskconv/runs/
type Store struct {
	dir string
}

// NewStore creates a store under the user's home directory
func NewStore() (*Store, error) {
	configDir, err := config.ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewStoreAt(filepath.Join(configDir, "runs"))
}

// NewStoreAt creates a store rooted at dir
func NewStoreAt(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// NewRecord creates a record with a fresh ID in the planned state
func NewRecord(domain, uri, targetFormat string) *Record {
	return &Record{
		ID:           uuid.NewString(),
		Domain:       domain,
		URI:          uri,
		TargetFormat: targetFormat,
		Status:       StatusPlanned,
		Tasks:        []TaskRecord{},
		StartedAt:    time.Now(),
	}
}

// Filter selects records in List. A nil Filter selects every record.
type Filter func(*Record) bool

// WithStatus selects records in one of the given states
func WithStatus(statuses ...string) Filter {
	return func(r *Record) bool {
		for _, status := range statuses {
			if r.Status == status {
				return true
			}
		}
		return false
	}
}

func (s *Store) path(id string) (string, error) {
	// Record IDs are UUIDs; anything else could escape the runs directory
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid run id %q", id)
	}
	return filepath.Join(s.dir, id+recordExt), nil
}

const recordExt = ".json"

// Save writes record atomically, so a crash mid-run never leaves a
// truncated file behind
func (s *Store) Save(record *Record) error {
	path, err := s.path(record.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".run-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write run record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	return nil
}

// Load reads the record with the given ID
func (s *Store) Load(id string) (*Record, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	record, err := readRecord(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return record, err
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run record %s: %w", filepath.Base(path), err)
	}
	return &record, nil
}

// List returns the records selected by match, newest first. Unreadable
// files are skipped.
func (s *Store) List(match Filter) ([]*Record, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*"+recordExt))
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	records := []*Record{}
	for _, path := range paths {
		record, err := readRecord(path)
		if err != nil {
			continue
		}
		if match == nil || match(record) {
			records = append(records, record)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	return records, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *Store) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete run record: %w", err)
	}
	return nil
}

// Dir returns the record storage directory
func (s *Store) Dir() string {
	return s.dir
}
