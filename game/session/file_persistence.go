package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	recordExt = ".json"
	tempExt   = ".tmp"
)

// FilePersistence keeps one JSON file per session in a directory.
type FilePersistence struct {
	dir string
}

// NewFilePersistence creates the sessions directory if needed.
func NewFilePersistence(dir string) (*FilePersistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return &FilePersistence{dir: dir}, nil
}

// Dir returns the sessions directory.
func (fp *FilePersistence) Dir() string {
	return fp.dir
}

// Save writes the record to a temporary file and renames it over the old
// one, so readers never see a partial record.
func (fp *FilePersistence) Save(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	path, err := fp.path(rec.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", rec.ID, err)
	}

	tmp, err := os.CreateTemp(fp.dir, rec.ID+"-*"+tempExt)
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Load reads a session record.
func (fp *FilePersistence) Load(id string) (*Record, error) {
	path, err := fp.path(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	if rec.Version > RecordVersion {
		return nil, fmt.Errorf("%w: %s has version %d, newest known is %d", ErrUnsupportedRecord, id, rec.Version, RecordVersion)
	}
	if rec.RoadState == nil {
		return nil, fmt.Errorf("%w: %s has no road state", ErrUnsupportedRecord, id)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return &rec, nil
}

// Delete removes a session file.
func (fp *FilePersistence) Delete(id string) error {
	path, err := fp.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// ListAll returns the IDs of every session file. Files whose name is not a
// valid session ID are skipped.
func (fp *FilePersistence) ListAll() ([]string, error) {
	entries, err := os.ReadDir(fp.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		id, err := normalizeID(strings.TrimSuffix(name, recordExt))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Exists reports whether a session file exists.
func (fp *FilePersistence) Exists(id string) bool {
	path, err := fp.path(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (fp *FilePersistence) path(id string) (string, error) {
	key, err := normalizeID(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(fp.dir, key+recordExt), nil
}
