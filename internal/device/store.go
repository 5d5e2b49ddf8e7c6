package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNoRecord is returned by Load when no identity has been persisted yet.
var ErrNoRecord = errors.New("no device record")

// Store reads and writes the identity record file.
type Store struct {
	path string
}

// NewStore creates a store for the record at path.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultRecordPath
	}
	return &Store{path: path}
}

// Path returns the location of the record file.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a record file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the record. A missing file yields ErrNoRecord.
func (s *Store) Load() (Identity, error) {
	var id Identity
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return id, ErrNoRecord
		}
		return id, fmt.Errorf("failed to read device record: %w", err)
	}
	if err := json.Unmarshal(raw, &id); err != nil {
		return id, fmt.Errorf("failed to parse device record %s: %w", s.path, err)
	}
	return id, nil
}

// Save writes the record. The tamper-exit token is written only when
// withTamperExitToken is set; otherwise the field is blanked on disk while the
// caller's value is left untouched.
func (s *Store) Save(id Identity, withTamperExitToken bool) error {
	if !withTamperExitToken {
		id.TamperExitToken = ""
	}

	raw, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal device record: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	// Write to a sibling file and rename so a crash never leaves half a record.
	tmp, err := os.CreateTemp(dir, ".device-*")
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write device record: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set record permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close device record: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace device record: %w", err)
	}
	return nil
}

// Remove deletes the record. Removing an absent record is not an error.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove device record: %w", err)
	}
	return nil
}
