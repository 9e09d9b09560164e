package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/google/renameio/v2"
)

// Store loads and persists Settings in a TOML file.
// The in-memory copy is authoritative; Write is best effort.
type Store struct {
	path    string
	current *Settings
}

// Open loads settings from path. A missing file yields Defaults.
func Open(path string) (*Store, error) {
	s := Defaults()
	if _, err := toml.DecodeFile(path, &s); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load settings %s: %w", path, err)
		}
	}
	if s.Sleep.Timeout.Duration <= 0 {
		s.Sleep.Timeout.Duration = DefaultSleepTimeout
	}
	return &Store{path: path, current: &s}, nil
}

// NewMemoryStore returns a Store that never touches disk. Write is a no-op.
func NewMemoryStore(s Settings) *Store {
	return &Store{current: &s}
}

// Settings returns the live settings. Callers mutate it in place and then
// send the matching change notification.
func (s *Store) Settings() *Settings {
	return s.current
}

// Path returns the backing file, or "" for a memory store.
func (s *Store) Path() string {
	return s.path
}

// Write persists the current settings atomically.
func (s *Store) Write() error {
	if s.path == "" {
		return nil
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s.current); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := renameio.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write settings %s: %w", s.path, err)
	}
	return nil
}

// Exists reports whether the settings file is present on disk.
func (s *Store) Exists() bool {
	if s.path == "" {
		return false
	}
	_, err := os.Stat(s.path)
	return err == nil
}
