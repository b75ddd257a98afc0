// Package store persists bridge settings.
package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/ericogr/xbridge/pkg/config"
	"gopkg.in/yaml.v3"
)

// ErrPersistence wraps every load or save failure.
var ErrPersistence = errors.New("store: persistence failed")

type Store interface {
	Load() (config.Settings, error)
	Save(config.Settings) error
	Close() error
}

// FileStore keeps settings in a YAML file. A missing file loads defaults.
type FileStore struct {
	Path string
}

func NewFile(path string) *FileStore { return &FileStore{Path: path} }

func (f *FileStore) Load() (config.Settings, error) {
	s := config.DefaultSettings()
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("%w: read %s: %w", ErrPersistence, f.Path, err)
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return config.DefaultSettings(), fmt.Errorf("%w: parse %s: %w", ErrPersistence, f.Path, err)
	}
	return s, nil
}

// Save writes to a temporary file and renames it over the old one.
func (f *FileStore) Save(s config.Settings) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrPersistence, err)
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrPersistence, tmp, err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("%w: rename %s: %w", ErrPersistence, f.Path, err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }

// Memory is an in-process Store for tests and simulation.
type Memory struct {
	Settings config.Settings
	Saves    int
	Err      error
}

func NewMemory(s config.Settings) *Memory { return &Memory{Settings: s} }

func (m *Memory) Load() (config.Settings, error) {
	if m.Err != nil {
		return config.DefaultSettings(), fmt.Errorf("%w: %w", ErrPersistence, m.Err)
	}
	return m.Settings, nil
}

func (m *Memory) Save(s config.Settings) error {
	if m.Err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, m.Err)
	}
	m.Settings = s
	m.Saves++
	return nil
}

func (m *Memory) Close() error { return nil }
