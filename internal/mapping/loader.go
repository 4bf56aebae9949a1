package mapping

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Load parses a mapping document and builds a store from it
func Load(r io.Reader) (*Store, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse mapping: %w", err)
	}
	return New(&f), nil
}

// LoadFile loads a mapping document from path
func LoadFile(path string) (*Store, error) {
	// #nosec G304 - path comes from configuration
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping file: %w", err)
	}
	defer file.Close()

	s, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Save writes the store as an indented mapping document
func (s *Store) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.Document()); err != nil {
		return fmt.Errorf("failed to write mapping: %w", err)
	}
	return nil
}

// SaveFile writes the store to path, replacing the file atomically
func (s *Store) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create mapping directory: %w", err)
	}

	data, err := json.MarshalIndent(s.Document(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
