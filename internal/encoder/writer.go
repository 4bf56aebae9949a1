package encoder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tordrt/schemamigrate/internal/deployment"
)

// Format is a descriptor serialization format
type Format string

const (
	// FormatJSON writes indented JSON
	FormatJSON Format = "json"
	// FormatYAML writes YAML
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatYAML:
		return Format(s), nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q (use json or yaml)", s)
	}
}

// WriteDescriptor serializes d to w
func WriteDescriptor(w io.Writer, d *deployment.Descriptor, f Format) error {
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("failed to encode descriptor: %w", err)
		}
		return enc.Close()
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("failed to encode descriptor: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
}

// WriteFile writes d to path, replacing the file atomically
func WriteFile(path string, d *deployment.Descriptor, f Format) error {
	var buf bytes.Buffer
	if err := WriteDescriptor(&buf, d, f); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
