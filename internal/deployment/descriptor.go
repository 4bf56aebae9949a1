// Package deployment defines versioned canonical schema descriptors: what a
// client environment should contain once it is migrated to a version.
package deployment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/tordrt/schemamigrate/internal/mapping"
)

var (
	// ErrInvalidVersion is returned for versions that are not semantic versions
	ErrInvalidVersion = errors.New("invalid version")
	// ErrDuplicateVersion is returned when two descriptors share a version
	ErrDuplicateVersion = errors.New("duplicate version")
	// ErrInvalidDescriptor is returned for structurally invalid descriptors
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)

// Descriptor is an immutable canonical schema definition at one version
type Descriptor struct {
	Version string     `json:"version" yaml:"version" validate:"semver"`
	Author  string     `json:"author" yaml:"author"`
	Notes   string     `json:"notes,omitempty" yaml:"notes,omitempty"`
	Tables  []TableDef `json:"tables" yaml:"tables" validate:"dive"`
}

// TableDef defines one canonical table
type TableDef struct {
	ID           string                `json:"id" yaml:"id" validate:"required"`
	Name         string                `json:"name" yaml:"name" validate:"required"`
	Description  string                `json:"description" yaml:"description"`
	SourceTable  *mapping.SourceEntity `json:"sourceTable" yaml:"sourceTable"`
	PrimaryField FieldDef              `json:"primaryField" yaml:"primaryField" validate:"-"`
	Fields       []FieldDef            `json:"fields" yaml:"fields" validate:"dive"`
}

// FieldDef defines one canonical field. Config is the type-tagged
// configuration payload; its "options" entry is handed to field creation.
type FieldDef struct {
	ID          string                `json:"id" yaml:"id" validate:"required"`
	Name        string                `json:"name" yaml:"name" validate:"required"`
	Description string                `json:"description" yaml:"description"`
	Type        string                `json:"type" yaml:"type" validate:"required"`
	Config      map[string]any        `json:"config" yaml:"config"`
	SourceField *mapping.SourceEntity `json:"sourceField" yaml:"sourceField"`
}

// Options returns the type options carried in the field's config
func (f FieldDef) Options() map[string]any {
	opts, _ := f.Config["options"].(map[string]any)
	return opts
}

// Validate checks the descriptor's version and structure
func (d *Descriptor) Validate() error {
	if !ValidVersion(d.Version) {
		return fmt.Errorf("%q: %w", d.Version, ErrInvalidVersion)
	}
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("version %s: %w: %v", d.Version, ErrInvalidDescriptor, err)
	}
	for _, t := range d.Tables {
		// The primary field may be left out of hand-written descriptors.
		if t.PrimaryField.ID == "" && t.PrimaryField.Name == "" {
			continue
		}
		if err := validate.Struct(t.PrimaryField); err != nil {
			return fmt.Errorf("version %s: table %s primary field: %w: %v", d.Version, t.Name, ErrInvalidDescriptor, err)
		}
	}
	return nil
}

// Load parses a descriptor in JSON or YAML form and validates it
func Load(r io.Reader) (*Descriptor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	var d Descriptor
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		err = json.Unmarshal(data, &d)
	} else {
		err = yaml.Unmarshal(data, &d)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse descriptor: %w", err)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadFile loads a descriptor from path
func LoadFile(path string) (*Descriptor, error) {
	// #nosec G304 - path comes from configuration
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open descriptor: %w", err)
	}
	defer file.Close()

	d, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return d, nil
}

// LoadDir loads every descriptor file in dir. Versions must be unique.
func LoadDir(dir string) ([]*Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployments directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	var all []*Descriptor
	for _, p := range paths {
		d, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, d)
	}

	if err := CheckUnique(all); err != nil {
		return nil, err
	}
	return all, nil
}

// CheckUnique fails with ErrDuplicateVersion when two descriptors resolve to
// the same semantic version
func CheckUnique(all []*Descriptor) error {
	seen := make(map[string]string, len(all))
	for _, d := range all {
		key := semver.Canonical(canonical(d.Version))
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("%s and %s: %w", prev, d.Version, ErrDuplicateVersion)
		}
		seen[key] = d.Version
	}
	return nil
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
		return ValidVersion(fl.Field().String())
	})
}
