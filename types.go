package schemamigrate

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tordrt/schemamigrate/internal/deployment"
	"github.com/tordrt/schemamigrate/internal/diff"
	"github.com/tordrt/schemamigrate/internal/executor"
	"github.com/tordrt/schemamigrate/internal/mapping"
	"github.com/tordrt/schemamigrate/internal/schema"
)

type (
	// Store is a loaded mapping file
	Store = mapping.Store
	// Descriptor is one version of the canonical schema
	Descriptor = deployment.Descriptor
	// Reader reads the structure of a live environment
	Reader = schema.Reader
	// Environment is a live environment that can be read and extended
	Environment = schema.Environment
	// Snapshot is the live structure of an environment
	Snapshot = schema.Snapshot
	// Table is a live table
	Table = schema.Table
	// Field is a live field
	Field = schema.Field
	// MemoryEnvironment is an in-memory live environment
	MemoryEnvironment = schema.MemoryEnvironment
	// MigrationPlan lists the changes and warnings of a diff
	MigrationPlan = diff.Plan
	// Change is one planned change
	Change = diff.Change
	// Warning is a mapping gap found while diffing
	Warning = diff.Warning
	// Result holds one outcome per applied change
	Result = executor.Result
	// Outcome is the result of one change
	Outcome = executor.Outcome
	// Metrics are the executor's Prometheus collectors
	Metrics = executor.Metrics
)

// LoadMapping loads a mapping file
func LoadMapping(path string) (*Store, error) {
	return mapping.LoadFile(path)
}

// ParseMapping reads a mapping document
func ParseMapping(r io.Reader) (*Store, error) {
	return mapping.Load(r)
}

// SaveMapping writes store to path, replacing the file atomically
func SaveMapping(store *Store, path string) error {
	return store.SaveFile(path)
}

// LoadDeployments loads every descriptor in dir
func LoadDeployments(dir string) ([]*Descriptor, error) {
	return deployment.LoadDir(dir)
}

// NewMemoryEnvironment creates an in-memory environment holding a copy of s
func NewMemoryEnvironment(s *Snapshot) *MemoryEnvironment {
	return schema.NewMemoryEnvironment(s)
}

// NewMetrics registers the executor metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return executor.NewMetrics(reg)
}
