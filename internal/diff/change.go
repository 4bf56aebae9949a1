package diff

import (
	"fmt"

	"github.com/tordrt/schemamigrate/internal/schema"
)

// Action is a deferred mutation of a live environment. Executors dispatch on
// the concrete type.
type Action interface {
	Kind() string
}

// CreateField creates a missing field in a live table and records the new
// field against its canonical field
type CreateField struct {
	ClientID      string
	Table         schema.TableRef
	SourceFieldID string
	Spec          schema.FieldSpec
}

// Kind returns "createField"
func (CreateField) Kind() string { return "createField" }

// Change pairs a human-readable note with the action that carries it out
type Change struct {
	Note   string
	Action Action
}

func createFieldNote(field, table string) string {
	return fmt.Sprintf("Create a new field %s in the table %s.", field, table)
}

// WarningKind classifies a non-fatal gap found while diffing
type WarningKind string

const (
	// UnmappedTable is a live table with no mapping to a canonical table
	UnmappedTable WarningKind = "unmapped_table"
	// UnmappedField is a descriptor field with no canonical identity
	UnmappedField WarningKind = "unmapped_field"
	// MissingTable is a mapped table that no longer exists in the live environment
	MissingTable WarningKind = "missing_table"
)

// Warning reports a table or field that was skipped
type Warning struct {
	Kind      WarningKind
	TableID   string
	TableName string
	FieldName string
	Err       error
}

func (w Warning) String() string {
	switch w.Kind {
	case UnmappedTable:
		return fmt.Sprintf("table %s (%s) has no canonical mapping and was skipped", w.TableName, w.TableID)
	case UnmappedField:
		return fmt.Sprintf("field %s in table %s has no canonical identity and was skipped", w.FieldName, w.TableName)
	case MissingTable:
		return fmt.Sprintf("mapped table %s is missing from the live environment", w.TableID)
	default:
		return string(w.Kind)
	}
}

// Plan is the ordered set of changes needed to bring one client to a version
type Plan struct {
	ClientID      string
	TargetVersion string
	Changes       []Change
	Warnings      []Warning
}

// Empty reports whether the plan has no changes
func (p *Plan) Empty() bool {
	return len(p.Changes) == 0
}
