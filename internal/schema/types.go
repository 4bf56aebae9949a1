package schema

// Snapshot represents the live structure of one environment
type Snapshot struct {
	Tables []Table
}

// Table represents a live table
type Table struct {
	ID             string
	Name           string
	Description    string
	PrimaryFieldID string
	Fields         []Field
	Deleted        bool
}

// Field represents a live field (column)
type Field struct {
	ID          string
	Name        string
	Type        string
	Description string
	Options     map[string]any
	Deleted     bool
}

// TableRef identifies the table a field is created in
type TableRef struct {
	ID   string
	Name string
}

// FieldSpec describes a field to create
type FieldSpec struct {
	Name        string
	Type        string
	Options     map[string]any
	Description string
}

// Table returns the table with the given live id, or nil
func (s *Snapshot) Table(id string) *Table {
	for i := range s.Tables {
		if s.Tables[i].ID == id {
			return &s.Tables[i]
		}
	}
	return nil
}

// Ref returns a TableRef for t
func (t *Table) Ref() TableRef {
	return TableRef{ID: t.ID, Name: t.Name}
}

// Field returns the field with the given live id, or nil
func (t *Table) Field(id string) *Field {
	for i := range t.Fields {
		if t.Fields[i].ID == id {
			return &t.Fields[i]
		}
	}
	return nil
}

// PrimaryField returns the table's primary field. Tables without an explicit
// primary field fall back to their first field.
func (t *Table) PrimaryField() *Field {
	if t.PrimaryFieldID != "" {
		if f := t.Field(t.PrimaryFieldID); f != nil {
			return f
		}
	}
	if len(t.Fields) > 0 {
		return &t.Fields[0]
	}
	return nil
}
