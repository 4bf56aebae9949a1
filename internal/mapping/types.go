package mapping

import (
	"encoding/json"
	"fmt"
)

// SourceEntity is a canonical table or field. ID is the stable canonical id;
// AirtableID is the entity's live id in the canonical environment.
type SourceEntity struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	AirtableID string `json:"airtableId" yaml:"airtableId"`
}

// Ref points at a source entity. In mapping files it is written either as the
// embedded entity or as a bare canonical id string. A ref keeps the form it
// was loaded in.
type Ref struct {
	ID string

	embedded *SourceEntity
}

// UnmarshalJSON accepts "id", {"id": ...} and null
func (r *Ref) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Ref{}
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = Ref{ID: id}
		return nil
	}
	var e SourceEntity
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("source reference must be an id or an object: %w", err)
	}
	*r = Ref{ID: e.ID, embedded: &e}
	return nil
}

// MarshalJSON writes the embedded entity for refs loaded that way, null for
// an empty ref and the bare canonical id otherwise
func (r Ref) MarshalJSON() ([]byte, error) {
	switch {
	case r.embedded != nil && r.embedded.ID == r.ID:
		return json.Marshal(r.embedded)
	case r.ID == "":
		return []byte("null"), nil
	default:
		return json.Marshal(r.ID)
	}
}

// ClientField binds a client's live field to one canonical field
type ClientField struct {
	ID          string `json:"id"`
	SourceField Ref    `json:"sourceField"`
}

// ClientTable binds a client's live table to one canonical table
type ClientTable struct {
	ID          string        `json:"id"`
	SourceTable Ref           `json:"sourceTable"`
	Fields      []ClientField `json:"fields"`
}

// ClientEnvironment is one client's mapping and currently applied version
type ClientEnvironment struct {
	ID      string        `json:"id"`
	Version string        `json:"version"`
	Tables  []ClientTable `json:"tables"`
}

// Source is the canonical catalog
type Source struct {
	Tables []SourceEntity `json:"tables"`
	Fields []SourceEntity `json:"fields"`
}

// File is the on-disk mapping document
type File struct {
	Source  Source              `json:"source"`
	Clients []ClientEnvironment `json:"clients"`
}

// Table returns the mapped table with the given live id, or nil
func (e *ClientEnvironment) Table(liveID string) *ClientTable {
	for i := range e.Tables {
		if e.Tables[i].ID == liveID {
			return &e.Tables[i]
		}
	}
	return nil
}

// Field returns the first field mapped to sourceFieldID, or nil
func (t *ClientTable) Field(sourceFieldID string) *ClientField {
	for i := range t.Fields {
		if t.Fields[i].SourceField.ID == sourceFieldID {
			return &t.Fields[i]
		}
	}
	return nil
}

func (e ClientEnvironment) clone() ClientEnvironment {
	out := e
	out.Tables = make([]ClientTable, len(e.Tables))
	for i, t := range e.Tables {
		t.Fields = append([]ClientField(nil), t.Fields...)
		out.Tables[i] = t
	}
	return out
}
