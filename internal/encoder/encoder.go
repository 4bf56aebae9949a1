// Package encoder turns live environments into deployment descriptors and
// mapping entries.
package encoder

import (
	"fmt"
	"strings"

	"github.com/tordrt/schemamigrate/internal/deployment"
	"github.com/tordrt/schemamigrate/internal/mapping"
	"github.com/tordrt/schemamigrate/internal/schema"
)

// Author identifies who encoded a descriptor
type Author struct {
	Name  string
	Email string
}

// String formats the author as "Name <email>", or "unknown" without a name
func (a Author) String() string {
	if a.Name == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// Encode builds a descriptor from a live snapshot. Tables and fields are
// attached to their canonical entities through the client's mapping when
// clientID is set, and through the source catalog's live ids otherwise.
// Entities without a canonical match are encoded with a nil reference.
func Encode(live *schema.Snapshot, store *mapping.Store, clientID, version string, author Author) (*deployment.Descriptor, error) {
	if !deployment.ValidVersion(version) {
		return nil, fmt.Errorf("%q: %w", version, deployment.ErrInvalidVersion)
	}

	r := resolver{store: store}
	if clientID != "" {
		env, err := store.Resolve(clientID)
		if err != nil {
			return nil, err
		}
		r.env = env
	}

	d := &deployment.Descriptor{
		Version: version,
		Author:  author.String(),
		Tables:  []deployment.TableDef{},
	}

	for i := range live.Tables {
		t := &live.Tables[i]
		if t.Deleted {
			continue
		}

		def := deployment.TableDef{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			SourceTable: r.table(t.ID),
			Fields:      []deployment.FieldDef{},
		}
		if pf := t.PrimaryField(); pf != nil {
			def.PrimaryField = r.field(t.ID, pf)
		}
		for j := range t.Fields {
			if t.Fields[j].Deleted {
				continue
			}
			def.Fields = append(def.Fields, r.field(t.ID, &t.Fields[j]))
		}
		d.Tables = append(d.Tables, def)
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

type resolver struct {
	store *mapping.Store
	env   *mapping.ClientEnvironment
}

func (r resolver) table(liveID string) *mapping.SourceEntity {
	if r.env == nil {
		return found(r.store.SourceTableByLiveID(liveID))
	}
	ct := r.env.Table(liveID)
	if ct == nil || ct.SourceTable.ID == "" {
		return nil
	}
	if src, ok := r.store.SourceTable(ct.SourceTable.ID); ok {
		return &src
	}
	return &mapping.SourceEntity{ID: ct.SourceTable.ID}
}

func (r resolver) field(tableID string, f *schema.Field) deployment.FieldDef {
	return deployment.FieldDef{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		Type:        f.Type,
		Config:      map[string]any{"type": f.Type, "options": f.Options},
		SourceField: r.fieldRef(tableID, f.ID),
	}
}

func (r resolver) fieldRef(tableID, liveID string) *mapping.SourceEntity {
	if r.env == nil {
		return found(r.store.SourceFieldByLiveID(liveID))
	}
	ct := r.env.Table(tableID)
	if ct == nil {
		return nil
	}
	for _, cf := range ct.Fields {
		if cf.ID != liveID || cf.SourceField.ID == "" {
			continue
		}
		if src, ok := r.store.SourceField(cf.SourceField.ID); ok {
			return &src
		}
		return &mapping.SourceEntity{ID: cf.SourceField.ID}
	}
	return nil
}

func found(e mapping.SourceEntity, ok bool) *mapping.SourceEntity {
	if !ok {
		return nil
	}
	return &e
}

// BootstrapSource lists a canonical environment's tables and fields as
// source entities. Canonical ids are the live ids.
func BootstrapSource(live *schema.Snapshot) (tables, fields []mapping.SourceEntity) {
	for _, t := range live.Tables {
		if t.Deleted {
			continue
		}
		tables = append(tables, mapping.SourceEntity{ID: t.ID, Name: t.Name, AirtableID: t.ID})
		for _, f := range t.Fields {
			if f.Deleted {
				continue
			}
			fields = append(fields, mapping.SourceEntity{ID: f.ID, Name: f.Name, AirtableID: f.ID})
		}
	}
	return tables, fields
}

// Bootstrap is a client mapping derived from a live environment, plus the
// live entities that could not be matched
type Bootstrap struct {
	Client          mapping.ClientEnvironment
	UnmatchedTables []string
	UnmatchedFields []string
}

// BootstrapClient maps a client's live tables and fields to the canonical
// entities of d by case-insensitive name. The client starts at d's version.
func BootstrapClient(live *schema.Snapshot, store *mapping.Store, d *deployment.Descriptor, clientID string) *Bootstrap {
	r := resolver{store: store}
	b := &Bootstrap{Client: mapping.ClientEnvironment{ID: clientID, Version: d.Version}}

	defs := make(map[string]*deployment.TableDef, len(d.Tables))
	for i := range d.Tables {
		key := strings.ToLower(d.Tables[i].Name)
		if _, dup := defs[key]; !dup {
			defs[key] = &d.Tables[i]
		}
	}

	for _, t := range live.Tables {
		if t.Deleted {
			continue
		}
		def, ok := defs[strings.ToLower(t.Name)]
		if !ok {
			b.UnmatchedTables = append(b.UnmatchedTables, t.Name)
			continue
		}
		src := def.SourceTable
		if src == nil || src.ID == "" {
			src = r.table(def.ID)
		}
		if src == nil {
			b.UnmatchedTables = append(b.UnmatchedTables, t.Name)
			continue
		}

		canonical := make(map[string]string, len(def.Fields))
		for _, fd := range def.Fields {
			id := ""
			if fd.SourceField != nil {
				id = fd.SourceField.ID
			}
			if id == "" {
				if e := r.fieldRef(def.ID, fd.ID); e != nil {
					id = e.ID
				}
			}
			key := strings.ToLower(fd.Name)
			if _, dup := canonical[key]; id != "" && !dup {
				canonical[key] = id
			}
		}

		ct := mapping.ClientTable{ID: t.ID, SourceTable: mapping.Ref{ID: src.ID}, Fields: []mapping.ClientField{}}
		used := make(map[string]bool)
		for _, f := range t.Fields {
			if f.Deleted {
				continue
			}
			id, ok := canonical[strings.ToLower(f.Name)]
			if !ok || used[id] {
				b.UnmatchedFields = append(b.UnmatchedFields, t.Name+"."+f.Name)
				continue
			}
			used[id] = true
			ct.Fields = append(ct.Fields, mapping.ClientField{ID: f.ID, SourceField: mapping.Ref{ID: id}})
		}
		b.Client.Tables = append(b.Client.Tables, ct)
	}

	return b
}
