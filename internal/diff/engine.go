// Package diff computes the field creations needed to bring a client
// environment up to a deployment descriptor.
package diff

import (
	"fmt"
	"log/slog"

	"github.com/tordrt/schemamigrate/internal/deployment"
	"github.com/tordrt/schemamigrate/internal/logging"
	"github.com/tordrt/schemamigrate/internal/mapping"
	"github.com/tordrt/schemamigrate/internal/schema"
)

// Engine diffs client environments against descriptors
type Engine struct {
	store  *mapping.Store
	logger *slog.Logger
}

// New creates a diff engine over store
func New(store *mapping.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{store: store, logger: logger}
}

// Diff compares a client's live snapshot with target. Changes follow the
// client's mapped table order, then field order within the matching table
// definition. Only a missing client mapping is an error; other gaps become
// warnings.
func (e *Engine) Diff(clientID string, live *schema.Snapshot, target *deployment.Descriptor) (*Plan, error) {
	env, err := e.store.Resolve(clientID)
	if err != nil {
		return nil, err
	}

	plan := &Plan{ClientID: clientID, TargetVersion: target.Version}

	for i := range live.Tables {
		t := &live.Tables[i]
		if t.Deleted {
			continue
		}
		if _, err := e.store.ResolveTable(clientID, t.ID); err != nil {
			plan.warn(e.logger, Warning{Kind: UnmappedTable, TableID: t.ID, TableName: t.Name, Err: err})
		}
	}

	defs := e.indexTables(target)

	for _, ct := range env.Tables {
		if ct.SourceTable.ID == "" {
			continue
		}

		t := live.Table(ct.ID)
		if t == nil || t.Deleted {
			plan.warn(e.logger, Warning{Kind: MissingTable, TableID: ct.ID})
			continue
		}

		def, ok := defs[ct.SourceTable.ID]
		if !ok {
			// not part of this version
			continue
		}

		seen := make(map[string]bool, len(def.Fields))
		for _, f := range def.Fields {
			canonicalID, ok := e.fieldIdentity(f)
			if !ok {
				plan.warn(e.logger, Warning{
					Kind:      UnmappedField,
					TableID:   t.ID,
					TableName: t.Name,
					FieldName: f.Name,
					Err:       fmt.Errorf("field %s (%s): %w", f.Name, f.ID, mapping.ErrUnmappedField),
				})
				continue
			}
			if seen[canonicalID] {
				continue
			}
			seen[canonicalID] = true

			if _, mapped := e.store.ResolveField(clientID, t.ID, canonicalID); mapped {
				continue
			}

			plan.Changes = append(plan.Changes, Change{
				Note: createFieldNote(f.Name, t.Name),
				Action: CreateField{
					ClientID:      clientID,
					Table:         t.Ref(),
					SourceFieldID: canonicalID,
					Spec: schema.FieldSpec{
						Name:        f.Name,
						Type:        f.Type,
						Options:     f.Options(),
						Description: f.Description,
					},
				},
			})
		}
	}

	e.logger.Debug("diff complete",
		"client", clientID,
		"version", target.Version,
		"changes", len(plan.Changes),
		"warnings", len(plan.Warnings))

	return plan, nil
}

// indexTables keys descriptor tables by canonical table id. The first
// definition of a canonical table wins.
func (e *Engine) indexTables(target *deployment.Descriptor) map[string]*deployment.TableDef {
	defs := make(map[string]*deployment.TableDef, len(target.Tables))
	for i := range target.Tables {
		def := &target.Tables[i]
		id, ok := e.tableIdentity(def)
		if !ok {
			e.logger.Warn("descriptor table has no canonical identity", "table", def.Name, "id", def.ID)
			continue
		}
		if _, dup := defs[id]; !dup {
			defs[id] = def
		}
	}
	return defs
}

// tableIdentity returns the canonical id of a table definition: its source
// table reference, or else the source table whose live id is the definition id
func (e *Engine) tableIdentity(def *deployment.TableDef) (string, bool) {
	if def.SourceTable != nil && def.SourceTable.ID != "" {
		return def.SourceTable.ID, true
	}
	if src, ok := e.store.SourceTableByLiveID(def.ID); ok {
		return src.ID, true
	}
	return "", false
}

func (e *Engine) fieldIdentity(f deployment.FieldDef) (string, bool) {
	if f.SourceField != nil && f.SourceField.ID != "" {
		return f.SourceField.ID, true
	}
	if src, ok := e.store.SourceFieldByLiveID(f.ID); ok {
		return src.ID, true
	}
	return "", false
}

func (p *Plan) warn(logger *slog.Logger, w Warning) {
	p.Warnings = append(p.Warnings, w)
	logger.Warn(w.String(), "client", p.ClientID, "kind", string(w.Kind))
}
