// Package mapping holds the identity graph between canonical (source) tables
// and fields and each client's live tables and fields.
//
// A Store is built once from a mapping document and indexed for lookups by
// canonical id and by live id. Mapping rows are only ever appended: a
// successful field creation records a new ClientField so the same gap is not
// found again on the next run.
package mapping

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound is returned when a client has no mapping at all
	ErrNotFound = errors.New("no mapping for client")
	// ErrUnmappedTable is returned when a live table has no mapping row
	ErrUnmappedTable = errors.New("table is not mapped")
	// ErrUnmappedField is returned when a field cannot be tied to a canonical field
	ErrUnmappedField = errors.New("field is not mapped")
	// ErrDuplicateMapping is returned when a canonical field is already mapped in a table
	ErrDuplicateMapping = errors.New("source field is already mapped")
	// ErrDuplicateClient is returned when adding a client that already exists
	ErrDuplicateClient = errors.New("client is already mapped")
)

// Store is the in-memory mapping service. It is safe for concurrent use.
// mu guards the catalog and the client index; each mapped table carries its
// own lock for its field rows.
type Store struct {
	mu sync.RWMutex

	sourceTables []SourceEntity
	sourceFields []SourceEntity

	tablesByID   map[string]int
	tablesByLive map[string]int
	fieldsByID   map[string]int
	fieldsByLive map[string]int

	clients  []*clientState
	byClient map[string]*clientState
}

type clientState struct {
	id      string
	version string
	tables  []*tableState
	byLive  map[string]*tableState
}

type tableState struct {
	mu     sync.RWMutex
	table  ClientTable
	fields map[string]int
}

// New builds a store from a mapping document. Duplicate rows are kept as
// written; lookups resolve to the first one in document order.
func New(f *File) *Store {
	s := &Store{
		tablesByID:   make(map[string]int),
		tablesByLive: make(map[string]int),
		fieldsByID:   make(map[string]int),
		fieldsByLive: make(map[string]int),
		byClient:     make(map[string]*clientState),
	}
	if f == nil {
		return s
	}

	s.addSourceLocked(f.Source.Tables, f.Source.Fields)
	for _, env := range f.Clients {
		if _, ok := s.byClient[env.ID]; ok {
			continue
		}
		s.addClientLocked(env)
	}
	return s
}

func (s *Store) addSourceLocked(tables, fields []SourceEntity) int {
	added := 0
	for _, t := range tables {
		if _, ok := s.tablesByID[t.ID]; ok {
			continue
		}
		s.sourceTables = append(s.sourceTables, t)
		s.tablesByID[t.ID] = len(s.sourceTables) - 1
		if _, ok := s.tablesByLive[t.AirtableID]; !ok && t.AirtableID != "" {
			s.tablesByLive[t.AirtableID] = len(s.sourceTables) - 1
		}
		added++
	}
	for _, f := range fields {
		if _, ok := s.fieldsByID[f.ID]; ok {
			continue
		}
		s.sourceFields = append(s.sourceFields, f)
		s.fieldsByID[f.ID] = len(s.sourceFields) - 1
		if _, ok := s.fieldsByLive[f.AirtableID]; !ok && f.AirtableID != "" {
			s.fieldsByLive[f.AirtableID] = len(s.sourceFields) - 1
		}
		added++
	}
	return added
}

func (s *Store) addClientLocked(env ClientEnvironment) {
	c := &clientState{
		id:      env.ID,
		version: env.Version,
		byLive:  make(map[string]*tableState),
	}
	for _, t := range env.Tables {
		ts := &tableState{
			table:  ClientTable{ID: t.ID, SourceTable: t.SourceTable},
			fields: make(map[string]int),
		}
		for _, f := range t.Fields {
			ts.appendLocked(f)
		}
		c.tables = append(c.tables, ts)
		if _, ok := c.byLive[t.ID]; !ok {
			c.byLive[t.ID] = ts
		}
	}
	s.clients = append(s.clients, c)
	s.byClient[env.ID] = c
}

func (t *tableState) appendLocked(f ClientField) {
	t.table.Fields = append(t.table.Fields, f)
	if _, ok := t.fields[f.SourceField.ID]; !ok && f.SourceField.ID != "" {
		t.fields[f.SourceField.ID] = len(t.table.Fields) - 1
	}
}

func (t *tableState) snapshot() ClientTable {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := t.table
	out.Fields = append([]ClientField(nil), t.table.Fields...)
	return out
}

func (s *Store) client(clientID string) (*clientState, error) {
	c, ok := s.byClient[clientID]
	if !ok {
		return nil, fmt.Errorf("client %s: %w", clientID, ErrNotFound)
	}
	return c, nil
}

// Resolve returns a copy of the client's mapping
func (s *Store) Resolve(clientID string) (*ClientEnvironment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.client(clientID)
	if err != nil {
		return nil, err
	}
	env := &ClientEnvironment{ID: c.id, Version: c.version}
	for _, t := range c.tables {
		env.Tables = append(env.Tables, t.snapshot())
	}
	return env, nil
}

// ResolveTable returns the mapping row for a client's live table
func (s *Store) ResolveTable(clientID, liveTableID string) (*ClientTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.client(clientID)
	if err != nil {
		return nil, err
	}
	t, ok := c.byLive[liveTableID]
	if !ok || t.table.SourceTable.ID == "" {
		return nil, fmt.Errorf("table %s: %w", liveTableID, ErrUnmappedTable)
	}
	ct := t.snapshot()
	return &ct, nil
}

// ResolveField returns the client field mapped to sourceFieldID in a live
// table. A missing mapping is reported as ok == false, not as an error.
func (s *Store) ResolveField(clientID, liveTableID, sourceFieldID string) (ClientField, bool) {
	s.mu.RLock()
	c, ok := s.byClient[clientID]
	var t *tableState
	if ok {
		t = c.byLive[liveTableID]
	}
	s.mu.RUnlock()
	if t == nil {
		return ClientField{}, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.fields[sourceFieldID]
	if !ok {
		return ClientField{}, false
	}
	return t.table.Fields[i], true
}

// Record appends a field mapping to a client's live table. It fails with
// ErrDuplicateMapping when the canonical field is already mapped there.
func (s *Store) Record(clientID, liveTableID string, f ClientField) error {
	if f.ID == "" || f.SourceField.ID == "" {
		return fmt.Errorf("field mapping needs a live id and a source field id")
	}

	s.mu.RLock()
	c, err := s.client(clientID)
	var t *tableState
	if err == nil {
		t = c.byLive[liveTableID]
	}
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("table %s: %w", liveTableID, ErrUnmappedTable)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.fields[f.SourceField.ID]; ok {
		return fmt.Errorf("source field %s in table %s (live field %s): %w",
			f.SourceField.ID, liveTableID, t.table.Fields[existing].ID, ErrDuplicateMapping)
	}
	t.appendLocked(f)
	return nil
}

// AddClient registers a new client mapping
func (s *Store) AddClient(env ClientEnvironment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byClient[env.ID]; ok {
		return fmt.Errorf("client %s: %w", env.ID, ErrDuplicateClient)
	}
	s.addClientLocked(env.clone())
	return nil
}

// AddSource appends canonical entities whose ids are not yet known and
// returns how many were added
func (s *Store) AddSource(tables, fields []SourceEntity) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addSourceLocked(tables, fields)
}

// SetVersion records the version a client has been migrated to
func (s *Store) SetVersion(clientID, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.client(clientID)
	if err != nil {
		return err
	}
	c.version = version
	return nil
}

// Clients returns client ids in document order
func (s *Store) Clients() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.clients))
	for i, c := range s.clients {
		ids[i] = c.id
	}
	return ids
}

// SourceTable looks up a canonical table by canonical id
func (s *Store) SourceTable(id string) (SourceEntity, bool) {
	return s.lookup(s.tablesByID, s.sourceTablesRef, id)
}

// SourceField looks up a canonical field by canonical id
func (s *Store) SourceField(id string) (SourceEntity, bool) {
	return s.lookup(s.fieldsByID, s.sourceFieldsRef, id)
}

// SourceTableByLiveID looks up a canonical table by its live id in the
// canonical environment
func (s *Store) SourceTableByLiveID(liveID string) (SourceEntity, bool) {
	return s.lookup(s.tablesByLive, s.sourceTablesRef, liveID)
}

// SourceFieldByLiveID looks up a canonical field by its live id in the
// canonical environment
func (s *Store) SourceFieldByLiveID(liveID string) (SourceEntity, bool) {
	return s.lookup(s.fieldsByLive, s.sourceFieldsRef, liveID)
}

// SourceCatalog returns a copy of the canonical catalog
func (s *Store) SourceCatalog() Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Source{
		Tables: append([]SourceEntity(nil), s.sourceTables...),
		Fields: append([]SourceEntity(nil), s.sourceFields...),
	}
}

func (s *Store) sourceTablesRef() []SourceEntity { return s.sourceTables }
func (s *Store) sourceFieldsRef() []SourceEntity { return s.sourceFields }

func (s *Store) lookup(index map[string]int, list func() []SourceEntity, key string) (SourceEntity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := index[key]
	if !ok {
		return SourceEntity{}, false
	}
	return list()[i], true
}

// Document returns the store's contents as a mapping document
func (s *Store) Document() *File {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f := &File{
		Source: Source{
			Tables: append([]SourceEntity{}, s.sourceTables...),
			Fields: append([]SourceEntity{}, s.sourceFields...),
		},
		Clients: make([]ClientEnvironment, 0, len(s.clients)),
	}
	for _, c := range s.clients {
		env := ClientEnvironment{ID: c.id, Version: c.version, Tables: []ClientTable{}}
		for _, t := range c.tables {
			ct := t.snapshot()
			if ct.Fields == nil {
				ct.Fields = []ClientField{}
			}
			env.Tables = append(env.Tables, ct)
		}
		f.Clients = append(f.Clients, env)
	}
	return f
}
