package schema

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryEnvironment is an in-memory live environment. It is safe for
// concurrent use and serializes structural mutations the way a hosted
// platform does.
type MemoryEnvironment struct {
	mu       sync.Mutex
	snapshot Snapshot
	failures map[string]error
	seq      int
	calls    []CreateCall

	// Delay is applied to every CreateField call before it takes effect
	Delay time.Duration
}

// CreateCall records one CreateField invocation
type CreateCall struct {
	Table TableRef
	Spec  FieldSpec
}

// NewMemoryEnvironment creates an environment holding a copy of s
func NewMemoryEnvironment(s *Snapshot) *MemoryEnvironment {
	env := &MemoryEnvironment{failures: make(map[string]error)}
	if s != nil {
		env.snapshot = copySnapshot(s)
	}
	return env
}

// FailOn makes CreateField fail with err for fields named name
func (m *MemoryEnvironment) FailOn(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[name] = err
}

// Calls returns the CreateField calls seen so far, in arrival order
func (m *MemoryEnvironment) Calls() []CreateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CreateCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// ReadSchema returns a copy of the current structure
func (m *MemoryEnvironment) ReadSchema(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := copySnapshot(&m.snapshot)
	return &s, nil
}

// CreateField appends a new field to the referenced table
func (m *MemoryEnvironment) CreateField(ctx context.Context, table TableRef, spec FieldSpec) (*Field, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, CreateCall{Table: table, Spec: spec})

	if err := m.failures[spec.Name]; err != nil {
		return nil, err
	}

	t := m.snapshot.Table(table.ID)
	if t == nil || t.Deleted {
		return nil, fmt.Errorf("table %s not found", table.ID)
	}
	for _, f := range t.Fields {
		if !f.Deleted && f.Name == spec.Name {
			return nil, fmt.Errorf("field %q already exists in table %s", spec.Name, t.Name)
		}
	}

	m.seq++
	f := Field{
		ID:          fmt.Sprintf("fld%06d", m.seq),
		Name:        spec.Name,
		Type:        spec.Type,
		Description: spec.Description,
		Options:     copyOptions(spec.Options),
	}
	t.Fields = append(t.Fields, f)
	return &f, nil
}

// Close is a no-op
func (m *MemoryEnvironment) Close() error {
	return nil
}

func copySnapshot(s *Snapshot) Snapshot {
	out := Snapshot{Tables: make([]Table, len(s.Tables))}
	for i, t := range s.Tables {
		t.Fields = append([]Field(nil), t.Fields...)
		for j := range t.Fields {
			t.Fields[j].Options = copyOptions(t.Fields[j].Options)
		}
		out.Tables[i] = t
	}
	return out
}

func copyOptions(o map[string]any) map[string]any {
	if o == nil {
		return nil
	}
	out := make(map[string]any, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}
