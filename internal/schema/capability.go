package schema

import "context"

// Reader reads the live structure of an environment
type Reader interface {
	ReadSchema(ctx context.Context) (*Snapshot, error)
}

// FieldCreator creates a field in a live table and returns the created field.
// Implementations must honour ctx cancellation.
type FieldCreator interface {
	CreateField(ctx context.Context, table TableRef, spec FieldSpec) (*Field, error)
}

// Environment is a live environment that can be read and mutated
type Environment interface {
	Reader
	FieldCreator
	Close() error
}
