package db

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/tordrt/schemamigrate/internal/schema"
)

// SQLiteEnvironment reads and extends a SQLite database.
// SQLite has no column comments, so field descriptions are not stored.
type SQLiteEnvironment struct {
	client *SQLiteClient
	tables []string
}

// NewSQLiteEnvironment creates a live environment over a SQLite database.
// If tables is empty, every table in the database is part of the environment.
func NewSQLiteEnvironment(client *SQLiteClient, tables []string) *SQLiteEnvironment {
	return &SQLiteEnvironment{
		client: client,
		tables: tables,
	}
}

// ReadSchema reads the current schema of the environment's tables
func (e *SQLiteEnvironment) ReadSchema(ctx context.Context) (*schema.Snapshot, error) {
	return e.ExtractSchema(ctx, e.tables)
}

// ExtractSchema extracts the schema for specified tables
// If tables is empty, extracts all tables in the database
func (e *SQLiteEnvironment) ExtractSchema(ctx context.Context, tables []string) (*schema.Snapshot, error) {
	names, err := e.getTableNames(ctx, tables)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}

	snap := &schema.Snapshot{}
	for _, name := range names {
		table, err := e.extractTable(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to extract table %s: %w", name, err)
		}
		snap.Tables = append(snap.Tables, *table)
	}

	return snap, nil
}

// getTableNames returns the list of tables to extract
func (e *SQLiteEnvironment) getTableNames(ctx context.Context, requested []string) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tableList []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		if len(requested) > 0 && !slices.Contains(requested, tableName) {
			continue
		}
		tableList = append(tableList, tableName)
	}

	return tableList, rows.Err()
}

// extractTable reads the columns of a table. The primary field is the first
// primary key column.
func (e *SQLiteEnvironment) extractTable(ctx context.Context, tableName string) (*schema.Table, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(DialectSQLite, tableName))

	rows, err := e.client.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	defer rows.Close()

	table := &schema.Table{ID: tableName, Name: tableName}
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}

		if pk == 1 {
			table.PrimaryFieldID = fieldID(tableName, name)
		}
		table.Fields = append(table.Fields, schema.Field{ID: fieldID(tableName, name), Name: name, Type: colType})
	}

	return table, rows.Err()
}

// CreateField adds a column to a table
func (e *SQLiteEnvironment) CreateField(ctx context.Context, table schema.TableRef, spec schema.FieldSpec) (*schema.Field, error) {
	colType, err := ColumnType(DialectSQLite, spec.Type, spec.Options)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		quoteIdent(DialectSQLite, table.ID), quoteIdent(DialectSQLite, spec.Name), colType)
	if _, err := e.client.GetDB().ExecContext(ctx, stmt); err != nil {
		return nil, fmt.Errorf("failed to add column %s to %s: %w", spec.Name, table.Name, err)
	}

	return &schema.Field{
		ID:      fieldID(table.ID, spec.Name),
		Name:    spec.Name,
		Type:    spec.Type,
		Options: spec.Options,
	}, nil
}

// Close closes the database
func (e *SQLiteEnvironment) Close() error {
	return e.client.Close()
}
