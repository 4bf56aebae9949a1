package db

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/tordrt/schemamigrate/internal/schema"
)

// MySQLEnvironment reads and extends a MySQL database
type MySQLEnvironment struct {
	client     *MySQLClient
	schemaName string
	tables     []string
}

// NewMySQLEnvironment creates a live environment over one MySQL database.
// If tables is empty, every table in the database is part of the environment.
func NewMySQLEnvironment(client *MySQLClient, schemaName string, tables []string) *MySQLEnvironment {
	return &MySQLEnvironment{
		client:     client,
		schemaName: schemaName,
		tables:     tables,
	}
}

// ReadSchema reads the current schema of the environment's tables
func (e *MySQLEnvironment) ReadSchema(ctx context.Context) (*schema.Snapshot, error) {
	return e.ExtractSchema(ctx, e.tables)
}

// ExtractSchema extracts the schema for specified tables
// If tables is empty, extracts all tables in the schema
func (e *MySQLEnvironment) ExtractSchema(ctx context.Context, tables []string) (*schema.Snapshot, error) {
	found, err := e.getTables(ctx, tables)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}

	snap := &schema.Snapshot{}
	for _, t := range found {
		if err := e.extractTable(ctx, &t); err != nil {
			return nil, fmt.Errorf("failed to extract table %s: %w", t.Name, err)
		}
		snap.Tables = append(snap.Tables, t)
	}

	return snap, nil
}

// getTables returns the tables to extract with their comments
func (e *MySQLEnvironment) getTables(ctx context.Context, requested []string) ([]schema.Table, error) {
	query := `
		SELECT table_name, table_comment
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []schema.Table
	for rows.Next() {
		var t schema.Table
		if err := rows.Scan(&t.Name, &t.Description); err != nil {
			return nil, err
		}
		if len(requested) > 0 && !slices.Contains(requested, t.Name) {
			continue
		}
		t.ID = t.Name
		tables = append(tables, t)
	}

	return tables, rows.Err()
}

// extractTable fills in the fields and primary field of a table
func (e *MySQLEnvironment) extractTable(ctx context.Context, table *schema.Table) error {
	fields, err := e.extractColumns(ctx, table.Name)
	if err != nil {
		return fmt.Errorf("failed to extract columns: %w", err)
	}
	table.Fields = fields

	pk, err := e.extractPrimaryKey(ctx, table.Name)
	if err != nil {
		return fmt.Errorf("failed to extract primary key: %w", err)
	}
	if len(pk) > 0 {
		table.PrimaryFieldID = fieldID(table.Name, pk[0])
	}

	return nil
}

// extractColumns extracts the fields of a table
func (e *MySQLEnvironment) extractColumns(ctx context.Context, tableName string) ([]schema.Field, error) {
	query := `
		SELECT
			c.column_name,
			c.column_type,
			c.data_type,
			c.column_comment
		FROM information_schema.columns c
		WHERE c.table_schema = ? AND c.table_name = ?
		ORDER BY c.ordinal_position
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []schema.Field
	for rows.Next() {
		var f schema.Field
		var dataType string
		var comment sql.NullString

		if err := rows.Scan(&f.Name, &f.Type, &dataType, &comment); err != nil {
			return nil, err
		}

		f.ID = fieldID(tableName, f.Name)
		f.Description = comment.String

		// Enum columns become select fields
		if dataType == "enum" {
			values, err := extractEnumValues(f.Type)
			if err != nil {
				return nil, err
			}
			f.Type = "singleSelect"
			f.Options = choiceOptions(values)
		}

		fields = append(fields, f)
	}

	return fields, rows.Err()
}

// extractEnumValues parses enum values from the column type string
// MySQL stores enum types as "enum('value1','value2','value3')"
func extractEnumValues(columnType string) ([]string, error) {
	if !strings.HasPrefix(columnType, "enum(") {
		return nil, nil
	}

	start := strings.Index(columnType, "(")
	end := strings.LastIndex(columnType, ")")
	if start == -1 || end == -1 || start >= end {
		return nil, fmt.Errorf("invalid enum type format: %s", columnType)
	}

	var values []string
	for _, part := range strings.Split(columnType[start+1:end], ",") {
		part = strings.TrimSpace(part)
		// Remove surrounding quotes
		if len(part) >= 2 && part[0] == '\'' && part[len(part)-1] == '\'' {
			part = strings.ReplaceAll(part[1:len(part)-1], "''", "'")
		}
		values = append(values, part)
	}

	return values, nil
}

// extractPrimaryKey extracts primary key columns
func (e *MySQLEnvironment) extractPrimaryKey(ctx context.Context, tableName string) ([]string, error) {
	query := `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
			AND table_name = ?
			AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var colName string
		if err := rows.Scan(&colName); err != nil {
			return nil, err
		}
		pk = append(pk, colName)
	}

	return pk, rows.Err()
}

// CreateField adds a column to a table
func (e *MySQLEnvironment) CreateField(ctx context.Context, table schema.TableRef, spec schema.FieldSpec) (*schema.Field, error) {
	colType, err := ColumnType(DialectMySQL, spec.Type, spec.Options)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		quoteIdent(DialectMySQL, table.ID), quoteIdent(DialectMySQL, spec.Name), colType)
	if spec.Description != "" {
		stmt += " COMMENT " + quoteLiteral(DialectMySQL, spec.Description)
	}

	if _, err := e.client.GetDB().ExecContext(ctx, stmt); err != nil {
		return nil, fmt.Errorf("failed to add column %s to %s: %w", spec.Name, table.Name, err)
	}

	return &schema.Field{
		ID:          fieldID(table.ID, spec.Name),
		Name:        spec.Name,
		Type:        spec.Type,
		Description: spec.Description,
		Options:     spec.Options,
	}, nil
}

// Close closes the underlying connection pool
func (e *MySQLEnvironment) Close() error {
	return e.client.Close()
}
