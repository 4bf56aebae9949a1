package db

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/tordrt/schemamigrate/internal/schema"
)

const varcharType = "varchar"

// PostgresEnvironment reads and extends a PostgreSQL schema.
// Tables are identified by name and fields by "table.column".
type PostgresEnvironment struct {
	client *PostgresClient
	schema string
	tables []string
}

// NewPostgresEnvironment creates a live environment over one PostgreSQL schema.
// If tables is empty, every table in the schema is part of the environment.
func NewPostgresEnvironment(client *PostgresClient, schemaName string, tables []string) *PostgresEnvironment {
	return &PostgresEnvironment{
		client: client,
		schema: schemaName,
		tables: tables,
	}
}

// ReadSchema reads the current schema of the environment's tables
func (e *PostgresEnvironment) ReadSchema(ctx context.Context) (*schema.Snapshot, error) {
	return e.ExtractSchema(ctx, e.tables)
}

// ExtractSchema extracts the schema for specified tables
// If tables is empty, extracts all tables in the schema
func (e *PostgresEnvironment) ExtractSchema(ctx context.Context, tables []string) (*schema.Snapshot, error) {
	var snap schema.Snapshot

	err := e.client.WithConn(func(conn *pgx.Conn) error {
		found, err := e.getTables(ctx, conn, tables)
		if err != nil {
			return fmt.Errorf("failed to get table names: %w", err)
		}

		for _, t := range found {
			if err := e.extractTable(ctx, conn, &t); err != nil {
				return fmt.Errorf("failed to extract table %s: %w", t.Name, err)
			}
			snap.Tables = append(snap.Tables, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// getTables returns the tables to extract with their comments
func (e *PostgresEnvironment) getTables(ctx context.Context, conn *pgx.Conn, requested []string) ([]schema.Table, error) {
	query := `
		SELECT c.relname, COALESCE(obj_description(c.oid, 'pg_class'), '')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind IN ('r', 'p')
		ORDER BY c.relname
	`

	rows, err := conn.Query(ctx, query, e.schema)
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
func (e *PostgresEnvironment) extractTable(ctx context.Context, conn *pgx.Conn, table *schema.Table) error {
	fields, err := e.extractColumns(ctx, conn, table.Name)
	if err != nil {
		return fmt.Errorf("failed to extract columns: %w", err)
	}
	table.Fields = fields

	pk, err := e.extractPrimaryKey(ctx, conn, table.Name)
	if err != nil {
		return fmt.Errorf("failed to extract primary key: %w", err)
	}
	if len(pk) > 0 {
		table.PrimaryFieldID = fieldID(table.Name, pk[0])
	}

	return nil
}

// normalizePostgresType maps verbose SQL type names to commonly-used PostgreSQL equivalents
func normalizePostgresType(dataType, udtName string, charMaxLength *int) string {
	switch dataType {
	case "timestamp with time zone":
		return "timestamptz"
	case "timestamp without time zone":
		return "timestamp"
	case "time with time zone":
		return "timetz"
	case "time without time zone":
		return "time"
	case "character varying":
		if charMaxLength != nil {
			return fmt.Sprintf("varchar(%d)", *charMaxLength)
		}
		return varcharType
	case "character":
		if charMaxLength != nil {
			return fmt.Sprintf("char(%d)", *charMaxLength)
		}
		return "char"
	case "ARRAY":
		// udt_name has underscore prefix for arrays (e.g., "_text" for text[], "_int4" for integer[])
		if len(udtName) > 0 && udtName[0] == '_' {
			return normalizeUdtName(udtName[1:]) + "[]"
		}
		return "array"
	case "USER-DEFINED":
		return udtName
	default:
		return dataType
	}
}

// normalizeUdtName converts PostgreSQL internal type names to more readable forms
func normalizeUdtName(udtName string) string {
	switch udtName {
	case "int4":
		return "integer"
	case "int8":
		return "bigint"
	case "int2":
		return "smallint"
	case "float4":
		return "real"
	case "float8":
		return "double precision"
	case "bool":
		return "boolean"
	default:
		return udtName
	}
}

// extractColumns extracts the fields of a table. Enum columns become
// singleSelect fields whose choices are the enum labels.
func (e *PostgresEnvironment) extractColumns(ctx context.Context, conn *pgx.Conn, tableName string) ([]schema.Field, error) {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.udt_name,
			c.character_maximum_length,
			COALESCE(col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position::int), '')
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := conn.Query(ctx, query, e.schema, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fields []schema.Field
	enumTypes := make(map[int]string)

	for rows.Next() {
		var f schema.Field
		var dataType, udtName string
		var charMaxLength *int

		if err := rows.Scan(&f.Name, &dataType, &udtName, &charMaxLength, &f.Description); err != nil {
			return nil, err
		}

		f.ID = fieldID(tableName, f.Name)
		f.Type = normalizePostgresType(dataType, udtName, charMaxLength)
		if dataType == "USER-DEFINED" {
			enumTypes[len(fields)] = udtName
		}
		fields = append(fields, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(enumTypes) > 0 {
		names := make([]string, 0, len(enumTypes))
		for _, n := range enumTypes {
			names = append(names, n)
		}
		values, err := e.extractEnumValuesMap(ctx, conn, names)
		if err != nil {
			return nil, err
		}
		for i, n := range enumTypes {
			if labels, ok := values[n]; ok {
				fields[i].Type = "singleSelect"
				fields[i].Options = choiceOptions(labels)
			}
		}
	}

	return fields, nil
}

// extractEnumValuesMap extracts enum values for multiple enum types at once
func (e *PostgresEnvironment) extractEnumValuesMap(ctx context.Context, conn *pgx.Conn, enumTypeNames []string) (map[string][]string, error) {
	query := `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON t.oid = e.enumtypid
		JOIN pg_namespace n ON t.typnamespace = n.oid
		WHERE n.nspname = $1 AND t.typname = ANY($2)
		ORDER BY t.typname, e.enumsortorder
	`

	rows, err := conn.Query(ctx, query, e.schema, enumTypeNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]string)
	for rows.Next() {
		var typName, enumLabel string
		if err := rows.Scan(&typName, &enumLabel); err != nil {
			return nil, err
		}
		result[typName] = append(result[typName], enumLabel)
	}

	return result, rows.Err()
}

// extractPrimaryKey extracts primary key columns
func (e *PostgresEnvironment) extractPrimaryKey(ctx context.Context, conn *pgx.Conn, tableName string) ([]string, error) {
	query := `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = $1
			AND table_name = $2
			AND constraint_name IN (
				SELECT constraint_name
				FROM information_schema.table_constraints
				WHERE table_schema = $1
					AND table_name = $2
					AND constraint_type = 'PRIMARY KEY'
			)
		ORDER BY ordinal_position
	`

	rows, err := conn.Query(ctx, query, e.schema, tableName)
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

// CreateField adds a column to a table. The column and its comment are
// created in one transaction.
func (e *PostgresEnvironment) CreateField(ctx context.Context, table schema.TableRef, spec schema.FieldSpec) (*schema.Field, error) {
	colType, err := ColumnType(DialectPostgres, spec.Type, spec.Options)
	if err != nil {
		return nil, err
	}

	target := pgx.Identifier{e.schema, table.ID}.Sanitize()
	column := pgx.Identifier{spec.Name}.Sanitize()

	err = e.client.WithConn(func(conn *pgx.Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if _, err := tx.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", target, column, colType)); err != nil {
			return err
		}
		if spec.Description != "" {
			stmt := fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s", target, column, quoteLiteral(DialectPostgres, spec.Description))
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return tx.Commit(ctx)
	})
	if err != nil {
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

// Close closes the underlying connection
func (e *PostgresEnvironment) Close() error {
	return e.client.Close(context.Background())
}
