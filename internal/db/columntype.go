package db

import (
	"fmt"
	"strings"

	"github.com/tordrt/schemamigrate/internal/deployment"
)

// Dialect identifies a supported SQL database
type Dialect string

const (
	// DialectPostgres is PostgreSQL
	DialectPostgres Dialect = "postgres"
	// DialectMySQL is MySQL or MariaDB
	DialectMySQL Dialect = "mysql"
	// DialectSQLite is SQLite 3
	DialectSQLite Dialect = "sqlite"
)

// column types per canonical field type, in postgres, mysql, sqlite order
var columnTypes = map[string][3]string{
	"singleLineText":  {"text", "varchar(255)", "TEXT"},
	"email":           {"text", "varchar(255)", "TEXT"},
	"url":             {"text", "varchar(2048)", "TEXT"},
	"phoneNumber":     {"text", "varchar(64)", "TEXT"},
	"multilineText":   {"text", "text", "TEXT"},
	"richText":        {"text", "text", "TEXT"},
	"singleSelect":    {"text", "varchar(255)", "TEXT"},
	"multipleSelects": {"text[]", "json", "TEXT"},
	"checkbox":        {"boolean", "tinyint(1)", "INTEGER"},
	"rating":          {"smallint", "tinyint", "INTEGER"},
	"date":            {"date", "date", "TEXT"},
	"dateTime":        {"timestamptz", "datetime", "TEXT"},
}

func (d Dialect) index() int {
	switch d {
	case DialectMySQL:
		return 1
	case DialectSQLite:
		return 2
	default:
		return 0
	}
}

// ColumnType translates a canonical field type and its options into a column
// type for the dialect. Plain SQL types are passed through unchanged.
func ColumnType(d Dialect, fieldType string, options map[string]any) (string, error) {
	switch fieldType {
	case "number", "percent", "currency":
		return numericColumn(d, precision(options)), nil
	}

	if t, ok := columnTypes[fieldType]; ok {
		return t[d.index()], nil
	}
	if deployment.IsNativeType(fieldType) {
		return strings.TrimSpace(fieldType), nil
	}
	return "", fmt.Errorf("no %s column type for %q: %w", d, fieldType, deployment.ErrUnknownFieldType)
}

func numericColumn(d Dialect, scale int) string {
	if scale <= 0 {
		switch d {
		case DialectSQLite:
			return "INTEGER"
		default:
			return "bigint"
		}
	}
	switch d {
	case DialectMySQL:
		return fmt.Sprintf("decimal(18,%d)", scale)
	case DialectSQLite:
		return "REAL"
	default:
		return fmt.Sprintf("numeric(18,%d)", scale)
	}
}

// precision reads options["precision"], which is a float64 when the options
// came from JSON and an int when they came from YAML
func precision(options map[string]any) int {
	switch p := options["precision"].(type) {
	case int:
		return p
	case float64:
		return int(p)
	default:
		return 0
	}
}

// choiceOptions builds select options from enum labels
func choiceOptions(values []string) map[string]any {
	choices := make([]any, 0, len(values))
	for _, v := range values {
		choices = append(choices, map[string]any{"name": v})
	}
	return map[string]any{"choices": choices}
}

// quoteLiteral quotes s as a SQL string literal. MySQL additionally treats
// backslash as an escape character.
func quoteLiteral(d Dialect, s string) string {
	if d == DialectMySQL {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quoteIdent quotes a MySQL or SQLite identifier
func quoteIdent(d Dialect, name string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// fieldID is the live id of a column. Column names repeat across tables, so
// the id is qualified with the table name.
func fieldID(table, column string) string {
	return table + "." + column
}
