//go:build integration

package schemamigrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemamigrate/internal/deployment"
	"github.com/tordrt/schemamigrate/internal/mapping"
)

const sqliteMapping = `{
  "source": {
    "tables": [{"id": "contacts", "name": "Contacts", "airtableId": "contacts"}],
    "fields": [
      {"id": "contact-name", "name": "name", "airtableId": "contacts.name"},
      {"id": "contact-tier", "name": "tier", "airtableId": "contacts.tier"}
    ]
  },
  "clients": [
    {"id": "local", "version": "1.0.0", "tables": [
      {"id": "people", "sourceTable": "contacts", "fields": [
        {"id": "people.name", "sourceField": "contact-name"}
      ]}
    ]}
  ]
}`

func newSQLiteDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.db")

	conn, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer conn.Close()

	for _, stmt := range []string{
		`CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE audit_log (id INTEGER PRIMARY KEY, entry TEXT)`,
	} {
		_, err := conn.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	path := newSQLiteDatabase(t)

	tests := []struct {
		name       string
		url        string
		opts       *Options
		wantTables []string
		wantErr    bool
	}{
		{
			name:       "SQLite all tables",
			url:        "sqlite://" + path,
			wantTables: []string{"audit_log", "people"},
		},
		{
			name:       "SQLite specific tables",
			url:        "sqlite://" + path,
			opts:       &Options{Tables: []string{"people"}},
			wantTables: []string{"people"},
		},
		{
			name:    "Invalid URL scheme",
			url:     "invalid://test.db",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Open(ctx, tt.url, tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer env.Close()

			snap, err := env.ReadSchema(ctx)
			require.NoError(t, err)

			var names []string
			for _, table := range snap.Tables {
				names = append(names, table.Name)
			}
			assert.ElementsMatch(t, tt.wantTables, names)
		})
	}
}

func TestUpgradeSQLite(t *testing.T) {
	ctx := context.Background()

	env, err := Open(ctx, "sqlite://"+newSQLiteDatabase(t), nil)
	require.NoError(t, err)
	defer env.Close()

	store, err := mapping.Load(strings.NewReader(sqliteMapping))
	require.NoError(t, err)

	target := &deployment.Descriptor{
		Version: "1.1.0",
		Tables: []deployment.TableDef{{
			ID:   "contacts",
			Name: "contacts",
			Fields: []deployment.FieldDef{
				{ID: "contacts.name", Name: "name", Type: "TEXT"},
				{ID: "contacts.tier", Name: "tier", Type: "singleSelect", Config: map[string]any{
					"type":    "singleSelect",
					"options": map[string]any{"choices": []any{map[string]any{"name": "free"}}},
				}},
			},
		}},
	}

	report, err := Upgrade(ctx, env, store, "local", target, nil)
	require.NoError(t, err)
	require.Len(t, report.Plan.Changes, 1)
	assert.True(t, report.Advanced)

	cf, ok := store.ResolveField("local", "people", "contact-tier")
	require.True(t, ok)
	assert.Equal(t, "people.tier", cf.ID)

	plan, err := Plan(ctx, env, store, "local", target, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Changes)
}
