//go:build integration

package main

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemamigrate/internal/mapping"
)

// writeSQLiteProject creates a canonical and a client database next to an
// empty project
func writeSQLiteProject(t *testing.T) (canonicalURL, clientURL string) {
	t.Helper()
	writeProject(t, nil)
	require.NoError(t, os.Remove("mapping.json"))

	create := func(name string, stmts ...string) string {
		path, err := filepath.Abs(name)
		require.NoError(t, err)
		conn, err := sql.Open("sqlite3", path)
		require.NoError(t, err)
		defer conn.Close()
		for _, stmt := range stmts {
			_, err := conn.Exec(stmt)
			require.NoError(t, err)
		}
		return "sqlite://" + path
	}

	canonicalURL = create("canonical.db",
		`CREATE TABLE contacts (id INTEGER PRIMARY KEY, name TEXT, email TEXT)`)
	clientURL = create("client.db",
		`CREATE TABLE Contacts (id INTEGER PRIMARY KEY, Name TEXT)`)
	return canonicalURL, clientURL
}

func TestBootstrapEncodeApply(t *testing.T) {
	canonicalURL, clientURL := writeSQLiteProject(t)

	out, err := execute(t, "bootstrap", "source", "--database-url", canonicalURL)
	require.NoError(t, err)
	assert.Equal(t, "Added 4 source entities\n", out)

	_, err = execute(t, "encode", "--database-url", canonicalURL,
		"--version", "1.0.0", "--notes", "Initial schema",
		"--author-name", "Ada", "--author-email", "ada@example.com",
		"-o", filepath.Join("deployments", "1.0.0.yaml"), "--format", "yaml")
	require.NoError(t, err)

	out, err = execute(t, "bootstrap", "client", "--database-url", clientURL, "--client", "local")
	require.NoError(t, err)
	assert.Contains(t, out, "Mapped 1 tables for client local at version 1.0.0")
	assert.NotContains(t, out, "unmatched")

	_, err = execute(t, "plan", "--database-url", clientURL, "--client", "local", "--to", "1.0.0")
	assert.Error(t, err, "client already sits at the only version")

	// Move the client back so 1.0.0 becomes a candidate
	store, err := mapping.LoadFile("mapping.json")
	require.NoError(t, err)
	require.NoError(t, store.SetVersion("local", "0.9.0"))
	require.NoError(t, store.SaveFile("mapping.json"))

	out, err = execute(t, "apply", "--database-url", clientURL, "--client", "local", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Create a new field email in the table Contacts.")

	metrics := filepath.Join(t.TempDir(), "schemamigrate.prom")
	out, err = execute(t, "apply", "--database-url", clientURL, "--client", "local", "--metrics-textfile", metrics)
	require.NoError(t, err)
	assert.Contains(t, out, "Added new field email to Contacts")

	store, err = mapping.LoadFile("mapping.json")
	require.NoError(t, err)
	client, err := store.Resolve("local")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", client.Version)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "schemamigrate_executor_actions_total")

	out, err = execute(t, "inspect", "--database-url", clientURL, "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "email")
}

func TestApplyPrintsWarningsBeforeResults(t *testing.T) {
	canonicalURL, clientURL := writeSQLiteProject(t)

	_, err := execute(t, "bootstrap", "source", "--database-url", canonicalURL)
	require.NoError(t, err)
	_, err = execute(t, "encode", "--database-url", canonicalURL, "--version", "1.0.0",
		"-o", filepath.Join("deployments", "1.0.0.json"))
	require.NoError(t, err)
	_, err = execute(t, "bootstrap", "client", "--database-url", clientURL, "--client", "local")
	require.NoError(t, err)

	// A table created after bootstrap has no mapping
	conn, err := sql.Open("sqlite3", strings.TrimPrefix(clientURL, "sqlite://"))
	require.NoError(t, err)
	_, err = conn.Exec(`CREATE TABLE Notes (id INTEGER PRIMARY KEY, body TEXT)`)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	store, err := mapping.LoadFile("mapping.json")
	require.NoError(t, err)
	require.NoError(t, store.SetVersion("local", "0.9.0"))
	require.NoError(t, store.SaveFile("mapping.json"))

	out, err := execute(t, "apply", "--database-url", clientURL, "--client", "local")
	require.NoError(t, err)

	warning := strings.Index(out, "! table Notes (Notes) has no canonical mapping and was skipped")
	results := strings.Index(out, "Run ")
	require.GreaterOrEqual(t, warning, 0, out)
	require.GreaterOrEqual(t, results, 0, out)
	assert.Less(t, warning, results)
	assert.Contains(t, out, "Added new field email to Contacts")
}
