package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliMapping = `{
  "source": {"tables": [{"id": "contacts", "name": "Contacts", "airtableId": "contacts"}], "fields": []},
  "clients": [{"id": "local", "version": "1.0.0", "tables": []}]
}`

// writeProject lays out a mapping file and a deployments directory in a
// fresh working directory
func writeProject(t *testing.T, descriptors map[string]string) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile("mapping.json", []byte(cliMapping), 0600))
	require.NoError(t, os.Mkdir("deployments", 0755))
	for name, body := range descriptors {
		require.NoError(t, os.WriteFile(filepath.Join("deployments", name), []byte(body), 0600))
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestParseTableList(t *testing.T) {
	tests := []struct {
		name       string
		tablesStr  string
		wantTables []string
	}{
		{
			name:       "single table",
			tablesStr:  "users",
			wantTables: []string{"users"},
		},
		{
			name:       "multiple tables",
			tablesStr:  "users,posts,comments",
			wantTables: []string{"users", "posts", "comments"},
		},
		{
			name:       "tables with spaces",
			tablesStr:  "users, posts, comments",
			wantTables: []string{"users", "posts", "comments"},
		},
		{
			name:       "empty string",
			tablesStr:  "",
			wantTables: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantTables, parseTableList(tt.tablesStr))
		})
	}
}

func TestVersionsCommand(t *testing.T) {
	writeProject(t, map[string]string{
		"1.0.0.json": `{"version": "1.0.0", "author": "unknown", "tables": []}`,
		"1.2.0.yaml": "version: 1.2.0\nauthor: unknown\nnotes: Adds an email field\ntables: []\n",
		"1.1.0.json": `{"version": "1.1.0", "author": "unknown", "notes": "Adds deals", "tables": []}`,
	})

	out, err := execute(t, "versions", "--client", "local")
	require.NoError(t, err)
	assert.Equal(t, "There are upgrades available\n"+
		"  1.1.0: Adds deals\n"+
		"  1.2.0: Adds an email field\n", out)
}

func TestVersionsUpToDate(t *testing.T) {
	writeProject(t, map[string]string{
		"1.0.0.json": `{"version": "1.0.0", "author": "unknown", "tables": []}`,
	})

	out, err := execute(t, "versions", "-c", "local")
	require.NoError(t, err)
	assert.Equal(t, "You are all up to date!\n", out)
}

func TestVersionsClientFromEnvironment(t *testing.T) {
	writeProject(t, nil)
	t.Setenv("SCHEMAMIGRATE_CLIENT", "local")

	out, err := execute(t, "versions")
	require.NoError(t, err)
	assert.Equal(t, "You are all up to date!\n", out)
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing client", args: []string{"versions"}},
		{name: "unknown client", args: []string{"versions", "--client", "nobody"}},
		{name: "plan without database", args: []string{"plan", "--client", "local", "--to", "1.1.0"}},
		{name: "plan to unknown version", args: []string{"plan", "--client", "local", "--to", "9.0.0"}},
		{name: "bad plan format", args: []string{"plan", "--client", "local", "--format", "html"}},
		{name: "encode without version", args: []string{"encode"}},
		{name: "invalid concurrency", args: []string{"versions", "--client", "local", "--concurrency", "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeProject(t, map[string]string{
				"1.1.0.json": `{"version": "1.1.0", "author": "unknown", "tables": []}`,
			})
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestBadDeployments(t *testing.T) {
	writeProject(t, map[string]string{
		"a.json": `{"version": "1.1.0", "author": "unknown", "tables": []}`,
		"b.json": `{"version": "v1.1.0", "author": "unknown", "tables": []}`,
	})

	_, err := execute(t, "versions", "--client", "local")
	assert.ErrorContains(t, err, "duplicate version")
}
