package schemamigrate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/schemamigrate/internal/deployment"
	"github.com/tordrt/schemamigrate/internal/mapping"
	"github.com/tordrt/schemamigrate/internal/schema"
)

const testMapping = `{
  "source": {
    "tables": [{"id": "contacts", "name": "Contacts", "airtableId": "tblSrcContacts"}],
    "fields": [
      {"id": "contact-name", "name": "Name", "airtableId": "fldSrcName"},
      {"id": "contact-email", "name": "Email", "airtableId": "fldSrcEmail"},
      {"id": "contact-phone", "name": "Phone", "airtableId": "fldSrcPhone"}
    ]
  },
  "clients": [
    {"id": "appClient", "version": "1.1.1", "tables": [
      {"id": "tblPeople", "sourceTable": "contacts", "fields": [
        {"id": "fldFullName", "sourceField": "contact-name"}
      ]}
    ]}
  ]
}`

func testStore(t *testing.T) *mapping.Store {
	t.Helper()
	s, err := mapping.Load(strings.NewReader(testMapping))
	require.NoError(t, err)
	return s
}

func testEnvironment() *schema.MemoryEnvironment {
	return schema.NewMemoryEnvironment(&schema.Snapshot{Tables: []schema.Table{
		{ID: "tblPeople", Name: "People", PrimaryFieldID: "fldFullName", Fields: []schema.Field{
			{ID: "fldFullName", Name: "Full name", Type: "singleLineText"},
		}},
	}})
}

func contacts(fields ...deployment.FieldDef) deployment.TableDef {
	return deployment.TableDef{
		ID:          "tblSrcContacts",
		Name:        "Contacts",
		SourceTable: &mapping.SourceEntity{ID: "contacts"},
		PrimaryField: deployment.FieldDef{
			ID: "fldSrcName", Name: "Name", Type: "singleLineText",
			SourceField: &mapping.SourceEntity{ID: "contact-name"},
		},
		Fields: fields,
	}
}

func fieldDef(id, name, typ, sourceID string) deployment.FieldDef {
	return deployment.FieldDef{
		ID: id, Name: name, Type: typ,
		Config:      map[string]any{"type": typ},
		SourceField: &mapping.SourceEntity{ID: sourceID},
	}
}

func descriptors() []*deployment.Descriptor {
	return []*deployment.Descriptor{
		{Version: "1.1.1", Tables: []deployment.TableDef{contacts()}},
		{Version: "1.2.2", Notes: "Adds an email field", Tables: []deployment.TableDef{
			contacts(fieldDef("fldSrcEmail", "Email", "email", "contact-email")),
		}},
		{Version: "1.2.3", Tables: []deployment.TableDef{
			contacts(
				fieldDef("fldSrcEmail", "Email", "email", "contact-email"),
				fieldDef("fldSrcPhone", "Phone", "phoneNumber", "contact-phone"),
			),
		}},
	}
}

func TestParseDatabaseURL(t *testing.T) {
	tests := []struct {
		url      string
		wantType string
		wantConn string
		wantErr  bool
	}{
		{url: "postgres://u:p@localhost/db", wantType: "postgres", wantConn: "postgres://u:p@localhost/db"},
		{url: "postgresql://localhost/db", wantType: "postgres", wantConn: "postgresql://localhost/db"},
		{url: "mysql://u:p@tcp(localhost:3306)/db", wantType: "mysql", wantConn: "u:p@tcp(localhost:3306)/db"},
		{url: "sqlite://data/app.db", wantType: "sqlite", wantConn: "data/app.db"},
		{url: "", wantErr: true},
		{url: "airtable://base", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			dbType, conn, err := parseDatabaseURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, dbType)
			assert.Equal(t, tt.wantConn, conn)
		})
	}
}

func TestOpenInvalidURL(t *testing.T) {
	_, err := Open(context.Background(), "ftp://example.com", nil)
	assert.Error(t, err)
}

func TestSelectTarget(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    string
		wantErr error
	}{
		{name: "latest by default", want: "1.2.3"},
		{name: "explicit candidate", version: "1.2.2", want: "1.2.2"},
		{name: "current version", version: "1.1.1", wantErr: ErrNotNewer},
		{name: "unknown version", version: "9.9.9", wantErr: ErrUnknownVersion},
		{name: "invalid version", version: "latest", wantErr: deployment.ErrInvalidVersion},
		{name: "shorthand version", version: "1.2", wantErr: ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := SelectTarget(testStore(t), "appClient", descriptors(), tt.version)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Version)
		})
	}
}

func TestSelectTargetUpToDate(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.SetVersion("appClient", "1.2.3"))

	versions, err := Versions(store, "appClient", descriptors())
	require.NoError(t, err)
	assert.Empty(t, versions)

	_, err = SelectTarget(store, "appClient", descriptors(), "")
	assert.ErrorIs(t, err, ErrUpToDate)

	_, err = Versions(store, "appMissing", descriptors())
	assert.ErrorIs(t, err, mapping.ErrNotFound)
}

func TestUpgradeCreatesMissingField(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	env := testEnvironment()
	target := deployment.Find(descriptors(), "1.2.2")

	plan, err := Plan(ctx, env, store, "appClient", target, nil)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, "Create a new field Email in the table People.", plan.Changes[0].Note)

	report, err := Upgrade(ctx, env, store, "appClient", target, nil)
	require.NoError(t, err)
	require.NotNil(t, report.Result)
	assert.True(t, report.Result.OK())
	assert.True(t, report.Advanced)

	cf, ok := store.ResolveField("appClient", "tblPeople", "contact-email")
	require.True(t, ok)
	assert.Equal(t, report.Result.Outcomes[0].FieldID, cf.ID)

	client, err := store.Resolve("appClient")
	require.NoError(t, err)
	assert.Equal(t, "1.2.2", client.Version)

	live, err := env.ReadSchema(ctx)
	require.NoError(t, err)
	created := live.Table("tblPeople").Field(cf.ID)
	require.NotNil(t, created)
	assert.Equal(t, "Email", created.Name)
	assert.Equal(t, "email", created.Type)
}

func TestUpgradeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	env := testEnvironment()
	target := deployment.Find(descriptors(), "1.2.3")

	first, err := Upgrade(ctx, env, store, "appClient", target, nil)
	require.NoError(t, err)
	assert.Len(t, first.Plan.Changes, 2)

	second, err := Plan(ctx, env, store, "appClient", target, nil)
	require.NoError(t, err)
	assert.Empty(t, second.Changes)
	assert.Len(t, env.Calls(), 2)
}

func TestUpgradePartialFailure(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	env := testEnvironment()
	env.FailOn("Phone", errors.New("rejected by platform"))
	target := deployment.Find(descriptors(), "1.2.3")

	report, err := Upgrade(ctx, env, store, "appClient", target, nil)
	require.NoError(t, err)
	assert.False(t, report.Advanced)
	assert.Equal(t, 1, report.Result.Succeeded())
	assert.Equal(t, 1, report.Result.Failed())

	client, err := store.Resolve("appClient")
	require.NoError(t, err)
	assert.Equal(t, "1.1.1", client.Version)

	_, ok := store.ResolveField("appClient", "tblPeople", "contact-email")
	assert.True(t, ok)

	retry, err := Plan(ctx, env, store, "appClient", target, nil)
	require.NoError(t, err)
	require.Len(t, retry.Changes, 1)
	assert.Equal(t, "Create a new field Phone in the table People.", retry.Changes[0].Note)
}

func TestUpgradeDryRun(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	env := testEnvironment()

	report, err := Upgrade(ctx, env, store, "appClient", deployment.Find(descriptors(), "1.2.3"), &UpgradeOptions{DryRun: true})
	require.NoError(t, err)
	assert.Len(t, report.Plan.Changes, 2)
	assert.Nil(t, report.Result)
	assert.False(t, report.Advanced)
	assert.Empty(t, env.Calls())
}

func TestUpgradeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Upgrade(ctx, testEnvironment(), testStore(t), "appClient", deployment.Find(descriptors(), "1.2.2"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
