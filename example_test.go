package schemamigrate_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/tordrt/schemamigrate"
)

const exampleMapping = `{
  "source": {
    "tables": [{"id": "contacts", "name": "Contacts", "airtableId": "tblSrcContacts"}],
    "fields": [
      {"id": "contact-name", "name": "Name", "airtableId": "fldSrcName"},
      {"id": "contact-email", "name": "Email", "airtableId": "fldSrcEmail"}
    ]
  },
  "clients": [
    {"id": "appClient", "version": "1.0.0", "tables": [
      {"id": "tblPeople", "sourceTable": "contacts", "fields": [
        {"id": "fldFullName", "sourceField": "contact-name"}
      ]}
    ]}
  ]
}`

const exampleDescriptor = `version: 1.1.0
author: unknown
notes: Adds an email field
tables:
  - id: tblSrcContacts
    name: Contacts
    sourceTable: {id: contacts}
    fields:
      - id: fldSrcEmail
        name: Email
        type: email
        sourceField: {id: contact-email}
`

func Example() {
	dir, err := os.MkdirTemp("", "schemamigrate")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	mappingPath := filepath.Join(dir, "mapping.json")
	deployments := filepath.Join(dir, "deployments")
	if err := os.WriteFile(mappingPath, []byte(exampleMapping), 0600); err != nil {
		log.Fatal(err)
	}
	if err := os.Mkdir(deployments, 0755); err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(deployments, "1.1.0.yaml"), []byte(exampleDescriptor), 0600); err != nil {
		log.Fatal(err)
	}

	env := schemamigrate.NewMemoryEnvironment(&schemamigrate.Snapshot{Tables: []schemamigrate.Table{
		{ID: "tblPeople", Name: "People", PrimaryFieldID: "fldFullName", Fields: []schemamigrate.Field{
			{ID: "fldFullName", Name: "Full name", Type: "singleLineText"},
		}},
	}})

	store, err := schemamigrate.LoadMapping(mappingPath)
	if err != nil {
		log.Fatal(err)
	}
	all, err := schemamigrate.LoadDeployments(deployments)
	if err != nil {
		log.Fatal(err)
	}
	target, err := schemamigrate.SelectTarget(store, "appClient", all, "")
	if err != nil {
		log.Fatal(err)
	}

	report, err := schemamigrate.Upgrade(context.Background(), env, store, "appClient", target, nil)
	if err != nil {
		log.Fatal(err)
	}
	for _, c := range report.Plan.Changes {
		fmt.Println(c.Note)
	}
	for _, o := range report.Result.Outcomes {
		fmt.Println(o.Message)
	}
	if err := schemamigrate.SaveMapping(store, mappingPath); err != nil {
		log.Fatal(err)
	}

	saved, err := schemamigrate.LoadMapping(mappingPath)
	if err != nil {
		log.Fatal(err)
	}
	_, err = schemamigrate.SelectTarget(saved, "appClient", all, "")
	fmt.Println(errors.Is(err, schemamigrate.ErrUpToDate))
	// Output:
	// Create a new field Email in the table People.
	// Added new field Email to People
	// true
}
