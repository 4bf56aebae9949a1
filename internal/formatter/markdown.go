package formatter

import (
	"fmt"
	"io"

	"github.com/tordrt/schemamigrate/internal/diff"
	"github.com/tordrt/schemamigrate/internal/executor"
	"github.com/tordrt/schemamigrate/internal/schema"
)

// MarkdownFormatter formats output as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// FormatSnapshot writes a live schema in markdown format
func (f *MarkdownFormatter) FormatSnapshot(s *schema.Snapshot) error {
	_, _ = fmt.Fprintln(f.writer, "# Live Schema")
	_, _ = fmt.Fprintln(f.writer)

	for i := range s.Tables {
		table := &s.Tables[i]
		if table.Deleted {
			continue
		}

		_, _ = fmt.Fprintf(f.writer, "## %s\n\n", table.Name)
		if table.Description != "" {
			_, _ = fmt.Fprintf(f.writer, "%s\n\n", table.Description)
		}

		_, _ = fmt.Fprintln(f.writer, "### Fields")
		_, _ = fmt.Fprintln(f.writer)

		pk := table.PrimaryField()
		for _, field := range table.Fields {
			if field.Deleted {
				continue
			}
			typeStr := fieldType(field)
			if pk != nil && pk.ID == field.ID {
				typeStr += ", PK"
			}
			if field.Description != "" {
				_, _ = fmt.Fprintf(f.writer, "- **%s:** %s. %s\n", field.Name, typeStr, field.Description)
			} else {
				_, _ = fmt.Fprintf(f.writer, "- **%s:** %s\n", field.Name, typeStr)
			}
		}
		_, _ = fmt.Fprintln(f.writer)
	}
	return nil
}

// FormatPlan writes a plan as a changes preview
func (f *MarkdownFormatter) FormatPlan(p *diff.Plan) error {
	_, _ = fmt.Fprintf(f.writer, "# Upgrade preview for version %s\n\n", p.TargetVersion)
	_, _ = fmt.Fprintf(f.writer, "Client: `%s`\n\n", p.ClientID)

	_, _ = fmt.Fprintln(f.writer, "## Changes")
	_, _ = fmt.Fprintln(f.writer)
	if p.Empty() {
		_, _ = fmt.Fprintln(f.writer, "No changes.")
	}
	for i, c := range p.Changes {
		_, _ = fmt.Fprintf(f.writer, "%d. %s\n", i+1, c.Note)
	}
	_, _ = fmt.Fprintln(f.writer)

	return f.FormatWarnings(p.Warnings)
}

// FormatWarnings writes a warnings section when there is anything to report
func (f *MarkdownFormatter) FormatWarnings(ws []diff.Warning) error {
	if len(ws) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(f.writer, "## Warnings")
	_, _ = fmt.Fprintln(f.writer)
	for _, w := range ws {
		_, _ = fmt.Fprintf(f.writer, "- %s\n", w)
	}
	_, _ = fmt.Fprintln(f.writer)
	return nil
}

// FormatResult writes a run as a markdown task list
func (f *MarkdownFormatter) FormatResult(r *executor.Result) error {
	if !r.Ran {
		_, _ = fmt.Fprintln(f.writer, "Run did not start.")
		return nil
	}

	_, _ = fmt.Fprintf(f.writer, "# Results\n\nRun `%s`: %d succeeded, %d failed\n\n", r.RunID, r.Succeeded(), r.Failed())
	for _, o := range r.Outcomes {
		box := "x"
		if !o.OK {
			box = " "
		}
		_, _ = fmt.Fprintf(f.writer, "- [%s] %s\n", box, outcomeLine(o))
	}
	_, _ = fmt.Fprintln(f.writer)
	return nil
}
