package formatter

import (
	"fmt"
	"io"

	"github.com/tordrt/schemamigrate/internal/diff"
	"github.com/tordrt/schemamigrate/internal/executor"
	"github.com/tordrt/schemamigrate/internal/schema"
)

// TextFormatter formats output as compact text
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// FormatSnapshot writes a live schema in compact text format
func (f *TextFormatter) FormatSnapshot(s *schema.Snapshot) error {
	first := true
	for i := range s.Tables {
		table := &s.Tables[i]
		if table.Deleted {
			continue
		}
		if !first {
			_, _ = fmt.Fprintln(f.writer) // Blank line between tables
		}
		first = false

		pkStr := ""
		if name := primaryName(table); name != "" {
			pkStr = fmt.Sprintf(" (PK: %s)", name)
		}
		_, _ = fmt.Fprintf(f.writer, "TABLE %s [%s]%s\n", table.Name, table.ID, pkStr)

		for _, field := range table.Fields {
			if field.Deleted {
				continue
			}
			line := fmt.Sprintf("  %s: %s", field.Name, fieldType(field))
			if field.Description != "" {
				line += " -- " + field.Description
			}
			_, _ = fmt.Fprintln(f.writer, line)
		}
	}
	return nil
}

// FormatPlan writes the changes and warnings of a plan
func (f *TextFormatter) FormatPlan(p *diff.Plan) error {
	_, _ = fmt.Fprintf(f.writer, "Upgrade preview for version %s (client %s)\n", p.TargetVersion, p.ClientID)

	if p.Empty() {
		_, _ = fmt.Fprintln(f.writer, "  No changes")
	}
	for i, c := range p.Changes {
		_, _ = fmt.Fprintf(f.writer, "  %d. %s\n", i+1, c.Note)
	}

	return f.FormatWarnings(p.Warnings)
}

// FormatWarnings writes the skipped tables and fields of a plan. Nothing is
// written when there are none.
func (f *TextFormatter) FormatWarnings(ws []diff.Warning) error {
	if len(ws) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(f.writer)
	_, _ = fmt.Fprintln(f.writer, "  WARNINGS:")
	for _, w := range ws {
		_, _ = fmt.Fprintf(f.writer, "    ! %s\n", w)
	}
	return nil
}

// FormatResult writes one line per outcome, in change order
func (f *TextFormatter) FormatResult(r *executor.Result) error {
	if !r.Ran {
		_, _ = fmt.Fprintln(f.writer, "Run did not start")
		return nil
	}

	_, _ = fmt.Fprintf(f.writer, "Run %s: %d succeeded, %d failed\n", r.RunID, r.Succeeded(), r.Failed())
	for _, o := range r.Outcomes {
		mark := "✓"
		if !o.OK {
			mark = "✗"
		}
		_, _ = fmt.Fprintf(f.writer, "  %s %s\n", mark, outcomeLine(o))
	}
	return nil
}
