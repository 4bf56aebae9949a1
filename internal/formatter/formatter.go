// Package formatter renders live schemas, migration plans and run results
// for the command line.
package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/schemamigrate/internal/diff"
	"github.com/tordrt/schemamigrate/internal/executor"
	"github.com/tordrt/schemamigrate/internal/schema"
)

const (
	formatMarkdown = "markdown"
	formatText     = "text"
)

// Formatter renders CLI output
type Formatter interface {
	FormatSnapshot(s *schema.Snapshot) error
	FormatPlan(p *diff.Plan) error
	FormatWarnings(ws []diff.Warning) error
	FormatResult(r *executor.Result) error
}

// New returns the formatter for format ("text" or "markdown")
func New(format string, w io.Writer) (Formatter, error) {
	switch format {
	case formatText, "":
		return NewTextFormatter(w), nil
	case formatMarkdown, "md":
		return NewMarkdownFormatter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (use text or markdown)", format)
	}
}

// fieldType renders a field type, with select choices when present
func fieldType(f schema.Field) string {
	choices, _ := f.Options["choices"].([]any)
	if len(choices) == 0 {
		return f.Type
	}
	names := make([]string, 0, len(choices))
	for _, c := range choices {
		if m, ok := c.(map[string]any); ok {
			names = append(names, fmt.Sprint(m["name"]))
		}
	}
	return fmt.Sprintf("%s (%s)", f.Type, strings.Join(names, "|"))
}

func primaryName(t *schema.Table) string {
	if pf := t.PrimaryField(); pf != nil {
		return pf.Name
	}
	return ""
}

// outcomeLine is the message of a successful outcome or the note and error
// of a failed one
func outcomeLine(o executor.Outcome) string {
	if o.OK {
		return o.Message
	}
	state := "failed"
	if !o.Attempted {
		state = "not attempted"
	}
	return fmt.Sprintf("%s (%s: %v)", o.Note, state, o.Err)
}
