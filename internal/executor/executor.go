// Package executor applies diff changes to a live environment and reports one
// outcome per change, in change order.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tordrt/schemamigrate/internal/deployment"
	"github.com/tordrt/schemamigrate/internal/diff"
	"github.com/tordrt/schemamigrate/internal/logging"
	"github.com/tordrt/schemamigrate/internal/mapping"
	"github.com/tordrt/schemamigrate/internal/schema"
)

const (
	// DefaultTimeout bounds a single call to the live environment
	DefaultTimeout = 30 * time.Second
	// DefaultConcurrency is the number of actions in flight at once
	DefaultConcurrency = 4
)

var (
	// ErrExternalCall wraps failures and timeouts of the live environment
	ErrExternalCall = errors.New("external call failed")
	// ErrUnsupportedAction is returned for action kinds the executor cannot run
	ErrUnsupportedAction = errors.New("unsupported action")
)

// Executor runs changes against a live environment. Store receives a mapping
// row for every field created.
type Executor struct {
	Store       *mapping.Store
	Creator     schema.FieldCreator
	Timeout     time.Duration
	Concurrency int
	Limiter     *rate.Limiter
	Logger      *slog.Logger
	Metrics     *Metrics
}

// Outcome is the result of one change. Attempted is false when the live
// environment was never called for it.
type Outcome struct {
	Index     int
	Note      string
	OK        bool
	Attempted bool
	Message   string
	FieldID   string
	Err       error
	Duration  time.Duration
}

// Result holds one outcome per submitted change, Outcomes[i] belonging to
// changes[i]. Ran is false when nothing was submitted.
type Result struct {
	RunID    string
	Ran      bool
	Outcomes []Outcome
}

// Succeeded returns the number of successful outcomes
func (r *Result) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK {
			n++
		}
	}
	return n
}

// Failed returns the number of failed outcomes
func (r *Result) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// OK reports whether the run happened and every change succeeded
func (r *Result) OK() bool {
	return r.Ran && r.Failed() == 0
}

// Run applies changes concurrently. The returned error is only set when ctx
// was already done and nothing was submitted; individual failures are
// captured in their outcomes.
func (x *Executor) Run(ctx context.Context, changes []diff.Change) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	logger := x.logger().With("run", res.RunID)

	if err := ctx.Err(); err != nil {
		logger.Info("run cancelled before start", "changes", len(changes))
		return res, fmt.Errorf("run cancelled before start: %w", err)
	}

	x.Metrics.runStarted()
	res.Ran = true
	res.Outcomes = make([]Outcome, len(changes))

	var g errgroup.Group
	g.SetLimit(x.concurrency())

	for i, c := range changes {
		g.Go(func() error {
			res.Outcomes[i] = x.apply(ctx, logger, i, c)
			return nil // failures live in the outcome
		})
	}
	_ = g.Wait()

	logger.Info("run complete",
		"changes", len(changes),
		"succeeded", res.Succeeded(),
		"failed", res.Failed())

	return res, nil
}

func (x *Executor) apply(ctx context.Context, logger *slog.Logger, i int, c diff.Change) Outcome {
	out := Outcome{Index: i, Note: c.Note}
	start := time.Now()

	kind := x.dispatch(ctx, i, c, &out)

	out.Duration = time.Since(start)
	x.Metrics.observe(kind, out)

	if out.OK {
		logger.Debug(out.Message, "index", i, "field", out.FieldID, "duration", out.Duration)
	} else {
		logger.Error("change failed", "index", i, "note", c.Note, "attempted", out.Attempted, "error", out.Err)
	}
	return out
}

// dispatch runs the change's action and returns its kind. A panicking
// capability fails only its own outcome.
func (x *Executor) dispatch(ctx context.Context, i int, c diff.Change, out *Outcome) (kind string) {
	kind = "unknown"
	defer func() {
		if r := recover(); r != nil {
			out.OK = false
			out.Message = ""
			out.Err = fmt.Errorf("change %d panicked: %w: %v", i, ErrExternalCall, r)
		}
	}()

	switch a := c.Action.(type) {
	case diff.CreateField:
		kind = a.Kind()
		x.createField(ctx, a, out)
	case nil:
		out.Err = fmt.Errorf("change %d has no action: %w", i, ErrUnsupportedAction)
	default:
		kind = a.Kind()
		out.Err = fmt.Errorf("%s: %w", a.Kind(), ErrUnsupportedAction)
	}
	return kind
}

func (x *Executor) createField(ctx context.Context, a diff.CreateField, out *Outcome) {
	if err := deployment.ValidateOptions(a.Spec.Type, a.Spec.Options); err != nil {
		out.Err = fmt.Errorf("field %s: %w", a.Spec.Name, err)
		return
	}

	if x.Limiter != nil {
		if err := x.Limiter.Wait(ctx); err != nil {
			out.Err = fmt.Errorf("field %s not attempted: %w", a.Spec.Name, err)
			return
		}
	}
	if err := ctx.Err(); err != nil {
		out.Err = fmt.Errorf("field %s not attempted: %w", a.Spec.Name, err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, x.timeout())
	defer cancel()
	out.Attempted = true
	created, err := x.Creator.CreateField(callCtx, a.Table, a.Spec)
	if err != nil {
		out.Err = fmt.Errorf("create field %s in %s: %w: %w", a.Spec.Name, a.Table.Name, ErrExternalCall, err)
		return
	}
	if created == nil || created.ID == "" {
		out.Err = fmt.Errorf("create field %s in %s returned no field: %w", a.Spec.Name, a.Table.Name, ErrExternalCall)
		return
	}
	out.FieldID = created.ID

	err = x.Store.Record(a.ClientID, a.Table.ID, mapping.ClientField{
		ID:          created.ID,
		SourceField: mapping.Ref{ID: a.SourceFieldID},
	})
	if err != nil {
		out.Err = fmt.Errorf("field %s created as %s but not recorded: %w", a.Spec.Name, created.ID, err)
		return
	}

	out.OK = true
	out.Message = fmt.Sprintf("Added new field %s to %s", a.Spec.Name, a.Table.Name)
}

func (x *Executor) timeout() time.Duration {
	if x.Timeout > 0 {
		return x.Timeout
	}
	return DefaultTimeout
}

func (x *Executor) concurrency() int {
	if x.Concurrency > 0 {
		return x.Concurrency
	}
	return DefaultConcurrency
}

func (x *Executor) logger() *slog.Logger {
	if x.Logger != nil {
		return x.Logger
	}
	return logging.Discard()
}
