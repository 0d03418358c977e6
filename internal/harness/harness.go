package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/temporal/internal/compiler"
	"github.com/roach88/temporal/internal/ir"
	"github.com/roach88/temporal/internal/store"
	"github.com/roach88/temporal/internal/temporal"
	"github.com/roach88/temporal/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a fixed clock and sequential record ids.
type Harness struct {
	store   *store.Store
	manager *temporal.Manager
	clock   *testutil.FixedClock
	start   time.Time
	logger  *slog.Logger

	refs   map[string]string
	groups []ir.GroupKey
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Step and assertion mismatches are reported in the result; the returned
// error is reserved for scenarios that cannot run at all.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	start, err := time.Parse(time.RFC3339Nano, scenario.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid start: %w", err)
	}
	start = start.UTC()

	st, err := store.Open(":memory:", store.WithIDGenerator(testutil.NewSequentialIDs("rec")))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	opts, err := managerOptions(scenario)
	if err != nil {
		return nil, err
	}

	clock := testutil.NewFixedClock(start)
	h := &Harness{
		store:   st,
		manager: temporal.New(st, clock, opts...),
		clock:   clock,
		start:   start,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		refs:    make(map[string]string),
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	for ref, id := range h.refs {
		result.Refs[ref] = id
	}

	for _, key := range h.groups {
		history, err := h.manager.History(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read final state: %w", err)
		}
		result.Records = append(result.Records, history...)
	}

	actx := &AssertionContext{
		Ctx:     ctx,
		Manager: h.manager,
		Refs:    h.refs,
		Now:     clock.Now(),
		Start:   start,
	}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// managerOptions builds the manager configuration a scenario asks for.
func managerOptions(scenario *Scenario) ([]temporal.Option, error) {
	var opts []temporal.Option

	if scenario.Tolerance != "" {
		d, err := time.ParseDuration(scenario.Tolerance)
		if err != nil {
			return nil, fmt.Errorf("invalid tolerance: %w", err)
		}
		opts = append(opts, temporal.WithTolerance(d))
	}

	if len(scenario.Models) > 0 {
		var specs []ir.ModelSpec
		for _, path := range scenario.Models {
			loaded, err := compiler.LoadModels(path)
			if err != nil {
				return nil, fmt.Errorf("load models %s: %w", path, err)
			}
			specs = append(specs, loaded...)
		}
		reg, err := compiler.NewRegistry(specs...)
		if err != nil {
			return nil, fmt.Errorf("build model registry: %w", err)
		}
		opts = append(opts, temporal.WithModels(reg))
	}

	return opts, nil
}

// executeStep runs one step and records it in the trace.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	ev := TraceEvent{Step: index, Op: step.Op, Ref: step.Ref}

	var (
		outcome string
		err     error
	)
	switch step.Op {
	case OpAdvance:
		d, perr := time.ParseDuration(step.By)
		if perr != nil {
			return perr
		}
		h.clock.Advance(d)
		outcome = OutcomeOK
	case OpCreate:
		outcome, err = h.create(ctx, step, &ev)
	case OpUpdate:
		ev.RecordID = h.refs[step.Ref]
		outcome, err = h.update(ctx, ev.RecordID, step)
	case OpDelete:
		ev.RecordID = h.refs[step.Ref]
		var res temporal.Resolution
		res, err = h.manager.RequestDelete(ctx, ev.RecordID)
		outcome = string(res)
	case OpEnableUpdates:
		ev.RecordID = h.refs[step.Ref]
		_, err = h.manager.EnableUnrestrictedUpdates(ctx, ev.RecordID)
		outcome = OutcomeOK
	case OpDisableUpdates:
		ev.RecordID = h.refs[step.Ref]
		_, err = h.manager.DisableUnrestrictedUpdates(ctx, ev.RecordID)
		outcome = OutcomeOK
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	if err != nil {
		var le *temporal.LifecycleError
		if !errors.As(err, &le) {
			return err
		}
		outcome = string(le.Code)
	}

	ev.At = formatInstant(h.clock.Now())
	ev.Outcome = outcome
	result.AddTrace(ev)

	if !outcomeMatches(step, outcome) {
		want := step.Expect
		if want == "" {
			want = "success"
		}
		result.AddError(fmt.Sprintf("step %d (%s %s): expected %s, got %s", index, step.Op, step.Ref, want, outcome))
	}

	h.logger.Info("step completed",
		"step", index,
		"op", step.Op,
		"ref", step.Ref,
		"record_id", ev.RecordID,
		"outcome", outcome,
	)
	return nil
}

func (h *Harness) create(ctx context.Context, step Step, ev *TraceEvent) (string, error) {
	now := h.clock.Now()
	start, err := ParseInstant(step.Start, now, h.start)
	if err != nil {
		return "", err
	}
	cand := ir.Record{Group: step.Group, ValidStart: start}
	if step.End != "" {
		end, err := ParseInstant(step.End, now, h.start)
		if err != nil {
			return "", err
		}
		cand.ValidEnd = &end
	}
	if step.Payload != nil {
		v, err := ir.FromAny(step.Payload)
		if err != nil {
			return "", fmt.Errorf("payload: %w", err)
		}
		cand.Payload = v.(ir.Object)
	}

	h.trackGroup(step.Group)

	rec, err := h.manager.Create(ctx, cand)
	if err != nil {
		return "", err
	}
	ev.RecordID = rec.ID
	if step.Ref != "" {
		h.refs[step.Ref] = rec.ID
	}
	return OutcomeOK, nil
}

func (h *Harness) update(ctx context.Context, id string, step Step) (string, error) {
	changes, err := ConvertChanges(step.Changes, h.clock.Now(), h.start)
	if err != nil {
		return "", err
	}
	if _, err := h.manager.RequestUpdate(ctx, id, changes); err != nil {
		return "", err
	}
	return OutcomeOK, nil
}

func (h *Harness) trackGroup(key ir.GroupKey) {
	for _, g := range h.groups {
		if g == key {
			return
		}
	}
	h.groups = append(h.groups, key)
}

// outcomeMatches compares a step outcome with its expect clause. An empty
// expect accepts any successful outcome.
func outcomeMatches(step Step, outcome string) bool {
	if step.Expect != "" {
		return step.Expect == outcome
	}
	switch outcome {
	case string(temporal.ErrCodeInvalidDateRange), string(temporal.ErrCodeUpdateNotAllowed):
		return false
	default:
		return true
	}
}

// ConvertChanges turns decoded YAML or JSON changes into an ir.Changes set.
// Instant strings resolve against now and start.
func ConvertChanges(raw map[string]any, now, start time.Time) (ir.Changes, error) {
	changes := make(ir.Changes, len(raw))
	for key, val := range raw {
		switch key {
		case ir.FieldValidStart, ir.FieldValidEnd:
			if val == nil {
				changes[key] = nil
				continue
			}
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("%s: expected an instant, got %T", key, val)
			}
			t, err := ParseInstant(s, now, start)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			changes[key] = t
		case ir.FieldParentID, ir.FieldParentType:
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("%s: expected a string, got %T", key, val)
			}
			changes[key] = s
		case ir.FieldUpdatesEnabled:
			changes[key] = val
		default:
			v, err := ir.FromAny(val)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			changes[key] = v
		}
	}
	return changes, nil
}

// formatInstant renders times the way traces and golden files show them.
func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
