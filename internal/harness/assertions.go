package harness

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/roach88/temporal/internal/ir"
	"github.com/roach88/temporal/internal/temporal"
)

// AssertionContext carries what assertions read the final state through.
type AssertionContext struct {
	Ctx     context.Context
	Manager *temporal.Manager
	Refs    map[string]string
	Now     time.Time
	Start   time.Time
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure
// messages. Evaluation does not stop at the first failure.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertValid, AssertInvalid:
			err = assertValidity(actx, a)
		case AssertRecord:
			err = assertRecord(actx, a)
		case AssertCount:
			err = assertCount(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertValidity checks that exactly the listed refs are valid (or
// invalid) in the group at the given instant.
func assertValidity(actx *AssertionContext, a Assertion) error {
	at, err := ParseInstant(a.At, actx.Now, actx.Start)
	if err != nil {
		return err
	}

	var records []ir.Record
	if a.Type == AssertValid {
		records, err = actx.Manager.ValidAt(actx.Ctx, a.Group, at)
	} else {
		records, err = actx.Manager.InvalidAt(actx.Ctx, a.Group, at)
	}
	if err != nil {
		return fmt.Errorf("query %s records: %w", a.Type, err)
	}

	want := make([]string, 0, len(a.Refs))
	for _, ref := range a.Refs {
		want = append(want, actx.Refs[ref])
	}
	got := make([]string, 0, len(records))
	for _, r := range records {
		got = append(got, r.ID)
	}
	sort.Strings(want)
	sort.Strings(got)

	if !reflect.DeepEqual(want, got) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s records of %s at %s: %v", a.Type, a.Group, formatInstant(at), want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// assertRecord checks a single record's existence and fields.
func assertRecord(actx *AssertionContext, a Assertion) error {
	id := actx.Refs[a.Ref]
	rec, err := actx.Manager.Get(actx.Ctx, id)
	exists := err == nil
	if err != nil && !errors.Is(err, temporal.ErrNotFound) {
		return fmt.Errorf("load %s: %w", a.Ref, err)
	}

	if a.Exists != nil && *a.Exists != exists {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record %s exists=%t", a.Ref, *a.Exists),
			Actual:   fmt.Sprintf("exists=%t", exists),
		}
	}
	if a.Expect == nil {
		return nil
	}
	if !exists {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record %s", a.Ref),
			Actual:   "record not found",
		}
	}

	var mismatches []string
	e := a.Expect
	if e.ValidStart != "" {
		want, err := ParseInstant(e.ValidStart, actx.Now, actx.Start)
		if err != nil {
			return err
		}
		if !rec.ValidStart.Equal(want) {
			mismatches = append(mismatches, fmt.Sprintf("valid_start: expected %s, got %s",
				formatInstant(want), formatInstant(rec.ValidStart)))
		}
	}
	if e.ValidEnd != "" {
		want, err := ParseInstant(e.ValidEnd, actx.Now, actx.Start)
		if err != nil {
			return err
		}
		if rec.ValidEnd == nil || !rec.ValidEnd.Equal(want) {
			mismatches = append(mismatches, fmt.Sprintf("valid_end: expected %s, got %s",
				formatInstant(want), formatEnd(rec.ValidEnd)))
		}
	}
	if e.OpenEnded != nil && *e.OpenEnded != rec.OpenEnded() {
		mismatches = append(mismatches, fmt.Sprintf("open_ended: expected %t, got %t (valid_end %s)",
			*e.OpenEnded, rec.OpenEnded(), formatEnd(rec.ValidEnd)))
	}
	if e.UpdatesEnabled != nil && *e.UpdatesEnabled != rec.UpdatesEnabled {
		mismatches = append(mismatches, fmt.Sprintf("updates_enabled: expected %t, got %t",
			*e.UpdatesEnabled, rec.UpdatesEnabled))
	}
	for _, name := range sortedKeys(e.Payload) {
		want, err := ir.FromAny(e.Payload[name])
		if err != nil {
			return fmt.Errorf("payload.%s: %w", name, err)
		}
		got, ok := rec.Payload[name]
		if !ok || !valuesEqual(got, want) {
			mismatches = append(mismatches, fmt.Sprintf("payload.%s: expected %v, got %v",
				name, ir.ToAny(want), ir.ToAny(got)))
		}
	}

	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record %s (%s) to match", a.Ref, id),
			Actual:   strings.Join(mismatches, "; "),
		}
	}
	return nil
}

// assertCount checks the number of records in a group's history.
func assertCount(actx *AssertionContext, a Assertion) error {
	history, err := actx.Manager.History(actx.Ctx, a.Group)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if len(history) != a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d records in %s", a.Count, a.Group),
			Actual:   fmt.Sprintf("%d records", len(history)),
		}
	}
	return nil
}

// valuesEqual compares payload values through their canonical encoding.
func valuesEqual(a, b ir.Value) bool {
	ab, err := ir.MarshalCanonical(a)
	if err != nil {
		return false
	}
	bb, err := ir.MarshalCanonical(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}

func formatEnd(end *time.Time) string {
	if end == nil {
		return "open"
	}
	return formatInstant(*end)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
