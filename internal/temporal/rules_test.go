package temporal

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/temporal/internal/ir"
)

var (
	now   = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	group = ir.GroupKey{Model: "price", ParentID: "product-1"}
)

func rec(id string, start time.Time, end *time.Time) ir.Record {
	return ir.Record{ID: id, Group: group, ValidStart: start, ValidEnd: end}
}

func at(d time.Duration) time.Time { return now.Add(d) }

func end(d time.Duration) *time.Time { return ir.TimePtr(now.Add(d)) }

func TestValidateCandidate(t *testing.T) {
	tests := []struct {
		name    string
		rec     ir.Record
		wantErr bool
	}{
		{"start now", rec("", now, nil), false},
		{"start in future", rec("", at(time.Hour), nil), false},
		{"start inside tolerance", rec("", at(-4*time.Second), nil), false},
		{"start exactly at tolerance edge", rec("", at(-5*time.Second), nil), false},
		{"start beyond tolerance", rec("", at(-6*time.Second), nil), true},
		{"end after start", rec("", now, end(time.Hour)), false},
		{"end equal to start", rec("", now, end(0)), true},
		{"end before start", rec("", at(time.Hour), end(time.Minute)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCandidate(tt.rec, now, DefaultTolerance)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsInvalidDateRange(err), "got %v", err)
		})
	}
}

func TestConflictingSiblings_OpenEndedCandidate(t *testing.T) {
	siblings := []ir.Record{
		rec("past", at(-48*time.Hour), end(-24*time.Hour)),
		rec("current", at(-time.Hour), nil),
		rec("scheduled", at(time.Hour), nil),
		rec("scheduled-closed", at(2*time.Hour), end(3*time.Hour)),
	}

	got := conflictingSiblings(rec("", now, nil), siblings, now)

	assert.Equal(t, []string{"scheduled", "scheduled-closed"}, ids(got))
}

func TestConflictingSiblings_ClosedCandidate(t *testing.T) {
	siblings := []ir.Record{
		rec("past", at(-48*time.Hour), end(-24*time.Hour)),
		rec("current", at(-time.Hour), nil),
		rec("touching", at(2*time.Hour), nil),
		rec("later", at(5*time.Hour), nil),
	}

	// [now, now+2h) overlaps current; "touching" starts exactly at the end.
	got := conflictingSiblings(rec("", now, end(2*time.Hour)), siblings, now)

	assert.Equal(t, []string{"current"}, ids(got))
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		s    ir.Record
		want bool
	}{
		{"ends at window start", rec("a", at(-time.Hour), end(0)), false},
		{"ends inside window", rec("a", at(-time.Hour), end(time.Minute)), true},
		{"starts at window end", rec("a", at(time.Hour), nil), false},
		{"open-ended before window", rec("a", at(-time.Hour), nil), true},
		{"inside window", rec("a", at(time.Minute), end(2*time.Minute)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, overlaps(tt.s, now, at(time.Hour)))
		})
	}
}

func TestCurrentSiblingAndShouldClose(t *testing.T) {
	siblings := []ir.Record{
		rec("past", at(-48*time.Hour), end(-24*time.Hour)),
		rec("current", at(-time.Hour), end(4*time.Hour)),
	}

	cur, ok := currentSibling(siblings, now)
	require.True(t, ok)
	assert.Equal(t, "current", cur.ID)

	assert.True(t, shouldClose(cur, rec("", at(time.Hour), nil)))
	assert.False(t, shouldClose(cur, rec("", at(4*time.Hour), nil)), "ends exactly at candidate start")
	assert.False(t, shouldClose(cur, rec("", at(5*time.Hour), nil)))

	_, ok = currentSibling(siblings[:1], now)
	assert.False(t, ok)
}

func TestCheckRestrictedUpdate(t *testing.T) {
	tests := []struct {
		name    string
		prev    ir.Record
		changes ir.Changes
		allowed bool
	}{
		{
			name:    "extend open-ended record",
			prev:    rec("a", at(-time.Hour), nil),
			changes: ir.Changes{ir.FieldValidEnd: at(time.Hour)},
			allowed: true,
		},
		{
			name:    "move future end",
			prev:    rec("a", at(-time.Hour), end(time.Hour)),
			changes: ir.Changes{ir.FieldValidEnd: at(2 * time.Hour)},
			allowed: true,
		},
		{
			name:    "reopen future end",
			prev:    rec("a", at(-time.Hour), end(time.Hour)),
			changes: ir.Changes{ir.FieldValidEnd: nil},
			allowed: true,
		},
		{
			name:    "new end inside tolerance",
			prev:    rec("a", at(-time.Hour), nil),
			changes: ir.Changes{ir.FieldValidEnd: at(-3 * time.Second)},
			allowed: true,
		},
		{
			name:    "new end beyond tolerance",
			prev:    rec("a", at(-time.Hour), nil),
			changes: ir.Changes{ir.FieldValidEnd: at(-time.Minute)},
		},
		{
			name:    "previous end already passed",
			prev:    rec("a", at(-2*time.Hour), end(-time.Hour)),
			changes: ir.Changes{ir.FieldValidEnd: at(time.Hour)},
		},
		{
			name:    "previous end equal to now",
			prev:    rec("a", at(-2*time.Hour), end(0)),
			changes: ir.Changes{ir.FieldValidEnd: at(time.Hour)},
		},
		{
			name: "end plus another field",
			prev: rec("a", at(-time.Hour), nil),
			changes: ir.Changes{
				ir.FieldValidEnd:        at(time.Hour),
				ir.PayloadField("cents"): ir.Int(10),
			},
		},
		{
			name:    "start only",
			prev:    rec("a", at(time.Hour), nil),
			changes: ir.Changes{ir.FieldValidStart: at(2 * time.Hour)},
		},
		{
			name:    "updates_enabled is never a change",
			prev:    ir.Record{ID: "a", Group: group, ValidStart: now, UpdatesEnabled: true},
			changes: ir.Changes{ir.FieldUpdatesEnabled: false},
		},
		{
			name:    "unrestricted record accepts anything",
			prev:    ir.Record{ID: "a", Group: group, ValidStart: at(-2 * time.Hour), ValidEnd: end(-time.Hour), UpdatesEnabled: true},
			changes: ir.Changes{ir.FieldValidStart: at(-3 * time.Hour), ir.PayloadField("cents"): ir.Int(1)},
			allowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := checkRestrictedUpdate(tt.prev, tt.changes, now, DefaultTolerance)
			assert.Equal(t, tt.allowed, v.Allowed, v.Reason)
			if !tt.allowed {
				assert.NotEmpty(t, v.Reason)
			}
		})
	}
}

func TestResolveDelete(t *testing.T) {
	assert.Equal(t, ResolutionRemoved, resolveDelete(rec("a", at(time.Second), nil), now))
	assert.Equal(t, ResolutionEnded, resolveDelete(rec("a", now, nil), now))
	assert.Equal(t, ResolutionEnded, resolveDelete(rec("a", at(-time.Hour), end(time.Hour)), now))
	assert.Equal(t, ResolutionUnchanged, resolveDelete(rec("a", at(-time.Hour), end(0)), now))
}

func TestIsValidAt_Boundaries(t *testing.T) {
	r := rec("a", now, end(time.Hour))

	assert.False(t, IsValidAt(r, at(-time.Nanosecond)))
	assert.True(t, IsValidAt(r, now), "start is inclusive")
	assert.True(t, IsValidAt(r, at(time.Hour-time.Nanosecond)))
	assert.False(t, IsValidAt(r, at(time.Hour)), "end is exclusive")

	open := rec("b", now, nil)
	assert.True(t, IsValidAt(open, at(100*365*24*time.Hour)))
}

func TestIsValidAt_Pure(t *testing.T) {
	r := rec("a", now, end(time.Hour))
	before := r.Clone()

	first := IsValidAt(r, at(time.Minute))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, IsValidAt(r, at(time.Minute)))
	}
	assert.Equal(t, before, r)
}

func TestPartition_NoOverlapNoOmission(t *testing.T) {
	records := []ir.Record{
		rec("past", at(-48*time.Hour), end(-24*time.Hour)),
		rec("current", at(-24*time.Hour), end(time.Hour)),
		rec("next", at(time.Hour), nil),
	}

	for _, probe := range []time.Time{at(-72 * time.Hour), at(-24 * time.Hour), now, at(time.Hour), at(48 * time.Hour)} {
		valid, invalid := Partition(records, probe)
		assert.Len(t, append(ids(valid), ids(invalid)...), len(records))
		for _, v := range valid {
			assert.NotContains(t, ids(invalid), v.ID)
		}
	}

	valid, invalid := Partition(records, now)
	assert.Equal(t, []string{"current"}, ids(valid))
	assert.Equal(t, []string{"past", "next"}, ids(invalid))
}

func TestSortTimeline(t *testing.T) {
	records := []ir.Record{
		rec("c", at(time.Hour), nil),
		rec("b", now, nil),
		rec("a", now, nil),
	}
	SortTimeline(records)
	assert.Equal(t, []string{"a", "b", "c"}, ids(records))
}

func TestLifecycleErrorHelpers(t *testing.T) {
	err := NewInvalidDateRangeError(group, "", "bad")
	wrapped := errorsWrap(err)

	assert.True(t, IsInvalidDateRange(wrapped))
	assert.False(t, IsUpdateNotAllowed(wrapped))
	assert.True(t, IsLifecycleError(wrapped))
	assert.Contains(t, err.Error(), "INVALID_DATE_RANGE")
	assert.Contains(t, err.Error(), "group=price/product-1")

	denied := NewUpdateNotAllowedError(rec("a", now, nil), "nope", []string{"valid_start"})
	assert.True(t, IsUpdateNotAllowed(denied))
	assert.Contains(t, denied.Error(), "record=a")
	assert.Equal(t, "[valid_start]", denied.Details["fields"])

	assert.False(t, IsLifecycleError(ErrNotFound))
}

func ids(records []ir.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func errorsWrap(err error) error {
	return fmt.Errorf("create: %w", err)
}
