package temporal

import (
	"fmt"
	"time"

	"github.com/roach88/temporal/internal/ir"
)

// DefaultTolerance absorbs clock and processing skew between a request
// being submitted and being persisted.
const DefaultTolerance = 5 * time.Second

// checkStartNotPast rejects a start earlier than now minus tolerance.
func checkStartNotPast(rec ir.Record, now time.Time, tolerance time.Duration) error {
	earliest := now.Add(-tolerance)
	if rec.ValidStart.Before(earliest) {
		return NewInvalidDateRangeError(rec.Group, rec.ID,
			fmt.Sprintf("valid_start %s is before %s (now minus %s tolerance)",
				formatTime(rec.ValidStart), formatTime(earliest), tolerance))
	}
	return nil
}

// checkOrdering rejects a set end that is not strictly after the start.
func checkOrdering(rec ir.Record) error {
	end, ok := rec.EndOrInfinity()
	if ok && !end.After(rec.ValidStart) {
		return NewInvalidDateRangeError(rec.Group, rec.ID,
			fmt.Sprintf("valid_end %s must be after valid_start %s",
				formatTime(end), formatTime(rec.ValidStart)))
	}
	return nil
}

// validateCandidate applies both create-time checks.
func validateCandidate(rec ir.Record, now time.Time, tolerance time.Duration) error {
	if err := checkStartNotPast(rec, now, tolerance); err != nil {
		return err
	}
	return checkOrdering(rec)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
