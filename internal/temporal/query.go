package temporal

import (
	"slices"
	"strings"
	"time"

	"github.com/roach88/temporal/internal/ir"
)

// IsValidAt reports whether rec's interval contains at:
// ValidStart <= at AND (ValidEnd is nil OR ValidEnd > at).
func IsValidAt(rec ir.Record, at time.Time) bool {
	if rec.ValidStart.After(at) {
		return false
	}
	end, ok := rec.EndOrInfinity()
	return !ok || end.After(at)
}

// Partition splits records into those valid at at and the rest. Every
// record lands in exactly one side; input order is preserved.
func Partition(records []ir.Record, at time.Time) (valid, invalid []ir.Record) {
	for _, r := range records {
		if IsValidAt(r, at) {
			valid = append(valid, r)
		} else {
			invalid = append(invalid, r)
		}
	}
	return valid, invalid
}

// SortTimeline orders records by ValidStart, then ID.
func SortTimeline(records []ir.Record) {
	slices.SortFunc(records, func(a, b ir.Record) int {
		if c := a.ValidStart.Compare(b.ValidStart); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
