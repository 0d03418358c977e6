package temporal

import (
	"fmt"
	"time"

	"github.com/roach88/temporal/internal/ir"
)

// restrictionVerdict is the outcome of the update allow-list.
type restrictionVerdict struct {
	Allowed bool
	Reason  string
}

// checkRestrictedUpdate applies the post-creation allow-list to a record
// without UpdatesEnabled. The only permitted change is moving ValidEnd,
// and only when:
//
//	(a) the previous ValidEnd is absent or still in the future,
//	(b) valid_end is the only field in the change set,
//	(c) the new ValidEnd is absent or no earlier than now minus tolerance.
func checkRestrictedUpdate(prev ir.Record, changes ir.Changes, now time.Time, tolerance time.Duration) restrictionVerdict {
	if _, ok := changes[ir.FieldUpdatesEnabled]; ok {
		return restrictionVerdict{Reason: "updates_enabled is only changed through the unrestricted-updates toggle"}
	}
	if prev.UpdatesEnabled {
		return restrictionVerdict{Allowed: true}
	}

	if !changes.Only(ir.FieldValidEnd) {
		return restrictionVerdict{Reason: fmt.Sprintf("only %s may change after creation", ir.FieldValidEnd)}
	}

	if prevEnd, ok := prev.EndOrInfinity(); ok && !prevEnd.After(now) {
		return restrictionVerdict{Reason: fmt.Sprintf("record already ended at %s", formatTime(prevEnd))}
	}

	newEnd, err := ir.EndValue(changes[ir.FieldValidEnd])
	if err != nil {
		return restrictionVerdict{Reason: err.Error()}
	}
	if newEnd != nil {
		earliest := now.Add(-tolerance)
		if newEnd.Before(earliest) {
			return restrictionVerdict{Reason: fmt.Sprintf("new valid_end %s is before %s", formatTime(*newEnd), formatTime(earliest))}
		}
	}

	return restrictionVerdict{Allowed: true}
}
