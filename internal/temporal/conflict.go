package temporal

import (
	"time"

	"github.com/roach88/temporal/internal/ir"
)

// conflictingSiblings returns the siblings a candidate supersedes, computed
// against the group state before the candidate is inserted.
//
// Open-ended candidate: every sibling scheduled strictly after now.
// Closed candidate: every sibling whose interval intersects
// [cand.ValidStart, cand.ValidEnd).
func conflictingSiblings(cand ir.Record, siblings []ir.Record, now time.Time) []ir.Record {
	var out []ir.Record
	candEnd, closed := cand.EndOrInfinity()
	for _, s := range siblings {
		if s.ID == cand.ID && cand.ID != "" {
			continue
		}
		if !closed {
			if s.ValidStart.After(now) {
				out = append(out, s)
			}
			continue
		}
		if overlaps(s, cand.ValidStart, candEnd) {
			out = append(out, s)
		}
	}
	return out
}

// overlaps reports whether s intersects [start, end).
func overlaps(s ir.Record, start, end time.Time) bool {
	if !s.ValidStart.Before(end) {
		return false
	}
	sEnd, ok := s.EndOrInfinity()
	return !ok || sEnd.After(start)
}

// currentSibling returns the sibling valid at now, if any. A group holds
// at most one; the earliest-starting wins if an unserialised writer left
// more than one behind.
func currentSibling(siblings []ir.Record, now time.Time) (ir.Record, bool) {
	for _, s := range siblings {
		if IsValidAt(s, now) {
			return s, true
		}
	}
	return ir.Record{}, false
}

// without returns records minus the one with the given id.
func without(records []ir.Record, id string) []ir.Record {
	out := records[:0:0]
	for _, r := range records {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

// shouldClose reports whether current must be ended at cand's start.
func shouldClose(current, cand ir.Record) bool {
	end, ok := current.EndOrInfinity()
	return !ok || end.After(cand.ValidStart)
}
