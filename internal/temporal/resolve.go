package temporal

import (
	"time"

	"github.com/roach88/temporal/internal/ir"
)

// Resolution is the outcome of a delete request.
type Resolution string

const (
	// ResolutionRemoved means the record never became valid and was removed.
	ResolutionRemoved Resolution = "removed"

	// ResolutionEnded means the record was valid and now ends at the
	// request instant.
	ResolutionEnded Resolution = "ended"

	// ResolutionUnchanged means the record had already ended; its history
	// is kept as is.
	ResolutionUnchanged Resolution = "unchanged"
)

// resolveDelete decides what a delete request does to rec at now.
func resolveDelete(rec ir.Record, now time.Time) Resolution {
	if rec.ValidStart.After(now) {
		return ResolutionRemoved
	}
	if IsValidAt(rec, now) {
		return ResolutionEnded
	}
	return ResolutionUnchanged
}
