package temporal

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/temporal/internal/ir"
)

// ErrNotFound is returned when a record id does not exist in the store.
var ErrNotFound = errors.New("record not found")

// Store is the persistence port the manager drives.
//
// Implementations must return siblings in a deterministic order and must
// make RunAtomically all-or-nothing: if fn returns an error every write
// made through tx is discarded.
type Store interface {
	// FindSiblings returns every record of the group.
	FindSiblings(ctx context.Context, key ir.GroupKey) ([]ir.Record, error)

	// FindByID returns the record and whether it exists.
	FindByID(ctx context.Context, id string) (ir.Record, bool, error)

	// Insert persists rec, assigning its ID.
	Insert(ctx context.Context, rec ir.Record) (ir.Record, error)

	// UpdateField sets a single field. See ir.Changes for value types.
	UpdateField(ctx context.Context, id, field string, value any) error

	// UpdateFields sets several fields at once.
	UpdateFields(ctx context.Context, id string, changes ir.Changes) error

	// Delete removes the record permanently.
	Delete(ctx context.Context, id string) error

	// RunAtomically runs fn as one all-or-nothing unit. Calling it on a tx
	// handed to fn joins the outer unit.
	RunAtomically(ctx context.Context, fn func(tx Store) error) error
}

// Clock supplies the reference instant for validity checks.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ModelRegistry supplies per-model policy. compiler.Registry implements it.
type ModelRegistry interface {
	// Tolerance returns the model's tolerance override, if any.
	Tolerance(model string) (time.Duration, bool)

	// ValidateRecord checks a record's group and payload against its model.
	ValidateRecord(rec ir.Record) error
}

// ValidityFinder is implemented by stores that can evaluate validity in
// their query backend. Manager.ValidAt and InvalidAt use it when present and
// otherwise partition History in memory; both paths return timeline order.
type ValidityFinder interface {
	FindValidAt(ctx context.Context, key ir.GroupKey, at time.Time) ([]ir.Record, error)
	FindInvalidAt(ctx context.Context, key ir.GroupKey, at time.Time) ([]ir.Record, error)
}
