package temporal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/temporal/internal/ir"
	"github.com/roach88/temporal/internal/telemetry"
)

// Manager applies the lifecycle rules on top of a Store.
//
// Thread-safety: Manager holds no mutable state and is safe for concurrent
// use. Concurrent writes to the same group must still be serialised by the
// store (see package documentation).
type Manager struct {
	store     Store
	clock     Clock
	tolerance time.Duration
	models    ModelRegistry
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *telemetry.Instruments
}

// Option configures a Manager.
type Option func(*Manager)

// WithTolerance overrides DefaultTolerance.
func WithTolerance(d time.Duration) Option {
	return func(m *Manager) { m.tolerance = d }
}

// WithModels installs per-model tolerance overrides and payload validation.
func WithModels(models ModelRegistry) Option {
	return func(m *Manager) { m.models = models }
}

// WithLogger sets the logger for cascade diagnostics. Defaults to a
// discarding logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithInstruments records lifecycle counters on ins.
func WithInstruments(ins *telemetry.Instruments) Option {
	return func(m *Manager) { m.metrics = ins }
}

// New creates a Manager over store, reading time from clock.
func New(store Store, clock Clock, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		clock:     clock,
		tolerance: DefaultTolerance,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:    telemetry.Tracer(""),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.metrics == nil {
		if ins, err := telemetry.NewInstruments(telemetry.Meter("")); err == nil {
			m.metrics = ins
		} else {
			m.metrics = &telemetry.Instruments{}
		}
	}
	return m
}

// Now returns the manager's reference instant.
func (m *Manager) Now() time.Time {
	return m.clock.Now().UTC()
}

// Tolerance returns the tolerance window that applies to model.
func (m *Manager) Tolerance(model string) time.Duration {
	if m.models != nil {
		if d, ok := m.models.Tolerance(model); ok {
			return d
		}
	}
	return m.tolerance
}

// createOutcome counts the cascade of one Create for metrics, which are
// only recorded once the atomic unit has committed.
type createOutcome struct {
	superseded int
	closed     int
}

// Create validates candidate, resolves conflicts with its siblings and
// persists it, all in one atomic unit. The returned record carries the
// store-assigned ID. Any ID on candidate is ignored.
//
// Errors: *LifecycleError with ErrCodeInvalidDateRange for a bad interval;
// store errors are returned wrapped and leave the group untouched.
func (m *Manager) Create(ctx context.Context, candidate ir.Record) (ir.Record, error) {
	ctx, span := m.startSpan(ctx, "temporal.Create", candidate.Group, "")
	defer span.End()

	cand := candidate.Clone()
	cand.ID = ""
	if err := cand.Group.Validate(); err != nil {
		return ir.Record{}, m.fail(ctx, span, cand.Group, fmt.Errorf("create: %w", err))
	}

	now := m.Now()
	if err := validateCandidate(cand, now, m.Tolerance(cand.Group.Model)); err != nil {
		return ir.Record{}, m.fail(ctx, span, cand.Group, err)
	}
	if m.models != nil {
		if err := m.models.ValidateRecord(cand); err != nil {
			return ir.Record{}, m.fail(ctx, span, cand.Group, fmt.Errorf("create: %w", err))
		}
	}

	var (
		created ir.Record
		outcome createOutcome
	)
	err := m.store.RunAtomically(ctx, func(tx Store) error {
		outcome = createOutcome{}

		siblings, err := tx.FindSiblings(ctx, cand.Group)
		if err != nil {
			return fmt.Errorf("create: find siblings: %w", err)
		}
		SortTimeline(siblings)

		// Both sets come from the pre-insert state. The current sibling is
		// closed rather than superseded, so it never joins the conflicts.
		current, hasCurrent := currentSibling(siblings, now)
		closing := hasCurrent && shouldClose(current, cand)
		conflicts := conflictingSiblings(cand, siblings, now)
		if closing {
			conflicts = without(conflicts, current.ID)
			if err := m.closeCurrent(ctx, tx, current, cand); err != nil {
				return err
			}
			outcome.closed++
		}

		for _, c := range conflicts {
			res, err := m.deleteIn(ctx, tx, c, now)
			if err != nil {
				return fmt.Errorf("create: supersede %s: %w", c.ID, err)
			}
			if res == ResolutionRemoved {
				outcome.superseded++
			}
		}

		created, err = tx.Insert(ctx, cand)
		if err != nil {
			return fmt.Errorf("create: insert: %w", err)
		}
		return nil
	})
	if err != nil {
		return ir.Record{}, m.fail(ctx, span, cand.Group, err)
	}

	model := cand.Group.Model
	telemetry.Add(ctx, m.metrics.Created, 1, model)
	telemetry.Add(ctx, m.metrics.Superseded, outcome.superseded, model)
	telemetry.Add(ctx, m.metrics.Closed, outcome.closed, model)
	span.SetAttributes(attribute.String("temporal.record_id", created.ID))

	m.logger.DebugContext(ctx, "record created",
		"record_id", created.ID,
		"group", created.Group.String(),
		"valid_start", formatTime(created.ValidStart),
		"superseded", outcome.superseded,
		"closed", outcome.closed,
	)
	return created, nil
}

// closeCurrent ends the sibling that was valid before the create at the
// candidate's start.
func (m *Manager) closeCurrent(ctx context.Context, tx Store, current, cand ir.Record) error {
	if !cand.ValidStart.After(current.ValidStart) {
		return NewInvalidDateRangeError(cand.Group, "",
			fmt.Sprintf("valid_start %s does not follow current record %s starting %s",
				formatTime(cand.ValidStart), current.ID, formatTime(current.ValidStart)))
	}
	if err := tx.UpdateField(ctx, current.ID, ir.FieldValidEnd, ir.TimePtr(cand.ValidStart)); err != nil {
		return fmt.Errorf("create: close current %s: %w", current.ID, err)
	}
	m.logger.DebugContext(ctx, "closed current record",
		"record_id", current.ID,
		"group", current.Group.String(),
		"valid_end", formatTime(cand.ValidStart),
	)
	return nil
}

// RequestUpdate applies changes to the record with the given id if the
// mutation-restriction rules allow it. The updated record is returned.
//
// A refused update returns *LifecycleError with ErrCodeUpdateNotAllowed
// and persists nothing; use IsUpdateNotAllowed to branch on it, or
// CanUpdate to ask without an error.
func (m *Manager) RequestUpdate(ctx context.Context, id string, changes ir.Changes) (ir.Record, error) {
	ctx, span := m.startSpan(ctx, "temporal.RequestUpdate", ir.GroupKey{}, id)
	defer span.End()

	var updated, prev ir.Record
	err := m.store.RunAtomically(ctx, func(tx Store) error {
		var (
			next ir.Record
			err  error
		)
		prev, next, err = m.planUpdate(ctx, tx, id, changes)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			updated = prev
			return nil
		}
		if err := tx.UpdateFields(ctx, id, normalizeChanges(changes)); err != nil {
			return fmt.Errorf("update %s: %w", id, err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return ir.Record{}, m.fail(ctx, span, prev.Group, err)
	}

	m.logger.DebugContext(ctx, "record updated",
		"record_id", id,
		"group", updated.Group.String(),
		"fields", changes.Fields(),
	)
	return updated, nil
}

// CanUpdate reports whether RequestUpdate would accept changes, without
// writing anything. The error is non-nil only for store failures, unknown
// ids and malformed change values.
func (m *Manager) CanUpdate(ctx context.Context, id string, changes ir.Changes) (bool, error) {
	_, _, err := m.planUpdate(ctx, m.store, id, changes)
	if IsLifecycleError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// planUpdate loads the record and evaluates the update rules, returning
// the record before and after the change.
func (m *Manager) planUpdate(ctx context.Context, st Store, id string, changes ir.Changes) (ir.Record, ir.Record, error) {
	prev, err := m.load(ctx, st, id)
	if err != nil {
		return ir.Record{}, ir.Record{}, fmt.Errorf("update: %w", err)
	}
	if len(changes) == 0 {
		return prev, prev, nil
	}

	now := m.Now()
	verdict := checkRestrictedUpdate(prev, changes, now, m.Tolerance(prev.Group.Model))
	if !verdict.Allowed {
		return prev, ir.Record{}, NewUpdateNotAllowedError(prev, verdict.Reason, changes.Fields())
	}

	next, err := prev.Apply(changes)
	if err != nil {
		return prev, ir.Record{}, fmt.Errorf("update %s: %w", id, err)
	}
	if err := checkOrdering(next); err != nil {
		return prev, ir.Record{}, err
	}
	if m.models != nil {
		if err := m.models.ValidateRecord(next); err != nil {
			return prev, ir.Record{}, fmt.Errorf("update %s: %w", id, err)
		}
	}
	return prev, next, nil
}

// RequestDelete resolves a delete request for the record with the given
// id: a record that has not started is removed, a valid record is ended
// at now, and an already-ended record is left as it is.
func (m *Manager) RequestDelete(ctx context.Context, id string) (Resolution, error) {
	ctx, span := m.startSpan(ctx, "temporal.RequestDelete", ir.GroupKey{}, id)
	defer span.End()

	var (
		res   Resolution
		group ir.GroupKey
	)
	now := m.Now()
	err := m.store.RunAtomically(ctx, func(tx Store) error {
		rec, err := m.load(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		group = rec.Group
		res, err = m.deleteIn(ctx, tx, rec, now)
		return err
	})
	if err != nil {
		return "", m.fail(ctx, span, group, err)
	}

	switch res {
	case ResolutionRemoved:
		telemetry.Add(ctx, m.metrics.Deleted, 1, group.Model)
	case ResolutionEnded:
		telemetry.Add(ctx, m.metrics.SoftEnded, 1, group.Model)
	}
	span.SetAttributes(attribute.String("temporal.resolution", string(res)))
	return res, nil
}

// deleteIn is the delete path shared by RequestDelete and conflict
// removal. Soft ends bypass the update restriction.
func (m *Manager) deleteIn(ctx context.Context, tx Store, rec ir.Record, now time.Time) (Resolution, error) {
	res := resolveDelete(rec, now)
	switch res {
	case ResolutionRemoved:
		if err := tx.Delete(ctx, rec.ID); err != nil {
			return "", fmt.Errorf("remove %s: %w", rec.ID, err)
		}
	case ResolutionEnded:
		if err := tx.UpdateField(ctx, rec.ID, ir.FieldValidEnd, ir.TimePtr(now)); err != nil {
			return "", fmt.Errorf("end %s: %w", rec.ID, err)
		}
	}
	m.logger.DebugContext(ctx, "delete resolved",
		"record_id", rec.ID,
		"group", rec.Group.String(),
		"resolution", string(res),
	)
	return res, nil
}

// EnableUnrestrictedUpdates flags the record so later updates bypass the
// restriction rules. Only start/end ordering is checked for such records.
func (m *Manager) EnableUnrestrictedUpdates(ctx context.Context, id string) (ir.Record, error) {
	return m.setUpdatesEnabled(ctx, id, true)
}

// DisableUnrestrictedUpdates clears the flag set by EnableUnrestrictedUpdates.
func (m *Manager) DisableUnrestrictedUpdates(ctx context.Context, id string) (ir.Record, error) {
	return m.setUpdatesEnabled(ctx, id, false)
}

func (m *Manager) setUpdatesEnabled(ctx context.Context, id string, enabled bool) (ir.Record, error) {
	var rec ir.Record
	err := m.store.RunAtomically(ctx, func(tx Store) error {
		var err error
		rec, err = m.load(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("toggle updates: %w", err)
		}
		if rec.UpdatesEnabled == enabled {
			return nil
		}
		if err := tx.UpdateField(ctx, id, ir.FieldUpdatesEnabled, enabled); err != nil {
			return fmt.Errorf("toggle updates %s: %w", id, err)
		}
		rec.UpdatesEnabled = enabled
		return nil
	})
	if err != nil {
		return ir.Record{}, err
	}
	m.logger.DebugContext(ctx, "unrestricted updates toggled", "record_id", id, "enabled", enabled)
	return rec, nil
}

// Get returns the record with the given id.
func (m *Manager) Get(ctx context.Context, id string) (ir.Record, error) {
	return m.load(ctx, m.store, id)
}

// IsValid reports whether rec is valid now.
func (m *Manager) IsValid(rec ir.Record) bool {
	return IsValidAt(rec, m.Now())
}

// IsValidAt reports whether rec is valid at at.
func (m *Manager) IsValidAt(rec ir.Record, at time.Time) bool {
	return IsValidAt(rec, at)
}

// Valid returns the group's records valid now.
func (m *Manager) Valid(ctx context.Context, key ir.GroupKey) ([]ir.Record, error) {
	return m.ValidAt(ctx, key, m.Now())
}

// ValidAt returns the group's records valid at at, in timeline order.
func (m *Manager) ValidAt(ctx context.Context, key ir.GroupKey, at time.Time) ([]ir.Record, error) {
	if vf, ok := m.store.(ValidityFinder); ok {
		records, err := vf.FindValidAt(ctx, key, at)
		if err != nil {
			return nil, fmt.Errorf("valid %s: %w", key, err)
		}
		return records, nil
	}
	records, err := m.History(ctx, key)
	if err != nil {
		return nil, err
	}
	valid, _ := Partition(records, at)
	return valid, nil
}

// Invalid returns the group's records not valid now.
func (m *Manager) Invalid(ctx context.Context, key ir.GroupKey) ([]ir.Record, error) {
	return m.InvalidAt(ctx, key, m.Now())
}

// InvalidAt returns the group's records not valid at at, in timeline order.
func (m *Manager) InvalidAt(ctx context.Context, key ir.GroupKey, at time.Time) ([]ir.Record, error) {
	if vf, ok := m.store.(ValidityFinder); ok {
		records, err := vf.FindInvalidAt(ctx, key, at)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		return records, nil
	}
	records, err := m.History(ctx, key)
	if err != nil {
		return nil, err
	}
	_, invalid := Partition(records, at)
	return invalid, nil
}

// History returns every record of the group ordered by ValidStart.
func (m *Manager) History(ctx context.Context, key ir.GroupKey) ([]ir.Record, error) {
	records, err := m.store.FindSiblings(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", key, err)
	}
	SortTimeline(records)
	return records, nil
}

func (m *Manager) load(ctx context.Context, st Store, id string) (ir.Record, error) {
	rec, ok, err := st.FindByID(ctx, id)
	if err != nil {
		return ir.Record{}, fmt.Errorf("find %s: %w", id, err)
	}
	if !ok {
		return ir.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

// normalizeChanges converts valid_end values to *time.Time so stores see a
// single representation.
func normalizeChanges(changes ir.Changes) ir.Changes {
	out := make(ir.Changes, len(changes))
	for k, v := range changes {
		if k == ir.FieldValidEnd {
			end, err := ir.EndValue(v)
			if err == nil {
				out[k] = end
				continue
			}
		}
		if k == ir.FieldValidStart {
			if t, ok := v.(time.Time); ok {
				out[k] = t.UTC()
				continue
			}
		}
		out[k] = v
	}
	return out
}

func (m *Manager) startSpan(ctx context.Context, name string, group ir.GroupKey, id string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{}
	if group.Model != "" {
		attrs = append(attrs, attribute.String("temporal.group", group.String()))
	}
	if id != "" {
		attrs = append(attrs, attribute.String("temporal.record_id", id))
	}
	return m.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// fail records err on the span and, for lifecycle refusals, the rejected
// counter, then returns err unchanged.
func (m *Manager) fail(ctx context.Context, span trace.Span, group ir.GroupKey, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if IsLifecycleError(err) {
		telemetry.Add(ctx, m.metrics.Rejected, 1, group.Model)
		m.logger.DebugContext(ctx, "request rejected", "group", group.String(), "error", err)
	}
	return err
}
