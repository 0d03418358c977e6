package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/temporal/internal/ir"
	"github.com/roach88/temporal/internal/temporal"
)

func TestInsertAndFind(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	end := t0.Add(time.Hour)

	in := ir.Record{
		Group:      ir.GroupKey{Model: "price", ParentID: "product-1", ParentType: "bundle"},
		ValidStart: t0,
		ValidEnd:   &end,
		Payload: ir.Object{
			"cents":    ir.Int(1999),
			"currency": ir.String("EUR"),
			"tags":     ir.Array{ir.String("sale")},
		},
	}
	rec, err := s.Insert(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "rec-0001", rec.ID)

	got, ok, err := s.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)

	_, ok, err = s.FindByID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPayloadStoredCanonical(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.Insert(ctx, ir.Record{Group: price, ValidStart: t0, Payload: ir.Object{"b": ir.Int(1), "a": ir.Bool(true)}})
	require.NoError(t, err)

	var payload string
	require.NoError(t, s.db.QueryRow("SELECT payload FROM temporal_records").Scan(&payload))
	assert.Equal(t, `{"a":true,"b":1}`, payload)
}

func TestFindSiblings_TimelineOrder(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	for _, start := range []time.Time{t0.Add(2 * time.Hour), t0, t0.Add(time.Hour)} {
		_, err := s.Insert(ctx, ir.Record{Group: price, ValidStart: start})
		require.NoError(t, err)
	}
	_, err := s.Insert(ctx, ir.Record{Group: ir.GroupKey{Model: "price", ParentID: "product-2"}, ValidStart: t0})
	require.NoError(t, err)

	siblings, err := s.FindSiblings(ctx, price)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-0002", "rec-0003", "rec-0001"}, ids(siblings))

	empty, err := s.FindSiblings(ctx, ir.GroupKey{Model: "price", ParentID: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestUpdateFields(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec, err := s.Insert(ctx, ir.Record{Group: price, ValidStart: t0, Payload: ir.Object{"cents": ir.Int(1)}})
	require.NoError(t, err)

	require.NoError(t, s.UpdateField(ctx, rec.ID, ir.FieldValidEnd, ir.TimePtr(t0.Add(time.Hour))))
	require.NoError(t, s.UpdateField(ctx, rec.ID, ir.FieldUpdatesEnabled, true))
	require.NoError(t, s.UpdateFields(ctx, rec.ID, ir.Changes{ir.PayloadField("cents"): ir.Int(2)}))

	got, _, err := s.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ValidEnd)
	assert.Equal(t, t0.Add(time.Hour), *got.ValidEnd)
	assert.True(t, got.UpdatesEnabled)
	assert.Equal(t, ir.Int(2), got.Payload["cents"])

	require.NoError(t, s.UpdateField(ctx, rec.ID, ir.FieldValidEnd, nil))
	got, _, _ = s.FindByID(ctx, rec.ID)
	assert.Nil(t, got.ValidEnd)

	err = s.UpdateField(ctx, "missing", ir.FieldValidEnd, nil)
	assert.ErrorIs(t, err, temporal.ErrNotFound)

	err = s.UpdateField(ctx, rec.ID, "colour", "red")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	rec, err := s.Insert(ctx, ir.Record{Group: price, ValidStart: t0})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, rec.ID))
	_, ok, err := s.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.Delete(ctx, rec.ID), temporal.ErrNotFound)
}

func TestRunAtomically_RollsBack(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	keep, err := s.Insert(ctx, ir.Record{Group: price, ValidStart: t0})
	require.NoError(t, err)
	boom := errors.New("boom")

	err = s.RunAtomically(ctx, func(tx temporal.Store) error {
		if err := tx.Delete(ctx, keep.ID); err != nil {
			return err
		}
		if _, err := tx.Insert(ctx, ir.Record{Group: price, ValidStart: t0}); err != nil {
			return err
		}
		// Nested units join the outer transaction.
		return tx.RunAtomically(ctx, func(tx temporal.Store) error {
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	siblings, err := s.FindSiblings(ctx, price)
	require.NoError(t, err)
	assert.Equal(t, []string{keep.ID}, ids(siblings))
}

func TestRunAtomically_LifecycleErrorNotRetried(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	calls := 0
	err := s.RunAtomically(ctx, func(tx temporal.Store) error {
		calls++
		return temporal.NewInvalidDateRangeError(price, "", "bad")
	})
	assert.True(t, temporal.IsInvalidDateRange(err))
	assert.Equal(t, 1, calls)
}

func TestRunAtomically_RetriesBusy(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	calls := 0
	err := s.RunAtomically(ctx, func(tx temporal.Store) error {
		calls++
		if calls < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		_, err := tx.Insert(ctx, ir.Record{Group: price, ValidStart: t0})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	siblings, err := s.FindSiblings(ctx, price)
	require.NoError(t, err)
	assert.Len(t, siblings, 1)
}

func TestRunAtomically_RetryBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/busy.db"
	s, err := Open(path, WithRetryBudget(0))
	require.NoError(t, err)
	defer s.Close()

	calls := 0
	err = s.RunAtomically(ctx, func(tx temporal.Store) error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrLocked}
	})
	require.Error(t, err)
	assert.True(t, isBusy(err))
	assert.Equal(t, 1, calls)
}

func TestFindValidity_MatchesPartition(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	seed := []ir.Record{
		{Group: price, ValidStart: t0, ValidEnd: ir.TimePtr(t0.Add(time.Hour))},
		{Group: price, ValidStart: t0.Add(time.Hour), ValidEnd: ir.TimePtr(t0.Add(time.Hour))},
		{Group: price, ValidStart: t0.Add(time.Hour)},
		{Group: price, ValidStart: t0.Add(3 * time.Hour), ValidEnd: ir.TimePtr(t0.Add(4 * time.Hour))},
	}
	for _, r := range seed {
		_, err := s.Insert(ctx, r)
		require.NoError(t, err)
	}
	all, err := s.FindSiblings(ctx, price)
	require.NoError(t, err)

	probes := []time.Time{
		t0.Add(-time.Nanosecond), t0, t0.Add(time.Hour - time.Nanosecond), t0.Add(time.Hour),
		t0.Add(3 * time.Hour), t0.Add(4 * time.Hour), t0.Add(24 * time.Hour),
	}
	for _, at := range probes {
		wantValid, wantInvalid := temporal.Partition(all, at)

		valid, err := s.FindValidAt(ctx, price, at)
		require.NoError(t, err)
		invalid, err := s.FindInvalidAt(ctx, price, at)
		require.NoError(t, err)

		assert.Equal(t, ids(wantValid), ids(valid), "valid at %s", at)
		assert.Equal(t, ids(wantInvalid), ids(invalid), "invalid at %s", at)
	}
}
