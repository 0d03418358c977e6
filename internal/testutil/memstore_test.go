package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/temporal/internal/ir"
	"github.com/roach88/temporal/internal/temporal"
)

var priceGroup = ir.GroupKey{Model: "price", ParentID: "product-1"}

func TestMemoryStore_InsertAssignsIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, err := s.Insert(ctx, ir.Record{ID: "ignored", Group: priceGroup, ValidStart: epoch})
	require.NoError(t, err)
	b, err := s.Insert(ctx, ir.Record{Group: priceGroup, ValidStart: epoch.Add(time.Hour)})
	require.NoError(t, err)

	assert.Equal(t, "rec-0001", a.ID)
	assert.Equal(t, "rec-0002", b.ID)

	got, ok, err := s.FindByID(ctx, "rec-0002")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, epoch.Add(time.Hour), got.ValidStart)
}

func TestMemoryStore_FindSiblingsFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	other := ir.GroupKey{Model: "price", ParentID: "product-2"}

	s.Put(ir.Record{ID: "b", Group: priceGroup, ValidStart: epoch.Add(time.Hour)})
	s.Put(ir.Record{ID: "a", Group: priceGroup, ValidStart: epoch})
	s.Put(ir.Record{ID: "c", Group: other, ValidStart: epoch})

	siblings, err := s.FindSiblings(ctx, priceGroup)
	require.NoError(t, err)
	require.Len(t, siblings, 2)
	assert.Equal(t, "a", siblings[0].ID)
	assert.Equal(t, "b", siblings[1].ID)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	end := epoch.Add(time.Hour)
	s.Put(ir.Record{ID: "a", Group: priceGroup, ValidStart: epoch, ValidEnd: &end})

	got, _, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	*got.ValidEnd = epoch.Add(99 * time.Hour)

	again, _, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, end, *again.ValidEnd)
}

func TestMemoryStore_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Put(ir.Record{ID: "a", Group: priceGroup, ValidStart: epoch})

	require.NoError(t, s.UpdateField(ctx, "a", ir.FieldValidEnd, ir.TimePtr(epoch.Add(time.Hour))))
	got, _, _ := s.FindByID(ctx, "a")
	require.NotNil(t, got.ValidEnd)
	assert.Equal(t, epoch.Add(time.Hour), *got.ValidEnd)

	require.NoError(t, s.UpdateFields(ctx, "a", ir.Changes{ir.FieldValidEnd: nil}))
	got, _, _ = s.FindByID(ctx, "a")
	assert.Nil(t, got.ValidEnd)

	require.NoError(t, s.Delete(ctx, "a"))
	_, ok, err := s.FindByID(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	err = s.Delete(ctx, "a")
	assert.ErrorIs(t, err, temporal.ErrNotFound)
}

func TestMemoryStore_RunAtomicallyRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Put(ir.Record{ID: "a", Group: priceGroup, ValidStart: epoch})
	boom := errors.New("boom")

	err := s.RunAtomically(ctx, func(tx temporal.Store) error {
		require.NoError(t, tx.Delete(ctx, "a"))
		_, err := tx.Insert(ctx, ir.Record{Group: priceGroup, ValidStart: epoch})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	records := s.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].ID)
}

func TestMemoryStore_RunAtomicallyNestedJoins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")

	err := s.RunAtomically(ctx, func(tx temporal.Store) error {
		inner := tx.RunAtomically(ctx, func(tx temporal.Store) error {
			_, err := tx.Insert(ctx, ir.Record{Group: priceGroup, ValidStart: epoch})
			return err
		})
		require.NoError(t, inner)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.Records())
}

func TestMemoryStore_FailNext(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("disk full")

	s.FailNext("Insert", boom)
	_, err := s.Insert(ctx, ir.Record{Group: priceGroup, ValidStart: epoch})
	assert.ErrorIs(t, err, boom)

	// Only the next call fails.
	_, err = s.Insert(ctx, ir.Record{Group: priceGroup, ValidStart: epoch})
	assert.NoError(t, err)
}
