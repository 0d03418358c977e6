package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/temporal/internal/ir"
	"github.com/roach88/temporal/internal/temporal"
)

// idGenerator matches store.IDGenerator without importing the store.
type idGenerator interface {
	Generate() string
}

// MemoryStore is an in-memory temporal.Store for tests.
//
// RunAtomically holds the store mutex for the whole unit and restores a
// snapshot when fn fails, so it has the same all-or-nothing contract as the
// SQLite store. Records are copied on the way in and out; callers never
// share ValidEnd pointers or payload maps with the store.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]ir.Record
	ids      idGenerator
	failures map[string]error
}

var _ temporal.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store with sequential "rec-NNNN" ids.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithIDs(NewSequentialIDs(""))
}

// NewMemoryStoreWithIDs creates an empty store using ids for Insert.
func NewMemoryStoreWithIDs(ids idGenerator) *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]ir.Record),
		ids:      ids,
		failures: make(map[string]error),
	}
}

// Put stores rec as is, bypassing every lifecycle rule. Tests use it to
// seed history that could not be created at the clock's current instant.
func (s *MemoryStore) Put(rec ir.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Clone()
}

// Records returns every stored record ordered by group, start, then id.
func (s *MemoryStore) Records() []ir.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ir.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	slices.SortFunc(out, func(a, b ir.Record) int {
		if c := strings.Compare(a.Group.String(), b.Group.String()); c != 0 {
			return c
		}
		if c := a.ValidStart.Compare(b.ValidStart); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// FailNext makes the next call of op ("Insert", "UpdateField",
// "UpdateFields", "Delete", "FindSiblings", "FindByID") return err.
func (s *MemoryStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *MemoryStore) FindSiblings(ctx context.Context, key ir.GroupKey) ([]ir.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s}).FindSiblings(ctx, key)
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (ir.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s}).FindByID(ctx, id)
}

func (s *MemoryStore) Insert(ctx context.Context, rec ir.Record) (ir.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s}).Insert(ctx, rec)
}

func (s *MemoryStore) UpdateField(ctx context.Context, id, field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s}).UpdateField(ctx, id, field, value)
}

func (s *MemoryStore) UpdateFields(ctx context.Context, id string, changes ir.Changes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s}).UpdateFields(ctx, id, changes)
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s}).Delete(ctx, id)
}

// RunAtomically runs fn under the store mutex, restoring the pre-unit
// snapshot if fn returns an error or panics.
func (s *MemoryStore) RunAtomically(ctx context.Context, fn func(tx temporal.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]ir.Record, len(s.records))
	for id, r := range s.records {
		snapshot[id] = r
	}
	committed := false
	defer func() {
		if !committed {
			s.records = snapshot
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(&memTx{s}); err != nil {
		return err
	}
	committed = true
	return nil
}

// memTx operates on a MemoryStore whose mutex is already held.
type memTx struct {
	s *MemoryStore
}

func (t *memTx) injected(op string) error {
	if err, ok := t.s.failures[op]; ok {
		delete(t.s.failures, op)
		return err
	}
	return nil
}

func (t *memTx) FindSiblings(_ context.Context, key ir.GroupKey) ([]ir.Record, error) {
	if err := t.injected("FindSiblings"); err != nil {
		return nil, err
	}
	var out []ir.Record
	for _, r := range t.s.records {
		if r.Group == key {
			out = append(out, r.Clone())
		}
	}
	temporal.SortTimeline(out)
	return out, nil
}

func (t *memTx) FindByID(_ context.Context, id string) (ir.Record, bool, error) {
	if err := t.injected("FindByID"); err != nil {
		return ir.Record{}, false, err
	}
	r, ok := t.s.records[id]
	if !ok {
		return ir.Record{}, false, nil
	}
	return r.Clone(), true, nil
}

func (t *memTx) Insert(_ context.Context, rec ir.Record) (ir.Record, error) {
	if err := t.injected("Insert"); err != nil {
		return ir.Record{}, err
	}
	out := rec.Clone()
	out.ID = t.s.ids.Generate()
	if _, exists := t.s.records[out.ID]; exists {
		return ir.Record{}, fmt.Errorf("insert: duplicate id %s", out.ID)
	}
	t.s.records[out.ID] = out
	return out.Clone(), nil
}

func (t *memTx) UpdateField(_ context.Context, id, field string, value any) error {
	if err := t.injected("UpdateField"); err != nil {
		return err
	}
	return t.apply(id, ir.Changes{field: value})
}

func (t *memTx) UpdateFields(_ context.Context, id string, changes ir.Changes) error {
	if err := t.injected("UpdateFields"); err != nil {
		return err
	}
	return t.apply(id, changes)
}

func (t *memTx) apply(id string, changes ir.Changes) error {
	r, ok := t.s.records[id]
	if !ok {
		return fmt.Errorf("update: %w: %s", temporal.ErrNotFound, id)
	}
	next, err := r.Apply(changes)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	t.s.records[id] = next
	return nil
}

func (t *memTx) Delete(_ context.Context, id string) error {
	if err := t.injected("Delete"); err != nil {
		return err
	}
	if _, ok := t.s.records[id]; !ok {
		return fmt.Errorf("delete: %w: %s", temporal.ErrNotFound, id)
	}
	delete(t.s.records, id)
	return nil
}

// RunAtomically joins the enclosing unit.
func (t *memTx) RunAtomically(_ context.Context, fn func(tx temporal.Store) error) error {
	return fn(t)
}
