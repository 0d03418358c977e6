package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/temporal/internal/ir"
	"github.com/roach88/temporal/internal/queryir"
	"github.com/roach88/temporal/internal/querysql"
	"github.com/roach88/temporal/internal/temporal"
)

var (
	_ temporal.Store          = (*Store)(nil)
	_ temporal.ValidityFinder = (*Store)(nil)
	_ temporal.Store          = (*txStore)(nil)
)

// execer is implemented by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txStore runs record operations on one execer. Store uses it over the
// pool; RunAtomically hands fn one bound to the open transaction.
type txStore struct {
	s *Store
	q execer
	// inTx is set when q is a transaction; nested RunAtomically calls join it.
	inTx bool
}

func (s *Store) direct() *txStore {
	return &txStore{s: s, q: s.db}
}

// FindSiblings returns every record of the group in timeline order.
func (s *Store) FindSiblings(ctx context.Context, key ir.GroupKey) ([]ir.Record, error) {
	return s.direct().FindSiblings(ctx, key)
}

// FindByID returns the record and whether it exists.
func (s *Store) FindByID(ctx context.Context, id string) (ir.Record, bool, error) {
	return s.direct().FindByID(ctx, id)
}

// Insert persists rec under a freshly generated id.
func (s *Store) Insert(ctx context.Context, rec ir.Record) (ir.Record, error) {
	return s.direct().Insert(ctx, rec)
}

// UpdateField sets a single field.
func (s *Store) UpdateField(ctx context.Context, id, field string, value any) error {
	return s.direct().UpdateField(ctx, id, field, value)
}

// UpdateFields applies changes to the record.
func (s *Store) UpdateFields(ctx context.Context, id string, changes ir.Changes) error {
	return s.direct().UpdateFields(ctx, id, changes)
}

// Delete removes the record permanently.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.direct().Delete(ctx, id)
}

// FindValidAt returns the group's records valid at at, filtered in SQL.
func (s *Store) FindValidAt(ctx context.Context, key ir.GroupKey, at time.Time) ([]ir.Record, error) {
	return s.direct().query(ctx, queryir.Where(key, queryir.ValidAt(at)))
}

// FindInvalidAt returns the group's records not valid at at, filtered in SQL.
func (s *Store) FindInvalidAt(ctx context.Context, key ir.GroupKey, at time.Time) ([]ir.Record, error) {
	return s.direct().query(ctx, queryir.Where(key, queryir.InvalidAt(at)))
}

// RunAtomically runs fn inside one IMMEDIATE transaction. If fn or the
// commit fails with SQLITE_BUSY/SQLITE_LOCKED the whole unit is retried
// with exponential backoff; fn must therefore be safe to run again.
// Every other error rolls back and is returned unchanged.
func (s *Store) RunAtomically(ctx context.Context, fn func(tx temporal.Store) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return backoff.Permanent(err)
		}
		s.logger.DebugContext(ctx, "atomic unit busy, will retry",
			slog.Int("attempt", attempt), slog.Any("error", err))
		return err
	}
	return backoff.Retry(op, backoff.WithContext(s.backoff(), ctx))
}

func (s *Store) runOnce(ctx context.Context, fn func(tx temporal.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&txStore{s: s, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// isBusy reports whether err is a lock conflict worth retrying.
func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// FindSiblings returns every record of the group in timeline order.
func (t *txStore) FindSiblings(ctx context.Context, key ir.GroupKey) ([]ir.Record, error) {
	return t.query(ctx, queryir.Where(key))
}

// FindByID returns the record and whether it exists.
func (t *txStore) FindByID(ctx context.Context, id string) (ir.Record, bool, error) {
	sqlText, params, err := t.s.compiler.Compile(queryir.Select{
		From:   queryir.RecordTable,
		Filter: queryir.Equals{Field: queryir.ColID, Value: ir.String(id)},
		Limit:  1,
	})
	if err != nil {
		return ir.Record{}, false, fmt.Errorf("find %s: %w", id, err)
	}

	rec, err := scanRecord(t.q.QueryRowContext(ctx, sqlText, params...))
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Record{}, false, nil
	}
	if err != nil {
		return ir.Record{}, false, fmt.Errorf("find %s: %w", id, err)
	}
	return rec, true, nil
}

// Insert persists rec under a freshly generated id.
func (t *txStore) Insert(ctx context.Context, rec ir.Record) (ir.Record, error) {
	out := rec.Clone()
	out.ID = t.s.ids.Generate()
	if len(out.Payload) == 0 {
		out.Payload = nil
	}

	payload, err := marshalPayload(out.Payload)
	if err != nil {
		return ir.Record{}, fmt.Errorf("insert: %w", err)
	}

	_, err = t.q.ExecContext(ctx, `
		INSERT INTO temporal_records
		(id, model, parent_id, parent_type, valid_start, valid_end, updates_enabled, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		out.ID,
		out.Group.Model,
		out.Group.ParentID,
		out.Group.ParentType,
		querysql.FormatTime(out.ValidStart),
		endParam(out.ValidEnd),
		out.UpdatesEnabled,
		payload,
	)
	if err != nil {
		return ir.Record{}, fmt.Errorf("insert: %w", err)
	}
	return out, nil
}

// UpdateField sets a single field.
func (t *txStore) UpdateField(ctx context.Context, id, field string, value any) error {
	return t.UpdateFields(ctx, id, ir.Changes{field: value})
}

// UpdateFields applies changes with ir.Record.Apply and rewrites the row,
// so field types are checked the same way for every store.
func (t *txStore) UpdateFields(ctx context.Context, id string, changes ir.Changes) error {
	prev, ok, err := t.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if !ok {
		return fmt.Errorf("update: %w: %s", temporal.ErrNotFound, id)
	}
	next, err := prev.Apply(changes)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}

	payload, err := marshalPayload(next.Payload)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}

	_, err = t.q.ExecContext(ctx, `
		UPDATE temporal_records
		SET model = ?, parent_id = ?, parent_type = ?, valid_start = ?,
		    valid_end = ?, updates_enabled = ?, payload = ?
		WHERE id = ?
	`,
		next.Group.Model,
		next.Group.ParentID,
		next.Group.ParentType,
		querysql.FormatTime(next.ValidStart),
		endParam(next.ValidEnd),
		next.UpdatesEnabled,
		payload,
		id,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	return nil
}

// Delete removes the record permanently.
func (t *txStore) Delete(ctx context.Context, id string) error {
	result, err := t.q.ExecContext(ctx, `DELETE FROM temporal_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete: %w: %s", temporal.ErrNotFound, id)
	}
	return nil
}

// RunAtomically joins the enclosing transaction, or starts one when t is
// bound to the pool.
func (t *txStore) RunAtomically(ctx context.Context, fn func(tx temporal.Store) error) error {
	if t.inTx {
		return fn(t)
	}
	return t.s.RunAtomically(ctx, fn)
}

// query compiles q and scans every row. Returns an empty slice, not nil,
// when nothing matches.
func (t *txStore) query(ctx context.Context, q queryir.Select) ([]ir.Record, error) {
	sqlText, params, err := t.s.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}

	rows, err := t.q.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []ir.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}
