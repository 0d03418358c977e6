package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/temporal/internal/ir"
	"github.com/roach88/temporal/internal/querysql"
)

// marshalPayload converts a payload to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalPayload(payload ir.Object) (string, error) {
	if len(payload) == 0 {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// unmarshalPayload parses canonical JSON TEXT. An empty object decodes to
// nil so records read back compare equal to the records inserted.
func unmarshalPayload(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	obj, err := ir.ParseObject(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return obj, nil
}

func endParam(end *time.Time) sql.NullString {
	if end == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: querysql.FormatTime(*end), Valid: true}
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads the columns of queryir.Columns, in order.
func scanRecord(row rowScanner) (ir.Record, error) {
	var (
		rec            ir.Record
		start, payload string
		end            sql.NullString
		updatesEnabled bool
	)
	err := row.Scan(
		&rec.ID,
		&rec.Group.Model,
		&rec.Group.ParentID,
		&rec.Group.ParentType,
		&start,
		&end,
		&updatesEnabled,
		&payload,
	)
	if err != nil {
		return ir.Record{}, err
	}

	rec.ValidStart, err = querysql.ParseTime(start)
	if err != nil {
		return ir.Record{}, fmt.Errorf("record %s: valid_start: %w", rec.ID, err)
	}
	if end.Valid {
		t, err := querysql.ParseTime(end.String)
		if err != nil {
			return ir.Record{}, fmt.Errorf("record %s: valid_end: %w", rec.ID, err)
		}
		rec.ValidEnd = &t
	}
	rec.UpdatesEnabled = updatesEnabled
	rec.Payload, err = unmarshalPayload(payload)
	if err != nil {
		return ir.Record{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	return rec, nil
}
