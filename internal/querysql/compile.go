// Package querysql compiles queryir queries to parameterized SQLite SQL.
package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/temporal/internal/ir"
	"github.com/roach88/temporal/internal/queryir"
)

// TimeLayout is the storage format of timestamp columns. It is fixed width
// and always UTC, so lexical comparison in SQL equals instant comparison.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime encodes t for a timestamp column or parameter.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime decodes a timestamp column.
func ParseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// SQLCompiler compiles QueryIR to parameterized SQL for SQLite.
//
// CRITICAL: every query is ordered by (valid_start, id) so results come back
// in timeline order regardless of storage order.
// CRITICAL: values are always parameterized, never interpolated.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a query to SQL and its parameters. The query is
// validated first; identifiers are interpolated only after passing
// queryir.Validate.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, fmt.Errorf("invalid query: %w", err)
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	columns := q.Columns
	if len(columns) == 0 {
		columns = queryir.Columns
	}

	var sb strings.Builder
	var params []any
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(columns, ", "), q.From)

	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(filterSQL)
		params = filterParams
	}

	sb.WriteString(" ORDER BY ")
	sb.WriteString(stableOrderKey())

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		params = append(params, q.Limit)
	}
	return sb.String(), params, nil
}

// stableOrderKey returns the ORDER BY clause shared by every query.
// COLLATE BINARY keeps id tiebreaks identical across SQLite builds.
func stableOrderKey() string {
	return queryir.ColValidStart + " ASC, " + queryir.ColID + " COLLATE BINARY ASC"
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		param, err := valueToParam(pred.Value)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", pred.Field, err)
		}
		return pred.Field + " = ?", []any{param}, nil
	case queryir.IsNull:
		return pred.Field + " IS NULL", nil, nil
	case queryir.Compare:
		return fmt.Sprintf("%s %s ?", pred.Field, pred.Op), []any{FormatTime(pred.At)}, nil
	case queryir.And:
		return c.compileJunction(pred.Predicates, " AND ", "1 = 1")
	case queryir.Or:
		return c.compileJunction(pred.Predicates, " OR ", "1 = 0")
	case queryir.Not:
		inner, params, err := c.compilePredicate(pred.Predicate)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + inner + ")", params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileJunction joins predicates with sep. An empty junction compiles to
// its identity element.
func (c *SQLCompiler) compileJunction(preds []queryir.Predicate, sep, empty string) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}
	if len(preds) == 1 {
		return c.compilePredicate(preds[0])
	}

	parts := make([]string, 0, len(preds))
	var params []any
	for _, pred := range preds {
		sql, ps, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	return "(" + strings.Join(parts, sep) + ")", params, nil
}

// valueToParam converts a scalar ir.Value to a SQL parameter.
func valueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		return bool(val), nil
	case ir.Null:
		return nil, fmt.Errorf("null never equals anything, use IsNull")
	case ir.Array, ir.Object:
		return nil, fmt.Errorf("%T cannot be used as SQL parameter directly", v)
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
