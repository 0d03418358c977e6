package querysql

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/temporal/internal/ir"
	"github.com/roach88/temporal/internal/queryir"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

const allColumns = "id, model, parent_id, parent_type, valid_start, valid_end, updates_enabled, payload"

func TestCompile_GroupSelect(t *testing.T) {
	compiler := NewSQLCompiler()

	sql, params, err := compiler.Compile(queryir.Where(ir.GroupKey{Model: "price", ParentID: "p1"}))
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT "+allColumns+" FROM temporal_records"+
			" WHERE (model = ? AND parent_id = ? AND parent_type = ?)"+
			" ORDER BY valid_start ASC, id COLLATE BINARY ASC",
		sql)
	assert.Equal(t, []any{"price", "p1", ""}, params)
}

func TestCompile_ValidAt(t *testing.T) {
	compiler := NewSQLCompiler()
	q := queryir.Select{From: queryir.RecordTable, Columns: []string{queryir.ColID}, Filter: queryir.ValidAt(t0)}

	sql, params, err := compiler.Compile(q)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id FROM temporal_records"+
			" WHERE (valid_start <= ? AND (valid_end IS NULL OR valid_end > ?))"+
			" ORDER BY valid_start ASC, id COLLATE BINARY ASC",
		sql)
	assert.Equal(t, []any{"2024-03-01T09:00:00.000000000Z", "2024-03-01T09:00:00.000000000Z"}, params)
}

func TestCompile_InvalidAtAndLimit(t *testing.T) {
	compiler := NewSQLCompiler()
	q := &queryir.Select{From: queryir.RecordTable, Columns: []string{queryir.ColID}, Filter: queryir.InvalidAt(t0), Limit: 5}

	sql, params, err := compiler.Compile(q)
	require.NoError(t, err)

	assert.Contains(t, sql, "WHERE NOT ((valid_start <= ? AND (valid_end IS NULL OR valid_end > ?)))")
	assert.Contains(t, sql, "LIMIT ?")
	assert.Len(t, params, 3)
	assert.Equal(t, 5, params[2])
}

func TestCompile_ExecutesOnSQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE temporal_records (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		parent_id TEXT NOT NULL,
		parent_type TEXT NOT NULL DEFAULT '',
		valid_start TEXT NOT NULL,
		valid_end TEXT,
		updates_enabled INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL DEFAULT '{}'
	)`)
	require.NoError(t, err)

	rows := []struct {
		id    string
		start time.Time
		end   *time.Time
	}{
		{"b", t0, nil},
		{"a", t0, nil},
		{"B", t0, nil},
		{"z", t0.Add(-time.Hour), ir.TimePtr(t0)},
	}
	for _, r := range rows {
		var end any
		if r.end != nil {
			end = FormatTime(*r.end)
		}
		_, err := db.Exec(`INSERT INTO temporal_records (id, model, parent_id, valid_start, valid_end) VALUES (?, 'price', 'p1', ?, ?)`,
			r.id, FormatTime(r.start), end)
		require.NoError(t, err)
	}

	compiler := NewSQLCompiler()
	key := ir.GroupKey{Model: "price", ParentID: "p1"}
	run := func(q queryir.Select) []string {
		t.Helper()
		q.Columns = []string{queryir.ColID}
		query, params, err := compiler.Compile(q)
		require.NoError(t, err)

		rs, err := db.Query(query, params...)
		require.NoError(t, err)
		defer rs.Close()

		var ids []string
		for rs.Next() {
			var id string
			require.NoError(t, rs.Scan(&id))
			ids = append(ids, id)
		}
		require.NoError(t, rs.Err())
		return ids
	}

	// Ties on valid_start fall back to byte order of the id.
	assert.Equal(t, []string{"z", "B", "a", "b"}, run(queryir.Where(key)))
	assert.Equal(t, []string{"B", "a", "b"}, run(queryir.Where(key, queryir.ValidAt(t0))))
	assert.Equal(t, []string{"z"}, run(queryir.Where(key, queryir.InvalidAt(t0))))
}

func TestCompile_ValuesNeverInterpolated(t *testing.T) {
	compiler := NewSQLCompiler()
	q := queryir.Where(ir.GroupKey{Model: "price'; DROP TABLE temporal_records; --", ParentID: "p1"})

	sql, params, err := compiler.Compile(q)
	require.NoError(t, err)
	assert.NotContains(t, sql, "DROP")
	assert.Equal(t, "price'; DROP TABLE temporal_records; --", params[0])
}

func TestCompile_EmptyJunctions(t *testing.T) {
	compiler := NewSQLCompiler()

	sql, _, err := compiler.Compile(queryir.Select{From: queryir.RecordTable, Filter: queryir.And{}})
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE 1 = 1")

	sql, _, err = compiler.Compile(queryir.Select{From: queryir.RecordTable, Filter: queryir.Or{}})
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE 1 = 0")
}

func TestCompile_Errors(t *testing.T) {
	compiler := NewSQLCompiler()

	tests := []struct {
		name  string
		query queryir.Query
	}{
		{"nil query", nil},
		{"unknown column", queryir.Select{From: queryir.RecordTable, Columns: []string{"password"}}},
		{"null equals", queryir.Select{From: queryir.RecordTable, Filter: queryir.Equals{Field: queryir.ColModel, Value: ir.Null{}}}},
		{"array equals", queryir.Select{From: queryir.RecordTable, Filter: queryir.Equals{Field: queryir.ColPayload, Value: ir.Array{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := compiler.Compile(tt.query)
			assert.Error(t, err)
		})
	}
}

func TestTimeRoundTripAndOrdering(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	in := time.Date(2024, 3, 1, 4, 0, 0, 123, loc)

	s := FormatTime(in)
	assert.Equal(t, "2024-03-01T09:00:00.000000123Z", s)

	out, err := ParseTime(s)
	require.NoError(t, err)
	assert.True(t, in.Equal(out))
	assert.Equal(t, time.UTC, out.Location())

	// Lexical order matches instant order, including across second
	// boundaries with and without fractions.
	assert.Less(t, FormatTime(t0), FormatTime(t0.Add(time.Nanosecond)))
	assert.Less(t, FormatTime(t0.Add(999*time.Millisecond)), FormatTime(t0.Add(time.Second)))

	_, err = ParseTime("yesterday")
	assert.Error(t, err)
}
