package queryir

import (
	"time"

	"github.com/roach88/temporal/internal/ir"
)

// Columns of the record table. Field names in predicates must be one of
// these; Validate enforces it.
const (
	ColID             = "id"
	ColModel          = "model"
	ColParentID       = "parent_id"
	ColParentType     = "parent_type"
	ColValidStart     = "valid_start"
	ColValidEnd       = "valid_end"
	ColUpdatesEnabled = "updates_enabled"
	ColPayload        = "payload"
)

// RecordTable is the table every temporal record lives in.
const RecordTable = "temporal_records"

// Columns lists every record column in table order.
var Columns = []string{
	ColID, ColModel, ColParentID, ColParentType,
	ColValidStart, ColValidEnd, ColUpdatesEnabled, ColPayload,
}

// Query represents an abstract query.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode()
}

// Predicate represents a filter condition.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Select reads columns from a table.
//
//	SELECT <columns> FROM <from> WHERE <filter> ORDER BY valid_start, id
//
// Results are always ordered by timeline position; backends must not
// return rows in storage order.
type Select struct {
	From    string    // Table name
	Columns []string  // Explicit column list (empty = every record column)
	Filter  Predicate // WHERE conditions (nil = no filter)
	Limit   int       // 0 = unlimited
}

func (Select) queryNode() {}

// Equals represents field = literal.
type Equals struct {
	Field string
	Value ir.Value
}

func (Equals) predicateNode() {}

// IsNull represents field IS NULL.
type IsNull struct {
	Field string
}

func (IsNull) predicateNode() {}

// Op is a comparison operator for Compare.
type Op string

const (
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// Compare represents field <op> instant. It applies only to the timestamp
// columns; a NULL column never satisfies it.
type Compare struct {
	Field string
	Op    Op
	At    time.Time
}

func (Compare) predicateNode() {}

// And is true when every predicate is true. An empty And is true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or is true when any predicate is true. An empty Or is false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}
