package queryir

import (
	"time"

	"github.com/roach88/temporal/internal/ir"
)

// GroupFilter matches the records of one temporal group. An empty
// ParentType matches only records stored without one.
func GroupFilter(key ir.GroupKey) Predicate {
	return And{Predicates: []Predicate{
		Equals{Field: ColModel, Value: ir.String(key.Model)},
		Equals{Field: ColParentID, Value: ir.String(key.ParentID)},
		Equals{Field: ColParentType, Value: ir.String(key.ParentType)},
	}}
}

// ValidAt matches records whose interval contains at:
//
//	valid_start <= at AND (valid_end IS NULL OR valid_end > at)
func ValidAt(at time.Time) Predicate {
	return And{Predicates: []Predicate{
		Compare{Field: ColValidStart, Op: OpLe, At: at},
		Or{Predicates: []Predicate{
			IsNull{Field: ColValidEnd},
			Compare{Field: ColValidEnd, Op: OpGt, At: at},
		}},
	}}
}

// InvalidAt is the exact complement of ValidAt. valid_start is NOT NULL and
// the valid_end disjunction never evaluates to NULL, so the negation
// partitions the rows.
func InvalidAt(at time.Time) Predicate {
	return Not{Predicate: ValidAt(at)}
}

// Where combines a group filter with extra predicates.
func Where(key ir.GroupKey, preds ...Predicate) Select {
	all := append([]Predicate{GroupFilter(key)}, preds...)
	if len(all) == 1 {
		return Select{From: RecordTable, Filter: all[0]}
	}
	return Select{From: RecordTable, Filter: And{Predicates: all}}
}
