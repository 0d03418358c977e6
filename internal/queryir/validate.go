package queryir

import (
	"errors"
	"fmt"
	"slices"
)

// Validate checks that a query only references known tables, columns and
// operators. Backends interpolate identifiers, so a query must pass
// Validate before it is compiled.
//
// All problems are reported, joined with errors.Join.
func Validate(query Query) error {
	v := &validator{}
	v.validateQuery(query)
	return errors.Join(v.errs...)
}

type validator struct {
	errs []error
}

func (v *validator) addf(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addf("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		if query == nil {
			v.addf("nil query")
			return
		}
		v.validateSelect(*query)
	default:
		v.addf("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if sel.From != RecordTable {
		v.addf("unknown table %q", sel.From)
	}
	for _, c := range sel.Columns {
		v.checkColumn(c)
	}
	if sel.Limit < 0 {
		v.addf("negative limit %d", sel.Limit)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) checkColumn(name string) {
	if !slices.Contains(Columns, name) {
		v.addf("unknown column %q", name)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		v.addf("nil predicate")
	case Equals:
		v.checkColumn(pred.Field)
		if pred.Value == nil {
			v.addf("equals %s: nil value (use IsNull)", pred.Field)
		}
	case IsNull:
		v.checkColumn(pred.Field)
		if pred.Field != ColValidEnd {
			v.addf("is null: column %q is not nullable", pred.Field)
		}
	case Compare:
		if pred.Field != ColValidStart && pred.Field != ColValidEnd {
			v.addf("compare: column %q is not a timestamp", pred.Field)
		}
		switch pred.Op {
		case OpLt, OpLe, OpGt, OpGe:
		default:
			v.addf("compare %s: unknown operator %q", pred.Field, pred.Op)
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Or:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Not:
		v.validatePredicate(pred.Predicate)
	default:
		v.addf("unknown predicate type %T", p)
	}
}
