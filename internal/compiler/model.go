// Package compiler turns CUE model definitions into ir.ModelSpec values and
// checks records against them.
//
// A model file declares models under the top-level "model" struct:
//
//	model: price: {
//		description: "Product list price"
//		parent:      "product_id"
//		type:        "product_type" // optional, polymorphic parents only
//		tolerance:   "10s"          // optional, overrides the manager default
//		fields: {
//			cents:    int
//			currency: string
//		}
//	}
package compiler

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/temporal/internal/ir"
)

// CompileModels compiles every model under the "model" struct of v.
// Models are returned in declaration order.
func CompileModels(v cue.Value) ([]ir.ModelSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	modelsVal := v.LookupPath(cue.ParsePath("model"))
	if !modelsVal.Exists() {
		return nil, nil
	}

	iter, err := modelsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []ir.ModelSpec
	for iter.Next() {
		spec, err := CompileModel(iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, *spec)
	}
	return specs, nil
}

// CompileModel parses a CUE value into a ModelSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the model struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`model: price: { ... }`)
//	spec, err := CompileModel(v.LookupPath(cue.ParsePath("model.price")))
func CompileModel(v cue.Value) (*ir.ModelSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.ModelSpec{Fields: make(map[string]ir.FieldType)}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	parent, err := lookupString(v, "parent", true)
	if err != nil {
		return nil, err
	}
	spec.ParentField = parent

	if spec.TypeField, err = lookupString(v, "type", false); err != nil {
		return nil, err
	}
	if spec.Description, err = lookupString(v, "description", false); err != nil {
		return nil, err
	}

	tolerance, err := lookupString(v, "tolerance", false)
	if err != nil {
		return nil, err
	}
	if tolerance != "" {
		d, err := time.ParseDuration(tolerance)
		if err != nil {
			return nil, &CompileError{
				Field:   "tolerance",
				Message: fmt.Sprintf("invalid duration %q", tolerance),
				Pos:     v.LookupPath(cue.ParsePath("tolerance")).Pos(),
			}
		}
		spec.Tolerance = d
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if fieldsVal.Exists() {
		iter, err := fieldsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			ft, err := extractFieldType(iter.Value())
			if err != nil {
				return nil, err
			}
			spec.Fields[iter.Label()] = ft
		}
	}

	return spec, nil
}

// lookupString reads an optional (or required) string field.
func lookupString(v cue.Value, field string, required bool) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		if required {
			return "", &CompileError{
				Field:   field,
				Message: field + " is required",
				Pos:     v.Pos(),
			}
		}
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// extractFieldType converts a CUE type to a payload field type.
// Floats are forbidden: payload values are canonical JSON.
func extractFieldType(v cue.Value) (ir.FieldType, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return ir.FieldTypeString, nil
	case cue.IntKind:
		return ir.FieldTypeInt, nil
	case cue.BoolKind:
		return ir.FieldTypeBool, nil
	case cue.ListKind:
		return ir.FieldTypeList, nil
	case cue.StructKind:
		return ir.FieldTypeObject, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
