package compiler

import (
	"fmt"
	"sort"
	"time"

	"github.com/roach88/temporal/internal/ir"
)

// Registry holds the compiled models of a deployment and implements
// temporal.ModelRegistry.
//
// Thread-safety: a Registry is immutable after NewRegistry and safe for
// concurrent use.
type Registry struct {
	models map[string]ir.ModelSpec
}

// NewRegistry validates specs and indexes them by name. All validation
// problems are returned together as ValidationErrors.
func NewRegistry(specs ...ir.ModelSpec) (*Registry, error) {
	r := &Registry{models: make(map[string]ir.ModelSpec, len(specs))}

	var errs ValidationErrors
	for _, spec := range specs {
		for _, e := range Validate(spec) {
			e.Field = spec.Name + "." + e.Field
			errs = append(errs, e)
		}
		if _, dup := r.models[spec.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   spec.Name,
				Message: "duplicate model name",
				Code:    ErrDuplicateName,
			})
			continue
		}
		r.models[spec.Name] = spec
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return r, nil
}

// Get returns the named model.
func (r *Registry) Get(name string) (ir.ModelSpec, bool) {
	spec, ok := r.models[name]
	return spec, ok
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tolerance returns the model's tolerance override. A zero tolerance in the
// model means "use the manager default" and reports false.
func (r *Registry) Tolerance(model string) (time.Duration, bool) {
	spec, ok := r.models[model]
	if !ok || spec.Tolerance == 0 {
		return 0, false
	}
	return spec.Tolerance, true
}

// ValidateRecord checks rec against its model. The error, when non-nil, is
// a ValidationErrors.
func (r *Registry) ValidateRecord(rec ir.Record) error {
	spec, ok := r.models[rec.Group.Model]
	if !ok {
		return ValidationErrors{{
			Field:   "model",
			Message: fmt.Sprintf("unknown model %q", rec.Group.Model),
			Code:    ErrUnknownModel,
		}}
	}
	if errs := validateRecord(spec, rec); len(errs) > 0 {
		return ValidationErrors(errs)
	}
	return nil
}
