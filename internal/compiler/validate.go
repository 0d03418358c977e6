package compiler

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/temporal/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// ModelSpec errors (E101-E109)
	ErrModelParentEmpty  = "E101" // parent field is required
	ErrInvalidModelName  = "E102" // model name is not an identifier
	ErrInvalidFieldName  = "E103" // payload field name is not an identifier
	ErrInvalidFieldType  = "E104" // invalid type string
	ErrDuplicateName     = "E105" // duplicate model name
	ErrReservedFieldName = "E106" // payload field shadows a record field
	ErrNegativeTolerance = "E107" // tolerance below zero
	ErrParentFieldsClash = "E108" // parent and type labels are equal

	// Record errors (E120-E129)
	ErrUnknownModel        = "E120" // record names an unregistered model
	ErrUnknownPayloadKey   = "E121" // payload field not declared by the model
	ErrPayloadTypeMismatch = "E122" // payload value has the wrong type
	ErrParentTypeMismatch  = "E123" // parent_type presence does not match the model
)

var identifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// reservedFields are record columns a payload field may not shadow.
var reservedFields = map[string]bool{
	ir.FieldValidStart:     true,
	ir.FieldValidEnd:       true,
	ir.FieldParentID:       true,
	ir.FieldParentType:     true,
	ir.FieldUpdatesEnabled: true,
	"id":                   true,
	"model":                true,
}

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is returned when a record fails model validation.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates a compiled model against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.ModelSpec:
		return validateModelSpec(spec)
	case ir.ModelSpec:
		return validateModelSpec(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateModelSpec(spec *ir.ModelSpec) []ValidationError {
	var errs []ValidationError

	if !identifier.MatchString(spec.Name) {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("model name %q must be an identifier", spec.Name),
			Code:    ErrInvalidModelName,
		})
	}

	if strings.TrimSpace(spec.ParentField) == "" {
		errs = append(errs, ValidationError{
			Field:   "parent",
			Message: "parent is required and must be non-empty",
			Code:    ErrModelParentEmpty,
		})
	} else if spec.ParentField == spec.TypeField {
		errs = append(errs, ValidationError{
			Field:   "type",
			Message: "type must differ from parent",
			Code:    ErrParentFieldsClash,
		})
	}

	if spec.Tolerance < 0 {
		errs = append(errs, ValidationError{
			Field:   "tolerance",
			Message: fmt.Sprintf("tolerance %s must not be negative", spec.Tolerance),
			Code:    ErrNegativeTolerance,
		})
	}

	names := make([]string, 0, len(spec.Fields))
	for name := range spec.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := "fields." + name
		switch {
		case !identifier.MatchString(name):
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "field name must be an identifier",
				Code:    ErrInvalidFieldName,
			})
		case reservedFields[name]:
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "field name is reserved for record metadata",
				Code:    ErrReservedFieldName,
			})
		}
		if !ir.ValidFieldTypes[spec.Fields[name]] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid type %q", spec.Fields[name]),
				Code:    ErrInvalidFieldType,
			})
		}
	}

	return errs
}

// validateRecord checks a record's group and payload against its model.
func validateRecord(spec ir.ModelSpec, rec ir.Record) []ValidationError {
	var errs []ValidationError

	switch {
	case spec.Polymorphic() && rec.Group.ParentType == "":
		errs = append(errs, ValidationError{
			Field:   ir.FieldParentType,
			Message: fmt.Sprintf("model %s requires %s", spec.Name, spec.TypeField),
			Code:    ErrParentTypeMismatch,
		})
	case !spec.Polymorphic() && rec.Group.ParentType != "":
		errs = append(errs, ValidationError{
			Field:   ir.FieldParentType,
			Message: fmt.Sprintf("model %s has no polymorphic parent", spec.Name),
			Code:    ErrParentTypeMismatch,
		})
	}

	for _, name := range rec.Payload.SortedKeys() {
		want, ok := spec.Fields[name]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   ir.PayloadField(name),
				Message: fmt.Sprintf("model %s does not declare field %q", spec.Name, name),
				Code:    ErrUnknownPayloadKey,
			})
			continue
		}
		if got := valueType(rec.Payload[name]); got != "" && got != want {
			errs = append(errs, ValidationError{
				Field:   ir.PayloadField(name),
				Message: fmt.Sprintf("expected %s, got %s", want, got),
				Code:    ErrPayloadTypeMismatch,
			})
		}
	}

	return errs
}

// valueType maps a payload value to its field type. Null matches any
// declared type and reports "".
func valueType(v ir.Value) ir.FieldType {
	switch v.(type) {
	case ir.String:
		return ir.FieldTypeString
	case ir.Int:
		return ir.FieldTypeInt
	case ir.Bool:
		return ir.FieldTypeBool
	case ir.Array:
		return ir.FieldTypeList
	case ir.Object:
		return ir.FieldTypeObject
	default:
		return ""
	}
}
