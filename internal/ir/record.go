package ir

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Field names accepted in Changes.
//
// Payload fields are addressed as "payload.<name>"; see PayloadField.
const (
	FieldValidStart = "valid_start"
	FieldValidEnd   = "valid_end"
	FieldParentID   = "parent_id"
	FieldParentType = "parent_type"

	// FieldUpdatesEnabled is only written by the manager's toggle, never
	// through a caller-supplied Changes set.
	FieldUpdatesEnabled = "updates_enabled"

	payloadPrefix = "payload."
)

// GroupKey identifies a temporal group. Two records are siblings iff their
// group keys are equal.
//
// ParentType is the optional polymorphic discriminator; it is empty for
// models whose parent is not polymorphic.
type GroupKey struct {
	Model      string `json:"model" yaml:"model"`
	ParentID   string `json:"parent_id" yaml:"parent_id"`
	ParentType string `json:"parent_type,omitempty" yaml:"parent_type,omitempty"`
}

// String renders the key as model/parent_type:parent_id for logs.
func (k GroupKey) String() string {
	if k.ParentType != "" {
		return fmt.Sprintf("%s/%s:%s", k.Model, k.ParentType, k.ParentID)
	}
	return fmt.Sprintf("%s/%s", k.Model, k.ParentID)
}

// Validate checks that the key addresses a group.
func (k GroupKey) Validate() error {
	if k.Model == "" {
		return fmt.Errorf("group key: model is required")
	}
	if k.ParentID == "" {
		return fmt.Errorf("group key: parent_id is required")
	}
	return nil
}

// Record is a versioned record with a [ValidStart, ValidEnd) interval.
type Record struct {
	ID             string     `json:"id"`
	Group          GroupKey   `json:"group"`
	ValidStart     time.Time  `json:"valid_start"`
	ValidEnd       *time.Time `json:"valid_end,omitempty"`
	UpdatesEnabled bool       `json:"updates_enabled"`
	Payload        Object     `json:"payload"`
}

// Clone returns a deep copy of the record so callers never share the
// ValidEnd pointer or the payload map with a store.
func (r Record) Clone() Record {
	out := r
	out.ValidStart = r.ValidStart.UTC()
	if r.ValidEnd != nil {
		end := r.ValidEnd.UTC()
		out.ValidEnd = &end
	}
	if r.Payload != nil {
		out.Payload = r.Payload.Clone()
	}
	return out
}

// OpenEnded reports whether the record has no upper bound.
func (r Record) OpenEnded() bool {
	return r.ValidEnd == nil
}

// EndOrInfinity returns ValidEnd and whether it is set.
func (r Record) EndOrInfinity() (time.Time, bool) {
	if r.ValidEnd == nil {
		return time.Time{}, false
	}
	return *r.ValidEnd, true
}

// TimePtr returns a UTC copy of t as a pointer, for ValidEnd literals.
func TimePtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}

// Changes is an explicit set of field updates: field name to new value.
//
// Value types per field:
//   - valid_start: time.Time
//   - valid_end: time.Time, *time.Time, or nil (open-ended)
//   - parent_id, parent_type: string
//   - payload.<name>: Value
type Changes map[string]any

// Fields returns the changed field names in sorted order.
func (c Changes) Fields() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Only reports whether field is the single member of the set.
func (c Changes) Only(field string) bool {
	_, ok := c[field]
	return ok && len(c) == 1
}

// PayloadField returns the Changes key for a payload field.
func PayloadField(name string) string {
	return payloadPrefix + name
}

// IsPayloadField reports whether key addresses a payload field and returns
// the payload field name.
func IsPayloadField(key string) (string, bool) {
	if !strings.HasPrefix(key, payloadPrefix) {
		return "", false
	}
	name := strings.TrimPrefix(key, payloadPrefix)
	return name, name != ""
}

// EndValue decodes a valid_end change value.
func EndValue(v any) (*time.Time, error) {
	switch end := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return TimePtr(end), nil
	case *time.Time:
		if end == nil {
			return nil, nil
		}
		return TimePtr(*end), nil
	default:
		return nil, fmt.Errorf("%s: unsupported value type %T", FieldValidEnd, v)
	}
}

// Apply returns a copy of r with the changes applied. The input record is
// never mutated.
func (r Record) Apply(c Changes) (Record, error) {
	out := r.Clone()
	for _, field := range c.Fields() {
		v := c[field]
		switch field {
		case FieldValidStart:
			start, ok := v.(time.Time)
			if !ok {
				return Record{}, fmt.Errorf("%s: unsupported value type %T", field, v)
			}
			out.ValidStart = start.UTC()
		case FieldValidEnd:
			end, err := EndValue(v)
			if err != nil {
				return Record{}, err
			}
			out.ValidEnd = end
		case FieldParentID:
			s, ok := v.(string)
			if !ok {
				return Record{}, fmt.Errorf("%s: unsupported value type %T", field, v)
			}
			out.Group.ParentID = s
		case FieldParentType:
			s, ok := v.(string)
			if !ok {
				return Record{}, fmt.Errorf("%s: unsupported value type %T", field, v)
			}
			out.Group.ParentType = s
		case FieldUpdatesEnabled:
			b, ok := v.(bool)
			if !ok {
				return Record{}, fmt.Errorf("%s: unsupported value type %T", field, v)
			}
			out.UpdatesEnabled = b
		default:
			name, ok := IsPayloadField(field)
			if !ok {
				return Record{}, fmt.Errorf("unknown field %q", field)
			}
			val, ok := v.(Value)
			if !ok {
				return Record{}, fmt.Errorf("%s: unsupported value type %T", field, v)
			}
			if out.Payload == nil {
				out.Payload = Object{}
			}
			out.Payload[name] = val
		}
	}
	return out, nil
}
