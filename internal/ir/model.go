package ir

import "time"

// FieldType names a payload field type declared by a model.
type FieldType string

// Payload field types. There is deliberately no float type.
const (
	FieldTypeString FieldType = "string"
	FieldTypeInt    FieldType = "int"
	FieldTypeBool   FieldType = "bool"
	FieldTypeList   FieldType = "list"
	FieldTypeObject FieldType = "object"
)

// ValidFieldTypes lists the accepted FieldType values.
var ValidFieldTypes = map[FieldType]bool{
	FieldTypeString: true,
	FieldTypeInt:    true,
	FieldTypeBool:   true,
	FieldTypeList:   true,
	FieldTypeObject: true,
}

// ModelSpec is a compiled temporal model definition.
//
// A model names the parent entity its records hang off (ParentField, e.g.
// "agent_id") and, for polymorphic parents, the discriminator
// (TypeField, e.g. "agent_type"). Records of one model with equal parent
// id and type form a temporal group.
type ModelSpec struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	ParentField string               `json:"parent_field"`
	TypeField   string               `json:"type_field,omitempty"`
	Tolerance   time.Duration        `json:"tolerance,omitempty"` // 0 = manager default
	Fields      map[string]FieldType `json:"fields"`
}

// Polymorphic reports whether the model's parent carries a type
// discriminator.
func (m ModelSpec) Polymorphic() bool {
	return m.TypeField != ""
}
