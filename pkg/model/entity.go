// Package model holds the data-model types §3 of the spec describes: entities, relations,
// rules, state machines, workflows, and webhooks. These are plain structs shared between the
// registry, the write pipeline, and the HTTP layer — no behavior lives here beyond small
// invariant checks.
package model

import "fmt"

// AutoFillPolicy controls when a field is stamped by the pipeline instead of the caller.
type AutoFillPolicy string

const (
	AutoFillNone     AutoFillPolicy = "none"
	AutoFillOnCreate AutoFillPolicy = "on-create"
	AutoFillOnUpdate AutoFillPolicy = "on-update"
)

// FieldType is the declared storage type of an entity field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInt     FieldType = "int"
	FieldFloat   FieldType = "float"
	FieldBool    FieldType = "bool"
	FieldTime    FieldType = "time"
	FieldJSON    FieldType = "json"
	FieldFile    FieldType = "file"
	FieldUUID    FieldType = "uuid"
)

// Field describes one column of an entity.
type Field struct {
	Name       string
	Type       FieldType
	Required   bool
	Nullable   bool
	Enum       []string
	Default    interface{}
	AutoFill   AutoFillPolicy
}

// Entity describes a user-defined table interpreted at runtime.
type Entity struct {
	Name         string
	Table        string
	PrimaryKey   string
	Fields       []Field
	SoftDelete   bool
}

// FieldByName returns the field descriptor for name, or nil if none.
func (e *Entity) FieldByName(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// Validate checks the invariants §3 requires of an entity descriptor.
func (e *Entity) Validate() error {
	if e.PrimaryKey == "" {
		return fmt.Errorf("entity %q: primary key field is required", e.Name)
	}
	if e.FieldByName(e.PrimaryKey) == nil {
		return fmt.Errorf("entity %q: primary key field %q is not declared", e.Name, e.PrimaryKey)
	}
	if e.SoftDelete && e.FieldByName("deleted_at") == nil {
		return fmt.Errorf("entity %q: soft-delete entities require a deleted_at field", e.Name)
	}
	return nil
}
