// Package writeplan implements §4.4: splitting a request body into own-field writes,
// relation child-writes, and fatal unknown keys, validating each own field against its entity
// descriptor. Grounded on station's internal/workflows/validator.go for the
// "parse/validate/collect issues" shape, generalized from a single workflow-definition schema
// to rocketcore's per-entity metadata.
package writeplan

import (
	"fmt"

	"rocketcore/internal/registry"
	"rocketcore/pkg/model"
)

// ChildOp is one relation's pending child-write, extracted from the request body.
type ChildOp struct {
	Relation *model.Relation
	Mode     model.WriteMode
	Data     []map[string]interface{}
}

// Plan is the pure data structure §4.4 hands to the write pipeline.
type Plan struct {
	IsCreate bool
	Entity   *model.Entity
	Fields   map[string]interface{}
	ID       string // empty on create; the pipeline generates the new id without setting it here
	ChildOps []ChildOp
	User     *model.User
}

// Build splits body into own fields/relation writes/unknown keys for entity, validating own
// fields against the entity descriptor, and returns the resulting Plan or validation issues.
func Build(reg *registry.Registry, entityName string, body map[string]interface{}, existingID string, user *model.User) (*Plan, []model.ValidationIssue) {
	entity := reg.Entity(entityName)
	if entity == nil {
		return nil, []model.ValidationIssue{{Message: fmt.Sprintf("unknown entity %q", entityName)}}
	}

	relations := reg.RelationsFor(entityName)
	relationByName := make(map[string]*model.Relation, len(relations))
	for _, r := range relations {
		relationByName[r.Name] = r
	}

	isCreate := existingID == ""
	fields := make(map[string]interface{})
	var childOps []ChildOp
	var issues []model.ValidationIssue

	for key, value := range body {
		if f := entity.FieldByName(key); f != nil {
			fields[key] = value
			continue
		}
		if rel, ok := relationByName[key]; ok {
			op, relIssues := buildChildOp(rel, value)
			issues = append(issues, relIssues...)
			if op != nil {
				childOps = append(childOps, *op)
			}
			continue
		}
		issues = append(issues, model.ValidationIssue{Field: key, Message: fmt.Sprintf("unknown key %q", key)})
	}

	issues = append(issues, validateFields(entity, fields, isCreate)...)

	if len(issues) > 0 {
		return nil, issues
	}

	return &Plan{
		IsCreate: isCreate,
		Entity:   entity,
		Fields:   fields,
		ID:       existingID,
		ChildOps: childOps,
		User:     user,
	}, nil
}

func buildChildOp(rel *model.Relation, value interface{}) (*ChildOp, []model.ValidationIssue) {
	m, ok := value.(map[string]interface{})
	if !ok {
		return nil, []model.ValidationIssue{{Field: rel.Name, Message: fmt.Sprintf("relation %q must be an object with a data array", rel.Name)}}
	}

	mode := model.WriteModeDiff
	if rawMode, ok := m["mode"].(string); ok && rawMode != "" {
		mode = model.WriteMode(rawMode)
	}

	rawData, _ := m["data"].([]interface{})
	data := make([]map[string]interface{}, 0, len(rawData))
	for _, item := range rawData {
		if row, ok := item.(map[string]interface{}); ok {
			data = append(data, row)
		}
	}

	return &ChildOp{Relation: rel, Mode: mode, Data: data}, nil
}

func validateFields(entity *model.Entity, fields map[string]interface{}, isCreate bool) []model.ValidationIssue {
	var issues []model.ValidationIssue
	for _, f := range entity.Fields {
		if f.Name == entity.PrimaryKey {
			continue
		}
		v, present := fields[f.Name]

		if isCreate && f.Required && !f.Nullable {
			if !present || isEmpty(v) {
				issues = append(issues, model.ValidationIssue{Field: f.Name, Message: fmt.Sprintf("%s is required", f.Name)})
				continue
			}
		}

		if present && len(f.Enum) > 0 {
			if s, ok := v.(string); !ok || !contains(f.Enum, s) {
				issues = append(issues, model.ValidationIssue{Field: f.Name, Message: fmt.Sprintf("%s must be one of %v", f.Name, f.Enum)})
			}
		}
	}
	return issues
}

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
