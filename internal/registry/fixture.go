package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"rocketcore/pkg/model"
)

// Fixture is a bulk metadata definition file: entities, relations, rules, state machines,
// webhooks, and workflow definitions authored together, the way the teacher's
// internal/workflows/validator.go accepts a single workflow definition as YAML or JSON
// (yaml.v3 parses both). Used to seed or update a registry's metadata in one pass, e.g. from
// cmd/rocketcore's migrate step or an operator-maintained fixtures file checked into a repo.
type Fixture struct {
	Entities            []model.Entity             `yaml:"entities"`
	Relations           []FixtureRelation           `yaml:"relations"`
	Rules               []model.Rule                `yaml:"rules"`
	StateMachines       []model.StateMachine        `yaml:"state_machines"`
	Webhooks            []model.Webhook             `yaml:"webhooks"`
	WorkflowDefinitions []model.WorkflowDefinition  `yaml:"workflow_definitions"`
}

// FixtureRelation pairs a relation descriptor with the id PutRelation requires, since
// model.Relation itself carries no id field (relations are keyed by a separately assigned id,
// unlike entities which are keyed by their own name).
type FixtureRelation struct {
	ID             string `yaml:"id"`
	model.Relation `yaml:",inline"`
}

// LoadFixture reads a YAML (or JSON, since YAML is a JSON superset) fixture file from path and
// upserts every descriptor it contains into the registry via the same Put* methods the webhook
// admin HTTP handlers use.
func (r *Registry) LoadFixture(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read fixture %s: %w", path, err)
	}

	var fixture Fixture
	if err := yaml.Unmarshal(raw, &fixture); err != nil {
		return fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}

	for i := range fixture.Entities {
		if err := r.PutEntity(&fixture.Entities[i]); err != nil {
			return fmt.Errorf("fixture %s: entity %q: %w", path, fixture.Entities[i].Name, err)
		}
	}
	for i := range fixture.Relations {
		rel := fixture.Relations[i]
		if err := r.PutRelation(rel.ID, &rel.Relation); err != nil {
			return fmt.Errorf("fixture %s: relation %q: %w", path, rel.ID, err)
		}
	}
	for i := range fixture.Rules {
		if err := r.PutRule(&fixture.Rules[i]); err != nil {
			return fmt.Errorf("fixture %s: rule %q: %w", path, fixture.Rules[i].ID, err)
		}
	}
	for i := range fixture.StateMachines {
		if err := r.PutStateMachine(&fixture.StateMachines[i]); err != nil {
			return fmt.Errorf("fixture %s: state machine %q: %w", path, fixture.StateMachines[i].ID, err)
		}
	}
	for i := range fixture.Webhooks {
		if err := r.PutWebhook(&fixture.Webhooks[i]); err != nil {
			return fmt.Errorf("fixture %s: webhook %q: %w", path, fixture.Webhooks[i].ID, err)
		}
	}
	for i := range fixture.WorkflowDefinitions {
		if err := r.PutWorkflowDefinition(&fixture.WorkflowDefinitions[i]); err != nil {
			return fmt.Errorf("fixture %s: workflow definition %q: %w", path, fixture.WorkflowDefinitions[i].ID, err)
		}
	}
	return nil
}
