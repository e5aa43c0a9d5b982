package registry

import (
	"encoding/json"
	"fmt"

	"rocketcore/pkg/model"
)

// PutEntity upserts an entity descriptor and reloads the snapshot.
func (r *Registry) PutEntity(e *model.Entity) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return r.putJSON("_entities", "name", e.Name, e)
}

// PutRelation upserts a relation descriptor and reloads the snapshot.
func (r *Registry) PutRelation(id string, rel *model.Relation) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	return r.putJSONKeyed("_relations", id, rel.SourceEntity, rel)
}

// PutRule upserts a rule descriptor and reloads the snapshot.
func (r *Registry) PutRule(rule *model.Rule) error {
	return r.putJSONKeyed("_rules", rule.ID, rule.Entity, rule)
}

// PutStateMachine upserts a state machine descriptor and reloads the snapshot.
func (r *Registry) PutStateMachine(sm *model.StateMachine) error {
	return r.putJSONKeyed("_state_machines", sm.ID, sm.Entity, sm)
}

// PutWebhook upserts a webhook descriptor and reloads the snapshot.
func (r *Registry) PutWebhook(w *model.Webhook) error {
	return r.putJSONKeyed("_webhooks", w.ID, w.Entity, w)
}

// DeleteWebhook removes a webhook descriptor and reloads the snapshot.
func (r *Registry) DeleteWebhook(id string) error {
	if _, err := r.db.Exec("DELETE FROM _webhooks WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete webhook %s: %w", id, err)
	}
	return r.Reload()
}

// PutWorkflowDefinition upserts a workflow definition and reloads the snapshot.
func (r *Registry) PutWorkflowDefinition(wf *model.WorkflowDefinition) error {
	raw, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("failed to marshal _workflow_definitions: %w", err)
	}
	if _, err := r.db.Exec(
		"INSERT INTO _workflow_definitions (id, name, trigger_entity, definition) VALUES (?, ?, ?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name, trigger_entity = excluded.trigger_entity, definition = excluded.definition",
		wf.ID, wf.Name, wf.Trigger.Entity, string(raw),
	); err != nil {
		return fmt.Errorf("failed to upsert into _workflow_definitions: %w", err)
	}
	return r.Reload()
}

func (r *Registry) putJSON(table, keyCol, keyVal string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", table, err)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s, definition) VALUES (?, ?) ON CONFLICT(%s) DO UPDATE SET definition = excluded.definition", table, keyCol, keyCol)
	if _, err := r.db.Exec(query, keyVal, string(raw)); err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	return r.Reload()
}

func (r *Registry) putJSONKeyed(table, id, groupCol string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", table, err)
	}
	groupColumn := "entity"
	if table == "_relations" {
		groupColumn = "source_entity"
	} else if table == "_workflow_definitions" {
		groupColumn = "trigger_entity"
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (id, %s, definition) VALUES (?, ?, ?) ON CONFLICT(id) DO UPDATE SET %s = excluded.%s, definition = excluded.definition",
		table, groupColumn, groupColumn, groupColumn,
	)
	if _, err := r.db.Exec(query, id, groupCol, string(raw)); err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	return r.Reload()
}
