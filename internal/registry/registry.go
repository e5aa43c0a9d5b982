// Package registry is rocketcore's metadata store: entities, relations, rules, state
// machines, webhooks, and workflow definitions, all loaded from SQLite JSON rows into an
// in-memory snapshot that is rebuilt atomically on admin changes and read-shared by every
// request goroutine thereafter, per §5's "read-shared and rebuilt atomically" resource model.
// Grounded on station's internal/db/repositories (one repo struct per table, a New()
// aggregator) and its validator.go for definition parsing, generalized from a single
// workflow-definition table to rocketcore's full metadata surface.
package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"rocketcore/pkg/model"
)

// Registry is the read path every core package depends on. It satisfies the narrower lookup
// interfaces internal/webhookdispatch and internal/workflow declare for themselves.
type Registry struct {
	db *sql.DB

	snapshot atomic.Pointer[snapshot]
	mu       sync.Mutex // serializes Reload; readers never block on it
}

type snapshot struct {
	entities   map[string]*model.Entity
	relations  map[string][]*model.Relation // by source entity
	rules      map[string][]*model.Rule     // by entity
	machines   map[string][]*model.StateMachine
	webhooks   map[string][]*model.Webhook // by entity
	webhooksByID map[string]*model.Webhook
	workflows  map[string][]*model.WorkflowDefinition // by trigger entity
	workflowByID map[string]*model.WorkflowDefinition
}

// New constructs a Registry over db and performs an initial Reload.
func New(db *sql.DB) (*Registry, error) {
	r := &Registry{db: db}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rebuilds the in-memory snapshot from the database and swaps it in atomically; readers
// that are mid-request keep using the snapshot they already loaded.
func (r *Registry) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := &snapshot{
		entities:     make(map[string]*model.Entity),
		relations:    make(map[string][]*model.Relation),
		rules:        make(map[string][]*model.Rule),
		machines:     make(map[string][]*model.StateMachine),
		webhooks:     make(map[string][]*model.Webhook),
		webhooksByID: make(map[string]*model.Webhook),
		workflows:    make(map[string][]*model.WorkflowDefinition),
		workflowByID: make(map[string]*model.WorkflowDefinition),
	}

	if err := loadJSONRows(r.db, "SELECT definition FROM _entities", func(raw []byte) error {
		var e model.Entity
		if err := json.Unmarshal(raw, &e); err != nil {
			return err
		}
		next.entities[e.Name] = &e
		return nil
	}); err != nil {
		return fmt.Errorf("failed to load entities: %w", err)
	}

	if err := loadJSONRows(r.db, "SELECT definition FROM _relations", func(raw []byte) error {
		var rel model.Relation
		if err := json.Unmarshal(raw, &rel); err != nil {
			return err
		}
		next.relations[rel.SourceEntity] = append(next.relations[rel.SourceEntity], &rel)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to load relations: %w", err)
	}

	if err := loadJSONRows(r.db, "SELECT definition FROM _rules", func(raw []byte) error {
		var rule model.Rule
		if err := json.Unmarshal(raw, &rule); err != nil {
			return err
		}
		next.rules[rule.Entity] = append(next.rules[rule.Entity], &rule)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	if err := loadJSONRows(r.db, "SELECT definition FROM _state_machines", func(raw []byte) error {
		var sm model.StateMachine
		if err := json.Unmarshal(raw, &sm); err != nil {
			return err
		}
		next.machines[sm.Entity] = append(next.machines[sm.Entity], &sm)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to load state machines: %w", err)
	}

	if err := loadJSONRows(r.db, "SELECT definition FROM _webhooks", func(raw []byte) error {
		var w model.Webhook
		if err := json.Unmarshal(raw, &w); err != nil {
			return err
		}
		next.webhooks[w.Entity] = append(next.webhooks[w.Entity], &w)
		next.webhooksByID[w.ID] = &w
		return nil
	}); err != nil {
		return fmt.Errorf("failed to load webhooks: %w", err)
	}

	if err := loadJSONRows(r.db, "SELECT definition FROM _workflow_definitions", func(raw []byte) error {
		var wf model.WorkflowDefinition
		if err := json.Unmarshal(raw, &wf); err != nil {
			return err
		}
		next.workflows[wf.Trigger.Entity] = append(next.workflows[wf.Trigger.Entity], &wf)
		next.workflowByID[wf.ID] = &wf
		return nil
	}); err != nil {
		return fmt.Errorf("failed to load workflow definitions: %w", err)
	}

	r.snapshot.Store(next)
	return nil
}

func loadJSONRows(db *sql.DB, query string, handle func([]byte) error) error {
	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		if err := handle(raw); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Entity returns the entity descriptor by name, or nil if unregistered.
func (r *Registry) Entity(name string) *model.Entity {
	return r.snapshot.Load().entities[name]
}

// RelationsFor returns the relations whose source is entity.
func (r *Registry) RelationsFor(entity string) []*model.Relation {
	return r.snapshot.Load().relations[entity]
}

// RulesFor returns the rules attached to entity.
func (r *Registry) RulesFor(entity string) []*model.Rule {
	return r.snapshot.Load().rules[entity]
}

// StateMachinesFor returns the state machines attached to entity.
func (r *Registry) StateMachinesFor(entity string) []*model.StateMachine {
	return r.snapshot.Load().machines[entity]
}

// WebhooksFor returns the webhooks registered for (entity, hook).
func (r *Registry) WebhooksFor(entity string, hook model.Hook) []*model.Webhook {
	var out []*model.Webhook
	for _, w := range r.snapshot.Load().webhooks[entity] {
		if w.Hook == hook {
			out = append(out, w)
		}
	}
	return out
}

// WebhookByID returns a webhook by id, or nil.
func (r *Registry) WebhookByID(id string) *model.Webhook {
	return r.snapshot.Load().webhooksByID[id]
}

// Webhooks returns every registered webhook, for the admin listing endpoint.
func (r *Registry) Webhooks() []*model.Webhook {
	byID := r.snapshot.Load().webhooksByID
	out := make([]*model.Webhook, 0, len(byID))
	for _, w := range byID {
		out = append(out, w)
	}
	return out
}

// WorkflowsFor returns workflow definitions whose trigger matches (entity, field, toState).
func (r *Registry) WorkflowsFor(entity, field, toState string) []*model.WorkflowDefinition {
	var out []*model.WorkflowDefinition
	for _, wf := range r.snapshot.Load().workflows[entity] {
		if wf.Trigger.StateField == field && wf.Trigger.ToState == toState {
			out = append(out, wf)
		}
	}
	return out
}

// WorkflowByID returns a workflow definition by id, or nil.
func (r *Registry) WorkflowByID(id string) *model.WorkflowDefinition {
	return r.snapshot.Load().workflowByID[id]
}
