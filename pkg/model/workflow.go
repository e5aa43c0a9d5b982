package model

import "time"

// StepKind is the kind of behavior a workflow step performs.
type StepKind string

const (
	StepAction    StepKind = "action"
	StepCondition StepKind = "condition"
	StepApproval  StepKind = "approval"
)

// GotoEnd is the terminal sentinel a step's goto may resolve to.
const GotoEnd = "end"

// WorkflowAction is one action executed by an action step. Reuses model.ActionKind: only
// set_field has persistence semantics in scope; webhook/create_record/send_event are
// recognized and logged, per §4.9.
type WorkflowAction struct {
	Kind  ActionKind
	Path  string // set_field: dot-path into {context: instance.context} resolving to the id of the record to update
	Field string
	Value string
}

// Step is one node of a workflow definition.
type Step struct {
	ID   string
	Kind StepKind

	// action step
	Actions []WorkflowAction
	Then    string

	// condition step
	Expression string
	OnTrue     string
	OnFalse    string

	// approval step
	Timeout   string // duration string, e.g. "24h"
	OnApprove string
	OnReject  string
	OnTimeout string
}

// Trigger names the (entity, state field, target state) tuple that instantiates a workflow.
type Trigger struct {
	Entity     string
	StateField string
	ToState    string
}

// WorkflowDefinition is a registered, versioned workflow.
type WorkflowDefinition struct {
	ID      string
	Name    string
	Trigger Trigger
	// Context maps a context key to a dot-path into {trigger.record_id, trigger.record}.
	Context map[string]string
	Steps   []Step
}

// StepByID returns the step with the given id, or nil if none.
func (d *WorkflowDefinition) StepByID(id string) *Step {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

// InstanceStatus is the lifecycle status of a workflow instance.
type InstanceStatus string

const (
	InstanceRunning   InstanceStatus = "running"
	InstanceCompleted InstanceStatus = "completed"
	InstanceFailed    InstanceStatus = "failed"
)

// HistoryEntry is one append-only record of a workflow instance's progress.
type HistoryEntry struct {
	Step   string    `json:"step"`
	Status string    `json:"status"`
	Actor  string    `json:"actor,omitempty"`
	At     time.Time `json:"at"`
}

// Instance is a persisted workflow execution.
type Instance struct {
	ID           string
	WorkflowID   string
	WorkflowName string
	Status       InstanceStatus
	CurrentStep  string
	Deadline     *time.Time
	Context      map[string]interface{}
	History      []HistoryEntry
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
