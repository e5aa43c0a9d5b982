package model

import "sync"

// ActionKind is the kind of side effect a transition action performs.
type ActionKind string

const (
	ActionSetField     ActionKind = "set_field"
	ActionWebhook      ActionKind = "webhook"
	ActionCreateRecord ActionKind = "create_record" // recognized, no effect in scope
	ActionSendEvent    ActionKind = "send_event"     // recognized, no effect in scope
)

// Action is one step-machine transition action.
type Action struct {
	Kind    ActionKind
	Field   string // set_field
	Value   string // set_field; "now" is special-cased to RFC3339 current time
	Webhook string // webhook action: id of the webhook descriptor to fire
}

// Transition describes one allowed move of a state machine.
type Transition struct {
	From    []string
	To      string
	Guard   string // optional boolean expression source
	Actions []Action

	compileOnce sync.Once
	compiled    interface{}
	compileErr  error
}

// CompiledGuard returns the cached compiled guard expression, compiling on first use.
func (t *Transition) CompiledGuard(compile func(src string) (interface{}, error)) (interface{}, error) {
	if t.Guard == "" {
		return nil, nil
	}
	t.compileOnce.Do(func() {
		t.compiled, t.compileErr = compile(t.Guard)
	})
	return t.compiled, t.compileErr
}

// HasSource reports whether state is among the transition's allowed source states.
func (t *Transition) HasSource(state string) bool {
	for _, s := range t.From {
		if s == state {
			return true
		}
	}
	return false
}

// StateMachine is one state-field governor attached to an entity.
type StateMachine struct {
	ID          string
	Entity      string
	StateField  string
	Initial     string
	Transitions []Transition
	Active      bool
}

// FindTransition returns the transition whose destination is to and whose source set
// contains from, or nil if none matches.
func (sm *StateMachine) FindTransition(from, to string) *Transition {
	for i := range sm.Transitions {
		t := &sm.Transitions[i]
		if t.To == to && t.HasSource(from) {
			return t
		}
	}
	return nil
}
