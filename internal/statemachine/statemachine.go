// Package statemachine implements the §4.3 State-Machine Engine: validates and executes state
// transitions for an entity's state-field(s), firing transition actions (set_field, webhook)
// on success. Grounded on station's internal/workflows/runtime/switch_executor.go for guard
// evaluation and dispatch-by-kind shape.
package statemachine

import (
	"fmt"
	"log"
	"time"

	"rocketcore/internal/expr"
	"rocketcore/internal/webhookdispatch"
	"rocketcore/pkg/model"
)

// Engine evaluates state machines for an entity during a write.
type Engine struct {
	Dispatcher *webhookdispatch.Dispatcher
	Logger     *log.Logger
}

// NewEngine constructs a state-machine Engine. dispatcher may be nil in contexts that never
// fire webhook actions (e.g. unit tests).
func NewEngine(dispatcher *webhookdispatch.Dispatcher, logger *log.Logger) *Engine {
	return &Engine{Dispatcher: dispatcher, Logger: logger}
}

// Evaluate runs every active state machine for entity against fields, mutating fields in place
// for set_field actions, and returns accumulated validation issues.
func (e *Engine) Evaluate(machines []*model.StateMachine, fields, old map[string]interface{}, isCreate bool) []model.ValidationIssue {
	var issues []model.ValidationIssue
	for _, sm := range machines {
		if !sm.Active {
			continue
		}
		issues = append(issues, e.evaluateOne(sm, fields, old, isCreate)...)
	}
	return issues
}

func (e *Engine) evaluateOne(sm *model.StateMachine, fields, old map[string]interface{}, isCreate bool) []model.ValidationIssue {
	newVal, present := fields[sm.StateField]
	if !present {
		return nil
	}

	if isCreate {
		if sm.Initial != "" && newVal != sm.Initial {
			return []model.ValidationIssue{{
				Field:   sm.StateField,
				Rule:    "state_machine",
				Message: fmt.Sprintf("expected initial state %q", sm.Initial),
			}}
		}
		return nil
	}

	oldVal, _ := old[sm.StateField]
	if oldVal == newVal {
		return nil
	}

	newStr, _ := newVal.(string)
	oldStr, _ := oldVal.(string)
	t := sm.FindTransition(oldStr, newStr)
	if t == nil {
		return []model.ValidationIssue{{
			Field:   sm.StateField,
			Rule:    "state_machine",
			Message: fmt.Sprintf("Invalid transition from %s to %s", oldStr, newStr),
		}}
	}

	env := expr.Env{"record": fields, "old": old, "action": "update"}
	if t.Guard != "" {
		c, err := t.CompiledGuard(compileFn)
		if err != nil {
			return []model.ValidationIssue{{Rule: "state_machine", Message: fmt.Sprintf("Guard evaluation error: %v", err)}}
		}
		ok, err := expr.EvaluateBool(c.(*expr.Compiled), env)
		if err != nil {
			return []model.ValidationIssue{{Rule: "state_machine", Message: fmt.Sprintf("Guard evaluation error: %v", err)}}
		}
		if !ok {
			return []model.ValidationIssue{{
				Rule:    "state_machine",
				Message: fmt.Sprintf("Transition %s -> %s blocked by guard", oldStr, newStr),
			}}
		}
	}

	e.runActions(t.Actions, fields)
	return nil
}

func (e *Engine) runActions(actions []model.Action, fields map[string]interface{}) {
	for _, a := range actions {
		switch a.Kind {
		case model.ActionSetField:
			if a.Value == "now" {
				fields[a.Field] = time.Now().UTC().Format(time.RFC3339)
			} else {
				fields[a.Field] = a.Value
			}
		case model.ActionWebhook:
			if e.Dispatcher != nil {
				e.Dispatcher.FireAsyncByID(a.Webhook, fields)
			}
		case model.ActionCreateRecord, model.ActionSendEvent:
			// Recognized but inert in scope; logged so the metadata author sees it fired.
			e.logf("action %s recognized but not executed (out of scope)", a.Kind)
		default:
			e.logf("unknown action kind %q skipped", a.Kind)
		}
	}
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}

func compileFn(src string) (interface{}, error) {
	return expr.Compile(src)
}
