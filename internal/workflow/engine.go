package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"time"

	"rocketcore/internal/expr"
	"rocketcore/internal/metrics"
	"rocketcore/internal/webhookdispatch"
	"rocketcore/pkg/model"
)

// Registry is the subset of internal/registry.Registry the workflow engine depends on.
type Registry interface {
	WorkflowsFor(entity, field, toState string) []*model.WorkflowDefinition
	WorkflowByID(id string) *model.WorkflowDefinition
}

// Engine implements §4.9's trigger/advance/resolveAction operations.
type Engine struct {
	DB         *sql.DB
	Store      *Store
	Registry   Registry
	Dispatcher *webhookdispatch.Dispatcher
	Logger     *log.Logger
}

// NewEngine constructs a workflow Engine.
func NewEngine(db *sql.DB, store *Store, registry Registry, dispatcher *webhookdispatch.Dispatcher, logger *log.Logger) *Engine {
	return &Engine{DB: db, Store: store, Registry: registry, Dispatcher: dispatcher, Logger: logger}
}

// Trigger looks up workflows matching (entity, field, to) and instantiates+advances one
// instance per match. Errors are logged, never returned — per §4.6 step 11, workflow triggers
// are fire-and-forget from the caller's perspective.
func (e *Engine) Trigger(ctx context.Context, entity, field, to string, record map[string]interface{}, recordID string) {
	for _, def := range e.Registry.WorkflowsFor(entity, field, to) {
		instCtx := e.buildContext(def, record, recordID)
		inst, err := e.Store.Create(ctx, def, instCtx)
		if err != nil {
			e.logf("failed to create workflow instance for %s: %v", def.ID, err)
			continue
		}
		metrics.WorkflowInstancesStarted.WithLabelValues(entity, def.Name).Inc()
		e.Advance(ctx, inst, def)
	}
}

func (e *Engine) buildContext(def *model.WorkflowDefinition, record map[string]interface{}, recordID string) map[string]interface{} {
	trigger := map[string]interface{}{"record_id": recordID, "record": record}
	root := map[string]interface{}{"trigger": trigger}

	out := make(map[string]interface{}, len(def.Context))
	for key, path := range def.Context {
		v, _ := expr.GetNestedValue(root, path)
		out[key] = v
	}
	return out
}

// Advance runs the loop described in §4.9 until the instance pauses (at an approval step,
// with a deadline when the step has a timeout) or reaches a terminal status.
func (e *Engine) Advance(ctx context.Context, inst *model.Instance, def *model.WorkflowDefinition) {
	for inst.Status == model.InstanceRunning {
		step := def.StepByID(inst.CurrentStep)
		if step == nil {
			e.fail(ctx, inst, fmt.Sprintf("step %q not found", inst.CurrentStep))
			return
		}

		next, paused, err := e.runStep(ctx, inst, step)
		if err != nil {
			e.fail(ctx, inst, err.Error())
			return
		}
		if paused {
			if err := e.Store.Save(ctx, inst); err != nil {
				e.logf("failed to save paused workflow instance %s: %v", inst.ID, err)
			}
			return
		}

		if next == "" || next == model.GotoEnd {
			inst.Status = model.InstanceCompleted
			inst.CurrentStep = ""
			e.persist(ctx, inst, def)
			return
		}
		inst.CurrentStep = next
	}
	e.persist(ctx, inst, def)
}

func (e *Engine) runStep(ctx context.Context, inst *model.Instance, step *model.Step) (next string, paused bool, err error) {
	switch step.Kind {
	case model.StepAction:
		for _, a := range step.Actions {
			e.runAction(ctx, inst, a)
		}
		inst.History = append(inst.History, model.HistoryEntry{Step: step.ID, Status: "completed", At: time.Now().UTC()})
		return step.Then, false, nil

	case model.StepCondition:
		c, compileErr := expr.Compile(step.Expression)
		if compileErr != nil {
			return "", false, fmt.Errorf("condition step %s: %w", step.ID, compileErr)
		}
		ok, evalErr := expr.EvaluateBool(c, expr.Env{"context": inst.Context})
		if evalErr != nil {
			return "", false, fmt.Errorf("condition step %s: %w", step.ID, evalErr)
		}
		if ok {
			inst.History = append(inst.History, model.HistoryEntry{Step: step.ID, Status: "on_true", At: time.Now().UTC()})
			return step.OnTrue, false, nil
		}
		inst.History = append(inst.History, model.HistoryEntry{Step: step.ID, Status: "on_false", At: time.Now().UTC()})
		return step.OnFalse, false, nil

	case model.StepApproval:
		if step.Timeout != "" {
			d, parseErr := parseDuration(step.Timeout)
			if parseErr != nil {
				return "", false, fmt.Errorf("approval step %s: %w", step.ID, parseErr)
			}
			deadline := time.Now().UTC().Add(d)
			inst.Deadline = &deadline
		}
		return "", true, nil

	default:
		return "", false, fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

var durationPattern = regexp.MustCompile(`^(\d+)([hms])$`)

func parseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, err
	}
	switch m[2] {
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	default:
		return time.Duration(n) * time.Second, nil
	}
}

func (e *Engine) runAction(ctx context.Context, inst *model.Instance, a model.WorkflowAction) {
	switch a.Kind {
	case model.ActionSetField:
		e.runSetField(ctx, inst, a)
	case model.ActionWebhook, model.ActionCreateRecord, model.ActionSendEvent:
		e.logf("workflow action %s recognized but not executed (out of scope)", a.Kind)
	default:
		e.logf("unknown workflow action kind %q skipped", a.Kind)
	}
}

func (e *Engine) runSetField(ctx context.Context, inst *model.Instance, a model.WorkflowAction) {
	root := map[string]interface{}{"context": inst.Context}
	recordID, ok := expr.GetNestedValue(root, a.Path)
	if !ok {
		e.logf("set_field action: could not resolve record id at path %q", a.Path)
		return
	}
	recordIDStr, ok := recordID.(string)
	if !ok {
		e.logf("set_field action: record id at path %q is not a string", a.Path)
		return
	}

	def := e.Registry.WorkflowByID(inst.WorkflowID)
	if def == nil {
		e.logf("set_field action: unknown workflow definition %s", inst.WorkflowID)
		return
	}

	value := a.Value
	if value == "now" {
		value = time.Now().UTC().Format(time.RFC3339)
	}

	query := fmt.Sprintf("UPDATE %s SET %s = ? WHERE id = ?", def.Trigger.Entity, a.Field)
	if _, err := e.DB.ExecContext(ctx, query, value, recordIDStr); err != nil {
		e.logf("set_field action failed on %s.%s: %v", def.Trigger.Entity, a.Field, err)
	}
}

func (e *Engine) fail(ctx context.Context, inst *model.Instance, reason string) {
	inst.Status = model.InstanceFailed
	inst.History = append(inst.History, model.HistoryEntry{Step: inst.CurrentStep, Status: "failed", At: time.Now().UTC()})
	e.logf("workflow instance %s failed: %s", inst.ID, reason)
	if err := e.Store.Save(ctx, inst); err != nil {
		e.logf("failed to persist failed workflow instance %s: %v", inst.ID, err)
	}
	metrics.WorkflowInstancesResolved.WithLabelValues(inst.WorkflowName, "failed").Inc()
}

func (e *Engine) persist(ctx context.Context, inst *model.Instance, def *model.WorkflowDefinition) {
	if err := e.Store.Save(ctx, inst); err != nil {
		e.logf("failed to persist workflow instance %s: %v", inst.ID, err)
	}
	if inst.Status == model.InstanceCompleted {
		name := inst.WorkflowName
		if def != nil {
			name = def.Name
		}
		metrics.WorkflowInstancesResolved.WithLabelValues(name, "completed").Inc()
	}
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}
