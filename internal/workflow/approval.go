package workflow

import (
	"context"
	"time"

	"rocketcore/internal/apperr"
	"rocketcore/pkg/model"
)

// ApprovalAction is the resolution of a paused approval step.
type ApprovalAction string

const (
	Approved ApprovalAction = "approved"
	Rejected ApprovalAction = "rejected"
)

// ResolveAction implements §4.9's resolveAction: the instance must be running and currently
// paused on an approval step. Appends history, clears the deadline, and either completes the
// instance or advances it to the next step.
func (e *Engine) ResolveAction(ctx context.Context, instanceID string, action ApprovalAction, userID string) (*model.Instance, error) {
	inst, err := e.Store.Get(ctx, instanceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeNotFound, "workflow instance not found", err)
	}
	if inst.Status != model.InstanceRunning {
		return nil, apperr.New(apperr.CodeInvalidState, "workflow instance is not running")
	}

	def := e.Registry.WorkflowByID(inst.WorkflowID)
	if def == nil {
		return nil, apperr.New(apperr.CodeInternal, "workflow definition not found")
	}
	step := def.StepByID(inst.CurrentStep)
	if step == nil || step.Kind != model.StepApproval {
		return nil, apperr.New(apperr.CodeInvalidState, "current step is not an approval step")
	}

	inst.History = append(inst.History, model.HistoryEntry{
		Step: step.ID, Status: string(action), Actor: userID, At: time.Now().UTC(),
	})
	inst.Deadline = nil

	next := step.OnReject
	if action == Approved {
		next = step.OnApprove
	}

	if next == "" || next == model.GotoEnd {
		inst.Status = model.InstanceCompleted
		inst.CurrentStep = ""
		if err := e.Store.Save(ctx, inst); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "failed to persist workflow instance", err)
		}
		return inst, nil
	}

	inst.CurrentStep = next
	if err := e.Store.Save(ctx, inst); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to persist workflow instance", err)
	}
	e.Advance(ctx, inst, def)

	reloaded, err := e.Store.Get(ctx, instanceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to reload workflow instance", err)
	}
	return reloaded, nil
}

// HandleTimeouts implements §4.10: resolves every running instance whose deadline has passed,
// transitioning via on_timeout.
func (e *Engine) HandleTimeouts(ctx context.Context, now time.Time) {
	instances, err := e.Store.TimedOut(ctx, now)
	if err != nil {
		e.logf("failed to query timed-out workflow instances: %v", err)
		return
	}
	for _, inst := range instances {
		e.handleTimeout(ctx, inst)
	}
}

func (e *Engine) handleTimeout(ctx context.Context, inst *model.Instance) {
	def := e.Registry.WorkflowByID(inst.WorkflowID)
	if def == nil {
		e.logf("timeout: unknown workflow definition %s for instance %s", inst.WorkflowID, inst.ID)
		return
	}
	step := def.StepByID(inst.CurrentStep)
	if step == nil || step.Kind != model.StepApproval {
		return
	}

	inst.History = append(inst.History, model.HistoryEntry{Step: step.ID, Status: "timed_out", At: time.Now().UTC()})
	inst.Deadline = nil

	switch {
	case step.OnTimeout == "":
		inst.Status = model.InstanceFailed
		if err := e.Store.Save(ctx, inst); err != nil {
			e.logf("failed to persist timed-out workflow instance %s: %v", inst.ID, err)
		}
	case step.OnTimeout == model.GotoEnd:
		inst.Status = model.InstanceCompleted
		inst.CurrentStep = ""
		if err := e.Store.Save(ctx, inst); err != nil {
			e.logf("failed to persist timed-out workflow instance %s: %v", inst.ID, err)
		}
	default:
		inst.CurrentStep = step.OnTimeout
		if err := e.Store.Save(ctx, inst); err != nil {
			e.logf("failed to persist timed-out workflow instance %s: %v", inst.ID, err)
			return
		}
		e.Advance(ctx, inst, def)
	}
}
