package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocketcore/internal/storage"
	"rocketcore/pkg/model"
)

type fakeRegistry struct {
	defs []*model.WorkflowDefinition
}

func (f *fakeRegistry) WorkflowsFor(entity, field, toState string) []*model.WorkflowDefinition {
	var out []*model.WorkflowDefinition
	for _, d := range f.defs {
		if d.Trigger.Entity == entity && d.Trigger.StateField == field && d.Trigger.ToState == toState {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeRegistry) WorkflowByID(id string) *model.WorkflowDefinition {
	for _, d := range f.defs {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func conditionWorkflow() *model.WorkflowDefinition {
	return &model.WorkflowDefinition{
		ID: "wf1", Name: "invoice-approval",
		Trigger: model.Trigger{Entity: "invoices", StateField: "status", ToState: "submitted"},
		Context: map[string]string{"amount": "trigger.record.total", "record_id": "trigger.record_id"},
		Steps: []model.Step{
			{ID: "check_amount", Kind: model.StepCondition, Expression: "context.amount < 1000", OnTrue: "auto_approve", OnFalse: "manual_approval"},
			{ID: "auto_approve", Kind: model.StepAction, Actions: []model.WorkflowAction{
				{Kind: model.ActionSetField, Path: "context.record_id", Field: "approved_at", Value: "now"},
			}, Then: model.GotoEnd},
			{ID: "manual_approval", Kind: model.StepApproval, Timeout: "24h", OnApprove: model.GotoEnd, OnReject: model.GotoEnd},
		},
	}
}

func TestEngine_Trigger_ConditionAutoApproves(t *testing.T) {
	ctx := context.Background()
	db := storage.NewTest(t)
	_, err := db.Conn().Exec("INSERT INTO invoices (id, customer_name, total, created_at, updated_at) VALUES ('inv1', 'Acme', 500, datetime('now'), datetime('now'))")
	require.NoError(t, err)

	store := NewStore(db.Conn())
	reg := &fakeRegistry{defs: []*model.WorkflowDefinition{conditionWorkflow()}}
	e := NewEngine(db.Conn(), store, reg, nil, nil)

	e.Trigger(ctx, "invoices", "status", "submitted", map[string]interface{}{"total": 500.0}, "inv1")

	var approvedAt *string
	require.NoError(t, db.Conn().QueryRow("SELECT approved_at FROM invoices WHERE id = 'inv1'").Scan(&approvedAt))
	assert.NotNil(t, approvedAt)
}

func TestEngine_Trigger_ConditionPausesForApproval(t *testing.T) {
	ctx := context.Background()
	db := storage.NewTest(t)
	_, err := db.Conn().Exec("INSERT INTO invoices (id, customer_name, total, created_at, updated_at) VALUES ('inv2', 'Acme', 5000, datetime('now'), datetime('now'))")
	require.NoError(t, err)

	store := NewStore(db.Conn())
	reg := &fakeRegistry{defs: []*model.WorkflowDefinition{conditionWorkflow()}}
	e := NewEngine(db.Conn(), store, reg, nil, nil)

	e.Trigger(ctx, "invoices", "status", "submitted", map[string]interface{}{"total": 5000.0}, "inv2")

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "manual_approval", pending[0].CurrentStep)
	assert.NotNil(t, pending[0].Deadline)
}

func TestEngine_ResolveAction_ApprovalCompletes(t *testing.T) {
	ctx := context.Background()
	db := storage.NewTest(t)
	_, err := db.Conn().Exec("INSERT INTO invoices (id, customer_name, total, created_at, updated_at) VALUES ('inv3', 'Acme', 5000, datetime('now'), datetime('now'))")
	require.NoError(t, err)

	store := NewStore(db.Conn())
	reg := &fakeRegistry{defs: []*model.WorkflowDefinition{conditionWorkflow()}}
	e := NewEngine(db.Conn(), store, reg, nil, nil)

	e.Trigger(ctx, "invoices", "status", "submitted", map[string]interface{}{"total": 5000.0}, "inv3")
	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	updated, err := e.ResolveAction(ctx, pending[0].ID, Approved, "user-1")
	require.NoError(t, err)
	assert.Equal(t, model.InstanceCompleted, updated.Status)
}

func TestEngine_ResolveAction_RequiresRunning(t *testing.T) {
	ctx := context.Background()
	db := storage.NewTest(t)
	store := NewStore(db.Conn())
	reg := &fakeRegistry{defs: []*model.WorkflowDefinition{conditionWorkflow()}}
	e := NewEngine(db.Conn(), store, reg, nil, nil)

	def := conditionWorkflow()
	inst, err := store.Create(ctx, def, map[string]interface{}{})
	require.NoError(t, err)
	inst.Status = model.InstanceCompleted
	require.NoError(t, store.Save(ctx, inst))

	_, err = e.ResolveAction(ctx, inst.ID, Approved, "user-1")
	assert.Error(t, err)
}

func TestHandleTimeouts_MarksFailedWhenNoOnTimeout(t *testing.T) {
	ctx := context.Background()
	db := storage.NewTest(t)
	store := NewStore(db.Conn())

	def := &model.WorkflowDefinition{
		ID: "wf2", Name: "expiring",
		Trigger: model.Trigger{Entity: "invoices", StateField: "status", ToState: "submitted"},
		Steps: []model.Step{
			{ID: "wait", Kind: model.StepApproval, Timeout: "1s"},
		},
	}
	reg := &fakeRegistry{defs: []*model.WorkflowDefinition{def}}
	e := NewEngine(db.Conn(), store, reg, nil, nil)

	inst, err := store.Create(ctx, def, map[string]interface{}{})
	require.NoError(t, err)
	e.Advance(ctx, inst, def)

	past := time.Now().UTC().Add(-time.Hour)
	inst2, err := store.Get(ctx, inst.ID)
	require.NoError(t, err)
	inst2.Deadline = &past
	require.NoError(t, store.Save(ctx, inst2))

	e.HandleTimeouts(ctx, time.Now().UTC())

	reloaded, err := store.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InstanceFailed, reloaded.Status)
}
