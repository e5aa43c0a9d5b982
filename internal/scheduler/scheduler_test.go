package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocketcore/internal/storage"
	"rocketcore/internal/webhookdispatch"
	"rocketcore/internal/workflow"
	"rocketcore/pkg/model"
)

type fakeWorkflowRegistry struct{}

func (fakeWorkflowRegistry) WorkflowsFor(entity, field, toState string) []*model.WorkflowDefinition {
	return nil
}

func (fakeWorkflowRegistry) WorkflowByID(id string) *model.WorkflowDefinition { return nil }

func TestScheduler_StartStop_Idempotent(t *testing.T) {
	db := storage.NewTest(t)
	d := webhookdispatch.NewDispatcher(db.Conn(), noopRegistry{}, nil)
	store := workflow.NewStore(db.Conn())
	engine := workflow.NewEngine(db.Conn(), store, fakeWorkflowRegistry{}, d, nil)

	s := New(d, engine, nil)
	require.NoError(t, s.Start())
	require.NoError(t, s.Start())

	assert.NotPanics(t, func() {
		s.Stop()
		s.Stop()
	})
}
