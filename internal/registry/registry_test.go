package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocketcore/internal/storage"
	"rocketcore/pkg/model"
)

func TestRegistry_PutAndLookupEntity(t *testing.T) {
	db := storage.NewTest(t)
	reg, err := New(db.Conn())
	require.NoError(t, err)

	entity := &model.Entity{
		Name:       "invoices",
		PrimaryKey: "id",
		Fields: []model.Field{
			{Name: "id", Type: model.FieldUUID},
		},
	}
	require.NoError(t, reg.PutEntity(entity))

	got := reg.Entity("invoices")
	require.NotNil(t, got)
	assert.Equal(t, "invoices", got.Name)
}

func TestRegistry_WebhooksFor_FiltersByHook(t *testing.T) {
	db := storage.NewTest(t)
	reg, err := New(db.Conn())
	require.NoError(t, err)

	require.NoError(t, reg.PutWebhook(&model.Webhook{ID: "w1", Entity: "invoices", Hook: model.HookAfterWrite, Method: "POST", URL: "http://example.com"}))
	require.NoError(t, reg.PutWebhook(&model.Webhook{ID: "w2", Entity: "invoices", Hook: model.HookBeforeWrite, Method: "POST", URL: "http://example.com"}))

	after := reg.WebhooksFor("invoices", model.HookAfterWrite)
	require.Len(t, after, 1)
	assert.Equal(t, "w1", after[0].ID)

	assert.NotNil(t, reg.WebhookByID("w2"))
	assert.Nil(t, reg.WebhookByID("nope"))
}

func TestRegistry_WorkflowsFor_MatchesTrigger(t *testing.T) {
	db := storage.NewTest(t)
	reg, err := New(db.Conn())
	require.NoError(t, err)

	wf := &model.WorkflowDefinition{
		ID:   "wf1",
		Name: "invoice-approval",
		Trigger: model.Trigger{Entity: "invoices", StateField: "status", ToState: "approved"},
	}
	require.NoError(t, reg.PutWorkflowDefinition(wf))

	matches := reg.WorkflowsFor("invoices", "status", "approved")
	require.Len(t, matches, 1)
	assert.Equal(t, "wf1", matches[0].ID)

	assert.Empty(t, reg.WorkflowsFor("invoices", "status", "rejected"))
}

func TestRegistry_Reload_ReplacesEntityOnUpdate(t *testing.T) {
	db := storage.NewTest(t)
	reg, err := New(db.Conn())
	require.NoError(t, err)

	e := &model.Entity{Name: "invoices", PrimaryKey: "id", Fields: []model.Field{{Name: "id", Type: model.FieldUUID}}}
	require.NoError(t, reg.PutEntity(e))

	e.Fields = append(e.Fields, model.Field{Name: "total", Type: model.FieldFloat})
	require.NoError(t, reg.PutEntity(e))

	got := reg.Entity("invoices")
	require.Len(t, got.Fields, 2)
}
