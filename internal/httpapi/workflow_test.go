package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocketcore/pkg/model"
)

func setupServerWithInvoiceWorkflow(t *testing.T) *Server {
	t.Helper()
	s := setupServer(t)

	require.NoError(t, s.Registry.PutStateMachine(&model.StateMachine{
		ID: "sm-invoices", Entity: "invoices", StateField: "status", Initial: "draft", Active: true,
		Transitions: []model.Transition{{From: []string{"draft"}, To: "submitted"}},
	}))

	require.NoError(t, s.Registry.PutWorkflowDefinition(&model.WorkflowDefinition{
		ID: "wf-invoice-review", Name: "invoice-review",
		Trigger: model.Trigger{Entity: "invoices", StateField: "status", ToState: "submitted"},
		Steps: []model.Step{
			{ID: "review", Kind: model.StepApproval, Timeout: "24h", OnApprove: model.GotoEnd, OnReject: model.GotoEnd},
		},
	}))

	return s
}

func TestWorkflow_TriggerAndApprove(t *testing.T) {
	s := setupServerWithInvoiceWorkflow(t)

	createRec := doJSON(t, s, http.MethodPost, "/invoices", map[string]interface{}{
		"customer_name": "Acme", "total": 100.0, "status": "draft",
	})
	require.Equal(t, http.StatusCreated, createRec.Code)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	id := created["data"].(map[string]interface{})["id"].(string)

	updateRec := doJSON(t, s, http.MethodPut, "/invoices/"+id, map[string]interface{}{
		"customer_name": "Acme", "total": 100.0, "status": "submitted",
	})
	require.Equal(t, http.StatusOK, updateRec.Code)

	pendingRec := doJSON(t, s, http.MethodGet, "/_workflows/pending", nil)
	require.Equal(t, http.StatusOK, pendingRec.Code)
	var pending map[string]interface{}
	require.NoError(t, json.Unmarshal(pendingRec.Body.Bytes(), &pending))
	instances := pending["data"].([]interface{})
	require.Len(t, instances, 1)
	instID := instances[0].(map[string]interface{})["ID"].(string)

	getRec := doJSON(t, s, http.MethodGet, "/_workflows/"+instID, nil)
	require.Equal(t, http.StatusOK, getRec.Code)

	approveRec := doJSON(t, s, http.MethodPost, "/_workflows/"+instID+"/approve", nil)
	require.Equal(t, http.StatusOK, approveRec.Code)
	var approved map[string]interface{}
	require.NoError(t, json.Unmarshal(approveRec.Body.Bytes(), &approved))
	data := approved["data"].(map[string]interface{})
	assert.Equal(t, "completed", data["Status"])

	history := data["History"].([]interface{})
	last := history[len(history)-1].(map[string]interface{})
	assert.Equal(t, "anonymous", last["actor"])
}

func TestWorkflow_GetInstance_NotFound(t *testing.T) {
	s := setupServerWithInvoiceWorkflow(t)
	rec := doJSON(t, s, http.MethodGet, "/_workflows/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
