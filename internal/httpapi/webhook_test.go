package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookAdminCRUD(t *testing.T) {
	s := setupServer(t)

	createRec := doJSON(t, s, http.MethodPost, "/_webhooks", map[string]interface{}{
		"entity": "widgets", "hook": "after_write", "url": "https://example.com/hook",
	})
	require.Equal(t, http.StatusCreated, createRec.Code)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	data := created["data"].(map[string]interface{})
	id := data["id"].(string)
	assert.Equal(t, "POST", data["method"])

	listRec := doJSON(t, s, http.MethodGet, "/_webhooks", nil)
	require.Equal(t, http.StatusOK, listRec.Code)
	var listed map[string]interface{}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listed))
	assert.Len(t, listed["data"], 1)

	updateRec := doJSON(t, s, http.MethodPut, "/_webhooks/"+id, map[string]interface{}{
		"entity": "widgets", "hook": "before_write", "url": "https://example.com/hook2",
	})
	require.Equal(t, http.StatusOK, updateRec.Code)

	deleteRec := doJSON(t, s, http.MethodDelete, "/_webhooks/"+id, nil)
	assert.Equal(t, http.StatusNoContent, deleteRec.Code)

	getMissing := doJSON(t, s, http.MethodDelete, "/_webhooks/"+id, nil)
	assert.Equal(t, http.StatusNotFound, getMissing.Code)
}
