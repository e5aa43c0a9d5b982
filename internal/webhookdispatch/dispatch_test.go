package webhookdispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocketcore/internal/storage"
	"rocketcore/pkg/model"
)

type fakeRegistry struct {
	webhooks []*model.Webhook
}

func (f *fakeRegistry) WebhooksFor(entity string, hook model.Hook) []*model.Webhook {
	var out []*model.Webhook
	for _, w := range f.webhooks {
		if w.Entity == entity && w.Hook == hook {
			out = append(out, w)
		}
	}
	return out
}

func (f *fakeRegistry) WebhookByID(id string) *model.Webhook {
	for _, w := range f.webhooks {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func TestFireSync_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	db := storage.NewTest(t)
	w := &model.Webhook{ID: "wh1", Entity: "invoices", Hook: model.HookBeforeWrite, Method: http.MethodPost, URL: srv.URL, MaxAttempts: 3}
	reg := &fakeRegistry{webhooks: []*model.Webhook{w}}
	d := NewDispatcher(db.Conn(), reg, nil)

	tx, err := db.Conn().Begin()
	require.NoError(t, err)

	err = d.FireSync(context.Background(), tx, "invoices", model.HookBeforeWrite, "create", map[string]interface{}{"id": "1"}, nil, nil)
	assert.NoError(t, err)
	require.NoError(t, tx.Commit())

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM _webhook_logs WHERE webhook_id = ?", "wh1").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestFireSync_NonSuccessStatus_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	db := storage.NewTest(t)
	w := &model.Webhook{ID: "wh1", Entity: "invoices", Hook: model.HookBeforeWrite, Method: http.MethodPost, URL: srv.URL, MaxAttempts: 1}
	reg := &fakeRegistry{webhooks: []*model.Webhook{w}}
	d := NewDispatcher(db.Conn(), reg, nil)

	tx, err := db.Conn().Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	err = d.FireSync(context.Background(), tx, "invoices", model.HookBeforeWrite, "create", map[string]interface{}{"id": "1"}, nil, nil)
	assert.Error(t, err)
}

func TestEvaluateCondition_EmptyIsTrue(t *testing.T) {
	w := &model.Webhook{}
	ok, err := EvaluateCondition(w, Payload{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateCondition_Expression(t *testing.T) {
	w := &model.Webhook{Condition: "record.total > 100"}
	payload := Payload{Record: map[string]interface{}{"total": 150}}
	ok, err := EvaluateCondition(w, payload)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolveHeaders_EnvSubstitution(t *testing.T) {
	t.Setenv("WEBHOOK_TOKEN", "secret123")
	headers := ResolveHeaders(map[string]string{"Authorization": "Bearer {{env.WEBHOOK_TOKEN}}"})
	assert.Equal(t, "Bearer secret123", headers["Authorization"])
}

func TestBuildPayload_IdempotencyKeyPreservedAcrossRetries(t *testing.T) {
	p1 := BuildPayload(model.HookAfterWrite, "invoices", "update", map[string]interface{}{"id": "1"}, nil, nil, "")
	p2 := BuildPayload(model.HookAfterWrite, "invoices", "update", map[string]interface{}{"id": "1"}, nil, nil, p1.IdempotencyKey)
	assert.Equal(t, p1.IdempotencyKey, p2.IdempotencyKey)
}
