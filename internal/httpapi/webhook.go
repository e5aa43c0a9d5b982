package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rocketcore/internal/apperr"
	"rocketcore/pkg/model"
)

// webhookPayload is the JSON shape §6's webhook admin endpoints accept; model.Webhook itself
// carries an unexported compiled-condition cache that shouldn't round-trip through the wire.
type webhookPayload struct {
	Entity      string            `json:"entity" binding:"required"`
	Hook        string            `json:"hook" binding:"required"`
	Method      string            `json:"method"`
	URL         string            `json:"url" binding:"required"`
	Headers     map[string]string `json:"headers"`
	Async       bool              `json:"async"`
	Condition   string            `json:"condition"`
	MaxAttempts int               `json:"max_attempts"`
}

func toWebhookResponse(w *model.Webhook) gin.H {
	return gin.H{
		"id": w.ID, "entity": w.Entity, "hook": w.Hook, "method": w.Method, "url": w.URL,
		"headers": w.Headers, "async": w.Async, "condition": w.Condition, "max_attempts": w.MaxAttempts,
	}
}

// listWebhooks returns every registered webhook.
func (s *Server) listWebhooks(c *gin.Context) {
	webhooks := s.Registry.Webhooks()
	out := make([]gin.H, 0, len(webhooks))
	for _, w := range webhooks {
		out = append(out, toWebhookResponse(w))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// createWebhook registers a new webhook.
func (s *Server) createWebhook(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, apperr.New(apperr.CodeInvalidPayload, "invalid webhook payload: "+err.Error()))
		return
	}

	w := &model.Webhook{
		ID: uuid.NewString(), Entity: payload.Entity, Hook: model.Hook(payload.Hook),
		Method: payload.Method, URL: payload.URL, Headers: payload.Headers,
		Async: payload.Async, Condition: payload.Condition, MaxAttempts: payload.MaxAttempts,
	}
	if w.Method == "" {
		w.Method = http.MethodPost
	}
	if w.MaxAttempts == 0 {
		w.MaxAttempts = 5
	}

	if err := s.Registry.PutWebhook(w); err != nil {
		writeError(c, apperr.Wrap(apperr.CodeInternal, "failed to register webhook", err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": toWebhookResponse(w)})
}

// updateWebhook replaces an existing webhook's definition.
func (s *Server) updateWebhook(c *gin.Context) {
	id := c.Param("id")
	if s.Registry.WebhookByID(id) == nil {
		writeError(c, apperr.New(apperr.CodeNotFound, "webhook "+id+" not found"))
		return
	}

	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, apperr.New(apperr.CodeInvalidPayload, "invalid webhook payload: "+err.Error()))
		return
	}

	w := &model.Webhook{
		ID: id, Entity: payload.Entity, Hook: model.Hook(payload.Hook),
		Method: payload.Method, URL: payload.URL, Headers: payload.Headers,
		Async: payload.Async, Condition: payload.Condition, MaxAttempts: payload.MaxAttempts,
	}
	if w.Method == "" {
		w.Method = http.MethodPost
	}
	if w.MaxAttempts == 0 {
		w.MaxAttempts = 5
	}

	if err := s.Registry.PutWebhook(w); err != nil {
		writeError(c, apperr.Wrap(apperr.CodeInternal, "failed to update webhook", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toWebhookResponse(w)})
}

// deleteWebhook removes a webhook registration.
func (s *Server) deleteWebhook(c *gin.Context) {
	id := c.Param("id")
	if s.Registry.WebhookByID(id) == nil {
		writeError(c, apperr.New(apperr.CodeNotFound, "webhook "+id+" not found"))
		return
	}
	if err := s.Registry.DeleteWebhook(id); err != nil {
		writeError(c, apperr.Wrap(apperr.CodeInternal, "failed to delete webhook", err))
		return
	}
	c.Status(http.StatusNoContent)
}
