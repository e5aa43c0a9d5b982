package webhookdispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"rocketcore/internal/apperr"
	"rocketcore/pkg/model"
)

// FireSync iterates non-async webhooks registered for (entity, hook), evaluates each
// condition, dispatches, and logs within tx. Returns the first failure, which the caller
// must use to abort and roll back the pipeline transaction.
func (d *Dispatcher) FireSync(ctx context.Context, tx Execer, entity string, hook model.Hook, action string, record, old map[string]interface{}, user *model.User) error {
	for _, w := range d.Registry.WebhooksFor(entity, hook) {
		if w.Async {
			continue
		}
		if err := d.fireOne(ctx, tx, w, action, record, old, user); err != nil {
			return err
		}
	}
	return nil
}

// FireAsync iterates async webhooks registered for (entity, hook), launching each dispatch on
// its own goroutine against the shared pool; it never blocks the caller and logs any failure
// rather than returning it.
func (d *Dispatcher) FireAsync(entity string, hook model.Hook, action string, record, old map[string]interface{}, user *model.User) {
	for _, w := range d.Registry.WebhooksFor(entity, hook) {
		if !w.Async {
			continue
		}
		w := w
		go func() {
			ctx := context.Background()
			if err := d.fireOne(ctx, d.DB, w, action, record, old, user); err != nil {
				d.logf("async webhook %s failed: %v", w.ID, err)
			}
		}()
	}
}

// FireAsync by webhook id (as used by state-machine transition actions) builds a minimal
// payload from the current field set and fires without a before/after distinction.
func (d *Dispatcher) FireAsyncByID(webhookID string, record map[string]interface{}) {
	w := d.Registry.WebhookByID(webhookID)
	if w == nil {
		d.logf("state machine action referenced unknown webhook %q", webhookID)
		return
	}
	go func() {
		ctx := context.Background()
		if err := d.fireOne(ctx, d.DB, w, "update", record, nil, nil); err != nil {
			d.logf("transition webhook %s failed: %v", w.ID, err)
		}
	}()
}

func (d *Dispatcher) fireOne(ctx context.Context, exec Execer, w *model.Webhook, action string, record, old map[string]interface{}, user *model.User) error {
	payload := BuildPayload(w.Hook, w.Entity, action, record, old, user, "")

	ok, err := EvaluateCondition(w, payload)
	if err != nil {
		return apperr.Wrap(apperr.CodeWebhookFailed, fmt.Sprintf("webhook %s condition error", w.ID), err)
	}
	if !ok {
		return nil
	}

	headers := ResolveHeaders(w.Headers)
	bodyJSON, err := json.Marshal(payload)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to marshal webhook payload", err)
	}

	result := d.Dispatch(ctx, w.Method, w.URL, headers, bodyJSON)

	if logErr := LogDelivery(ctx, exec, w, payload, headers, result); logErr != nil {
		d.logf("failed to log webhook delivery for %s: %v", w.ID, logErr)
	}

	if result.Err != nil {
		return apperr.Wrap(apperr.CodeWebhookFailed, fmt.Sprintf("webhook %s dispatch failed", w.ID), result.Err)
	}
	if result.Status < 200 || result.Status >= 300 {
		return apperr.New(apperr.CodeWebhookFailed, fmt.Sprintf("webhook %s returned status %d", w.ID, result.Status))
	}
	return nil
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}
