// Package webhookdispatch implements §4.7: building webhook payloads, resolving header
// templates, evaluating fire conditions, making the outbound HTTP call behind a circuit
// breaker, and logging the delivery. Grounded on station's internal/notifications/webhook.go
// for the dispatch-with-timeout-and-logging shape, adapted to the generic, metadata-driven
// §4.7 contract instead of the teacher's fixed ApprovalWebhookPayload.
package webhookdispatch

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/google/uuid"

	"rocketcore/pkg/model"
)

// Payload is the §4.7 outbound webhook body shape.
type Payload struct {
	Event          string                 `json:"event"`
	Entity         string                 `json:"entity"`
	Action         string                 `json:"action"`
	Record         map[string]interface{} `json:"record"`
	Old            map[string]interface{} `json:"old,omitempty"`
	Changes        map[string]Change      `json:"changes,omitempty"`
	User           *model.User            `json:"user,omitempty"`
	Timestamp      string                 `json:"timestamp"`
	IdempotencyKey string                 `json:"idempotency_key"`
}

// Change is a single field's before/after value in a payload's changes map.
type Change struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// BuildPayload constructs the §4.7 payload for one webhook firing. idempotencyKey, when
// non-empty, is reused verbatim (the §9 "preserve idempotency key across retries" decision);
// pass "" to generate a fresh "wh_" + uuid key.
func BuildPayload(hook model.Hook, entity, action string, record, old map[string]interface{}, user *model.User, idempotencyKey string) Payload {
	if idempotencyKey == "" {
		idempotencyKey = "wh_" + uuid.NewString()
	}
	p := Payload{
		Event:          string(hook),
		Entity:         entity,
		Action:         action,
		Record:         record,
		User:           user,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		IdempotencyKey: idempotencyKey,
	}
	if old != nil {
		p.Old = old
		p.Changes = diff(record, old)
	}
	return p
}

// diff computes the per-field {old, new} changes over record's keys using string equality.
func diff(record, old map[string]interface{}) map[string]Change {
	changes := make(map[string]Change)
	for k, newVal := range record {
		oldVal := old[k]
		if toString(oldVal) != toString(newVal) {
			changes[k] = Change{Old: oldVal, New: newVal}
		}
	}
	return changes
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

var envTemplate = regexp.MustCompile(`\{\{env\.([A-Za-z0-9_]+)\}\}`)

// ResolveHeaders substitutes every {{env.NAME}} occurrence in headers' values with the
// current process environment value (empty string if unset).
func ResolveHeaders(headers map[string]string) map[string]string {
	resolved := make(map[string]string, len(headers))
	for k, v := range headers {
		resolved[k] = envTemplate.ReplaceAllStringFunc(v, func(m string) string {
			name := envTemplate.FindStringSubmatch(m)[1]
			return os.Getenv(name)
		})
	}
	return resolved
}
