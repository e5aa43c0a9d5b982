package webhookdispatch

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sony/gobreaker"

	"rocketcore/internal/expr"
	"rocketcore/pkg/model"
)

// DispatchResult is the outcome of one outbound HTTP call.
type DispatchResult struct {
	Status int
	Body   string // truncated to model.MaxResponseBodyBytes
	Err    error
}

// Dispatcher performs §4.7's dispatch/log/fireSync/fireAsync operations. One circuit breaker
// is kept per target host so a single flaky endpoint doesn't exhaust retries against healthy
// ones, the way gobreaker is meant to be used per dependency rather than globally.
type Dispatcher struct {
	DB         *sql.DB
	HTTPClient *http.Client
	Logger     *log.Logger
	Registry   WebhookLookup

	breakers map[string]*gobreaker.CircuitBreaker
}

// WebhookLookup is the subset of the registry the dispatcher needs: webhooks registered for
// an (entity, hook) pair, sync or async, plus direct lookup by id for transition actions.
type WebhookLookup interface {
	WebhooksFor(entity string, hook model.Hook) []*model.Webhook
	WebhookByID(id string) *model.Webhook
}

// NewDispatcher constructs a Dispatcher with a 30s-timeout HTTP client per §4.7/§5.
func NewDispatcher(db *sql.DB, registry WebhookLookup, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		DB:         db,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
		Registry:   registry,
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (d *Dispatcher) breakerFor(rawURL string) *gobreaker.CircuitBreaker {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	if cb, ok := d.breakers[host]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	d.breakers[host] = cb
	return cb
}

// Dispatch makes one outbound HTTP call per §4.7: 30s timeout, application/json content type,
// body omitted for GET, response capped at 64 KiB.
func (d *Dispatcher) Dispatch(ctx context.Context, method, targetURL string, headers map[string]string, bodyJSON []byte) DispatchResult {
	cb := d.breakerFor(targetURL)
	result, err := cb.Execute(func() (interface{}, error) {
		return d.doRequest(ctx, method, targetURL, headers, bodyJSON)
	})
	if err != nil {
		return DispatchResult{Err: err}
	}
	return result.(DispatchResult)
}

func (d *Dispatcher) doRequest(ctx context.Context, method, targetURL string, headers map[string]string, bodyJSON []byte) (DispatchResult, error) {
	var body io.Reader
	if method != http.MethodGet {
		body = bytes.NewReader(bodyJSON)
	}

	req, err := http.NewRequestWithContext(ctx, method, targetURL, body)
	if err != nil {
		return DispatchResult{Err: err}, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return DispatchResult{Err: err}, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, model.MaxResponseBodyBytes))
	return DispatchResult{Status: resp.StatusCode, Body: string(respBody)}, nil
}

// EvaluateCondition evaluates a webhook's optional condition expression against
// {record, old, changes, action, entity, event, user}; an empty condition is always true.
func EvaluateCondition(w *model.Webhook, payload Payload) (bool, error) {
	if w.Condition == "" {
		return true, nil
	}
	compiled, err := w.CompiledCondition(func(src string) (interface{}, error) { return expr.Compile(src) })
	if err != nil {
		return false, err
	}
	env := expr.Env{
		"record":  payload.Record,
		"old":     payload.Old,
		"action":  payload.Action,
		"entity":  payload.Entity,
		"event":   payload.Event,
		"changes": changesToEnv(payload.Changes),
	}
	if payload.User != nil {
		env["user"] = map[string]interface{}{"id": payload.User.ID, "roles": toInterfaceSlice(payload.User.Roles)}
	} else {
		env["user"] = nil
	}
	return expr.EvaluateBool(compiled.(*expr.Compiled), env)
}

func changesToEnv(changes map[string]Change) map[string]interface{} {
	out := make(map[string]interface{}, len(changes))
	for k, c := range changes {
		out[k] = map[string]interface{}{"old": c.Old, "new": c.New}
	}
	return out
}

func toInterfaceSlice(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// LogDelivery inserts a webhook_logs row recording one delivery attempt via exec (either the
// *sql.Tx for a sync delivery or the pooled *sql.DB for async/retry), per §4.7's
// logDelivery(tx|pool, ...) contract.
func LogDelivery(ctx context.Context, exec Execer, w *model.Webhook, payload Payload, headers map[string]string, result DispatchResult) error {
	status := model.DeliveryFailed
	var nextRetry *time.Time
	if result.Err == nil && result.Status >= 200 && result.Status < 300 {
		status = model.DeliveryDelivered
	} else if w.MaxAttempts > 1 {
		status = model.DeliveryRetrying
		t := time.Now().UTC().Add(30 * time.Second)
		nextRetry = &t
	}

	headersJSON, _ := json.Marshal(headers)
	bodyJSON, _ := json.Marshal(payload)

	lastErr := ""
	if result.Err != nil {
		lastErr = result.Err.Error()
	}

	id := ulid.Make().String()
	_, err := exec.ExecContext(ctx, `
		INSERT INTO _webhook_logs (
			id, webhook_id, entity, hook, url, method, request_headers, request_body,
			response_status, response_body, status, attempt, max_attempts, next_retry_at,
			error, idempotency_key, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, w.ID, w.Entity, string(w.Hook), w.URL, w.Method, string(headersJSON), string(bodyJSON),
		nullableInt(result.Status), result.Body, string(status), 1, w.MaxAttempts, nextRetry,
		lastErr, payload.IdempotencyKey, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to log webhook delivery: %w", err)
	}
	return nil
}

func nullableInt(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

// Execer is satisfied by both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
