package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"rocketcore/internal/metrics"
	"rocketcore/internal/webhookdispatch"
	"rocketcore/pkg/model"
)

const retryBatchSize = 50

// RetryPendingWebhooks implements §4.8: pick up to 50 _webhook_logs rows due for retry, ordered
// oldest-first, and replay each delivery with exponential backoff on further failure.
func RetryPendingWebhooks(ctx context.Context, d *webhookdispatch.Dispatcher) error {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, webhook_id, entity, hook, url, method, request_headers, request_body,
		       attempt, max_attempts, idempotency_key
		FROM _webhook_logs
		WHERE status = 'retrying' AND next_retry_at < ?
		ORDER BY next_retry_at ASC
		LIMIT ?
	`, time.Now().UTC(), retryBatchSize)
	if err != nil {
		return fmt.Errorf("failed to query pending webhook retries: %w", err)
	}
	defer rows.Close()

	type pending struct {
		id, webhookID, entity, hook, url, method string
		headersJSON, bodyJSON                    string
		attempt, maxAttempts                     int
		idempotencyKey                           string
	}
	var batch []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.webhookID, &p.entity, &p.hook, &p.url, &p.method,
			&p.headersJSON, &p.bodyJSON, &p.attempt, &p.maxAttempts, &p.idempotencyKey); err != nil {
			return fmt.Errorf("failed to scan webhook retry row: %w", err)
		}
		batch = append(batch, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range batch {
		var headers map[string]string
		_ = json.Unmarshal([]byte(p.headersJSON), &headers)

		result := d.Dispatch(ctx, p.method, p.url, headers, []byte(p.bodyJSON))
		attempt := p.attempt + 1

		status := model.DeliveryFailed
		var nextRetry *time.Time
		if result.Err == nil && result.Status >= 200 && result.Status < 300 {
			status = model.DeliveryDelivered
		} else if attempt < p.maxAttempts {
			status = model.DeliveryRetrying
			backoff := 30 * time.Second * time.Duration(1<<uint(attempt))
			t := time.Now().UTC().Add(backoff)
			nextRetry = &t
		}

		lastErr := ""
		if result.Err != nil {
			lastErr = result.Err.Error()
		}

		if _, err := d.DB.ExecContext(ctx, `
			UPDATE _webhook_logs SET
				attempt = ?, status = ?, response_status = ?, response_body = ?,
				next_retry_at = ?, error = ?, updated_at = ?
			WHERE id = ?
		`, attempt, string(status), nullableInt(result.Status), result.Body,
			nextRetry, lastErr, time.Now().UTC(), p.id); err != nil {
			return fmt.Errorf("failed to update webhook retry row %s: %w", p.id, err)
		}

		metrics.WebhookDeliveries.WithLabelValues(p.entity, string(status)).Inc()
	}
	return nil
}

func nullableInt(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}
