// Package workflow implements §4.9/§4.10: triggering, advancing, and resolving workflow
// instances against their persisted definitions. Grounded on station's
// internal/workflows/runtime/executor.go for the "loop while running, dispatch by step kind"
// shape and on starlark_eval.go's nested-path resolution (reused here via internal/expr).
package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"rocketcore/pkg/model"
)

// Store persists workflow instances to the _workflow_instances table.
type Store struct {
	db *sql.DB
}

// NewStore constructs a Store over db.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Create inserts a new running instance at step[0] with empty history.
func (s *Store) Create(ctx context.Context, def *model.WorkflowDefinition, instCtx map[string]interface{}) (*model.Instance, error) {
	now := time.Now().UTC()
	inst := &model.Instance{
		ID:           ulid.Make().String(),
		WorkflowID:   def.ID,
		WorkflowName: def.Name,
		Status:       model.InstanceRunning,
		CurrentStep:  def.Steps[0].ID,
		Context:      instCtx,
		History:      []model.HistoryEntry{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.insert(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *Store) insert(ctx context.Context, inst *model.Instance) error {
	ctxJSON, err := json.Marshal(inst.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal instance context: %w", err)
	}
	histJSON, err := json.Marshal(inst.History)
	if err != nil {
		return fmt.Errorf("failed to marshal instance history: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO _workflow_instances (
			id, workflow_id, workflow_name, status, current_step, current_step_deadline,
			context, history, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inst.ID, inst.WorkflowID, inst.WorkflowName, string(inst.Status), nullableString(inst.CurrentStep),
		inst.Deadline, string(ctxJSON), string(histJSON), inst.CreatedAt, inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert workflow instance: %w", err)
	}
	return nil
}

// Save persists an instance's mutable fields.
func (s *Store) Save(ctx context.Context, inst *model.Instance) error {
	inst.UpdatedAt = time.Now().UTC()
	ctxJSON, err := json.Marshal(inst.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal instance context: %w", err)
	}
	histJSON, err := json.Marshal(inst.History)
	if err != nil {
		return fmt.Errorf("failed to marshal instance history: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE _workflow_instances SET
			status = ?, current_step = ?, current_step_deadline = ?,
			context = ?, history = ?, updated_at = ?
		WHERE id = ?
	`, string(inst.Status), nullableString(inst.CurrentStep), inst.Deadline,
		string(ctxJSON), string(histJSON), inst.UpdatedAt, inst.ID)
	if err != nil {
		return fmt.Errorf("failed to save workflow instance %s: %w", inst.ID, err)
	}
	return nil
}

// Get loads an instance by id, or returns sql.ErrNoRows.
func (s *Store) Get(ctx context.Context, id string) (*model.Instance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, workflow_name, status, current_step, current_step_deadline,
		       context, history, created_at, updated_at
		FROM _workflow_instances WHERE id = ?
	`, id)
	return scanInstance(row)
}

// Pending returns instances with status=running and a non-null current_step.
func (s *Store) Pending(ctx context.Context) ([]*model.Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, workflow_name, status, current_step, current_step_deadline,
		       context, history, created_at, updated_at
		FROM _workflow_instances WHERE status = 'running' AND current_step IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending instances: %w", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

// TimedOut returns running instances whose deadline has passed.
func (s *Store) TimedOut(ctx context.Context, now time.Time) ([]*model.Instance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, workflow_name, status, current_step, current_step_deadline,
		       context, history, created_at, updated_at
		FROM _workflow_instances
		WHERE status = 'running' AND current_step_deadline IS NOT NULL AND current_step_deadline < ?
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query timed-out instances: %w", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*model.Instance, error) {
	var inst model.Instance
	var status string
	var currentStep sql.NullString
	var deadline sql.NullTime
	var ctxJSON, histJSON string

	err := row.Scan(&inst.ID, &inst.WorkflowID, &inst.WorkflowName, &status, &currentStep, &deadline,
		&ctxJSON, &histJSON, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}

	inst.Status = model.InstanceStatus(status)
	if currentStep.Valid {
		inst.CurrentStep = currentStep.String
	}
	if deadline.Valid {
		d := deadline.Time
		inst.Deadline = &d
	}
	if err := json.Unmarshal([]byte(ctxJSON), &inst.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance context: %w", err)
	}
	if err := json.Unmarshal([]byte(histJSON), &inst.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance history: %w", err)
	}
	return &inst, nil
}

func scanInstances(rows *sql.Rows) ([]*model.Instance, error) {
	var out []*model.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
