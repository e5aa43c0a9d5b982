// Package pipeline implements §4.6: the transactional write pipeline wiring the rule engine,
// state-machine engine, write planner's child ops, and webhook dispatcher into one *sql.Tx per
// request, followed by post-commit workflow triggers and async webhooks. Grounded on station's
// internal/workflows/runtime/executor.go for the "run each phase, bail on first error, commit
// once" shape, generalized from a single workflow run to rocketcore's generic entity write.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"rocketcore/internal/apperr"
	"rocketcore/internal/childwrite"
	"rocketcore/internal/metrics"
	"rocketcore/internal/registry"
	"rocketcore/internal/rules"
	"rocketcore/internal/statemachine"
	"rocketcore/internal/webhookdispatch"
	"rocketcore/internal/workflow"
	"rocketcore/internal/writeplan"
	"rocketcore/pkg/model"
)

// Pipeline wires §4.2–§4.7 together inside one transaction per write.
type Pipeline struct {
	DB            *sql.DB
	Registry      *registry.Registry
	Rules         *rules.Engine
	StateMachines *statemachine.Engine
	Dispatcher    *webhookdispatch.Dispatcher
	Workflows     *workflow.Engine
	Files         FileLookup
	Logger        *log.Logger
}

// New constructs a Pipeline. files may be nil when no entity declares a file-typed field.
func New(db *sql.DB, reg *registry.Registry, dispatcher *webhookdispatch.Dispatcher, workflows *workflow.Engine, files FileLookup, logger *log.Logger) *Pipeline {
	return &Pipeline{
		DB:            db,
		Registry:      reg,
		Rules:         rules.NewEngine(),
		StateMachines: statemachine.NewEngine(dispatcher, logger),
		Dispatcher:    dispatcher,
		Workflows:     workflows,
		Files:         files,
		Logger:        logger,
	}
}

// Execute runs the §4.6 write pipeline for plan and returns the fully materialized,
// post-commit record.
func (p *Pipeline) Execute(ctx context.Context, plan *writeplan.Plan) (record map[string]interface{}, err error) {
	entity := plan.Entity
	action := "update"
	if plan.IsCreate {
		action = "create"
	}

	start := time.Now()
	outcome := "success"
	defer func() {
		metrics.WriteDuration.WithLabelValues(entity.Name, outcome).Observe(time.Since(start).Seconds())
	}()

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		outcome = "error"
		return nil, apperr.Wrap(apperr.CodeInternal, "failed to begin transaction", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	old := map[string]interface{}{}
	if !plan.IsCreate {
		existing, found, ferr := fetchRecord(ctx, tx, entity, plan.ID)
		if ferr != nil {
			outcome = "error"
			return nil, apperr.Wrap(apperr.CodeInternal, "failed to fetch existing record", ferr)
		}
		if found {
			old = existing
		}
	}

	if issues := p.Rules.Evaluate(p.Registry.RulesFor(entity.Name), model.HookBeforeWrite, plan.Fields, old, plan.IsCreate); len(issues) > 0 {
		outcome = "validation_failed"
		err = apperr.Validation(issues)
		return nil, err
	}

	if issues := p.StateMachines.Evaluate(p.Registry.StateMachinesFor(entity.Name), plan.Fields, old, plan.IsCreate); len(issues) > 0 {
		outcome = "validation_failed"
		err = apperr.Validation(issues)
		return nil, err
	}

	if ferr := p.expandFileFields(ctx, entity, plan.Fields); ferr != nil {
		outcome = "error"
		err = ferr
		return nil, err
	}

	var id string
	if plan.IsCreate {
		id, err = p.insert(ctx, tx, entity, plan.Fields)
	} else {
		id = plan.ID
		err = p.update(ctx, tx, entity, id, plan.Fields)
	}
	if err != nil {
		outcome = "error"
		return nil, err
	}

	for _, op := range plan.ChildOps {
		if cerr := childwrite.Execute(ctx, tx, p.Registry, id, op); cerr != nil {
			outcome = "error"
			err = apperr.Wrap(apperr.CodeInternal, fmt.Sprintf("child write failed for relation %s", op.Relation.Name), cerr)
			return nil, err
		}
	}

	if werr := p.Dispatcher.FireSync(ctx, tx, entity.Name, model.HookBeforeWrite, action, plan.Fields, old, plan.User); werr != nil {
		outcome = "error"
		err = werr
		return nil, err
	}

	if cerr := tx.Commit(); cerr != nil {
		outcome = "error"
		err = apperr.Wrap(apperr.CodeInternal, "failed to commit transaction", cerr)
		return nil, err
	}

	record, _, ferr := fetchRecord(ctx, p.DB, entity, id)
	if ferr != nil {
		p.logf("failed to fetch materialized record %s/%s post-commit: %v", entity.Name, id, ferr)
		record = plan.Fields
	}

	p.triggerWorkflows(ctx, entity, old, record, id)
	p.Dispatcher.FireAsync(entity.Name, model.HookAfterWrite, action, record, old, plan.User)

	return record, nil
}

// Fetch loads a single record by id outside of any write transaction, for the read-only GET
// entity endpoint.
func (p *Pipeline) Fetch(ctx context.Context, entity *model.Entity, id string) (map[string]interface{}, bool, error) {
	return fetchRecord(ctx, p.DB, entity, id)
}

func (p *Pipeline) triggerWorkflows(ctx context.Context, entity *model.Entity, old, record map[string]interface{}, id string) {
	for _, sm := range p.Registry.StateMachinesFor(entity.Name) {
		newVal, ok := record[sm.StateField]
		if !ok {
			continue
		}
		newStr, _ := newVal.(string)
		if newStr == "" {
			continue
		}
		if old[sm.StateField] == newVal {
			continue
		}
		p.Workflows.Trigger(ctx, entity.Name, sm.StateField, newStr, record, id)
	}
}

func (p *Pipeline) expandFileFields(ctx context.Context, entity *model.Entity, fields map[string]interface{}) error {
	for _, f := range entity.Fields {
		if f.Type != model.FieldFile {
			continue
		}
		raw, ok := fields[f.Name]
		if !ok {
			continue
		}
		fileID, ok := raw.(string)
		if !ok {
			continue
		}
		if p.Files == nil {
			continue
		}
		meta, err := p.Files.Lookup(ctx, fileID)
		if err != nil || meta == nil {
			return apperr.New(apperr.CodeNotFound, fmt.Sprintf("file %q not found for field %s", fileID, f.Name))
		}
		fields[f.Name] = map[string]interface{}{
			"id": meta.ID, "filename": meta.Filename, "size": meta.Size, "mime_type": meta.MimeType,
		}
	}
	return nil
}

func (p *Pipeline) logf(format string, args ...interface{}) {
	if p.Logger != nil {
		p.Logger.Printf(format, args...)
	}
}

// isUniqueConstraintErr matches modernc.org/sqlite's constraint error text, the same
// string-matching approach the teacher uses in cmd/main/server.go.
func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
