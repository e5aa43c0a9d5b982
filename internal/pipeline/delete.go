package pipeline

import (
	"context"
	"database/sql"
	"fmt"

	"rocketcore/internal/apperr"
	"rocketcore/pkg/model"
)

// Delete implements §4.6's delete pipeline: fetch current, cascade per relation's on_delete,
// soft- or hard-delete the row, fire sync before_delete inside the tx, commit, fire async
// after_delete.
func (p *Pipeline) Delete(ctx context.Context, entity *model.Entity, id string) (err error) {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "failed to begin transaction", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	record, found, ferr := fetchRecord(ctx, tx, entity, id)
	if ferr != nil {
		err = apperr.Wrap(apperr.CodeInternal, "failed to fetch record for delete", ferr)
		return err
	}
	if !found {
		err = apperr.New(apperr.CodeNotFound, fmt.Sprintf("%s %s not found", entity.Name, id))
		return err
	}

	for _, rel := range p.Registry.RelationsFor(entity.Name) {
		if cerr := p.cascade(ctx, tx, rel, id); cerr != nil {
			err = cerr
			return err
		}
	}

	if entity.SoftDelete {
		if _, derr := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET deleted_at = CURRENT_TIMESTAMP WHERE %s = ?", entity.Table, entity.PrimaryKey), id); derr != nil {
			err = apperr.Wrap(apperr.CodeInternal, fmt.Sprintf("failed to soft-delete %s %s", entity.Name, id), derr)
			return err
		}
	} else {
		if _, derr := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", entity.Table, entity.PrimaryKey), id); derr != nil {
			err = apperr.Wrap(apperr.CodeInternal, fmt.Sprintf("failed to delete %s %s", entity.Name, id), derr)
			return err
		}
	}

	if werr := p.Dispatcher.FireSync(ctx, tx, entity.Name, model.HookBeforeDelete, "delete", record, nil, nil); werr != nil {
		err = werr
		return err
	}

	if cerr := tx.Commit(); cerr != nil {
		err = apperr.Wrap(apperr.CodeInternal, "failed to commit delete transaction", cerr)
		return err
	}

	p.Dispatcher.FireAsync(entity.Name, model.HookAfterDelete, "delete", record, nil, nil)
	return nil
}

// cascade applies rel's on_delete policy against parentID, within tx.
func (p *Pipeline) cascade(ctx context.Context, tx *sql.Tx, rel *model.Relation, parentID string) error {
	switch rel.OnDelete {
	case model.OnDeleteCascade:
		return p.cascadeDelete(ctx, tx, rel, parentID)
	case model.OnDeleteSetNull:
		return p.cascadeSetNull(ctx, tx, rel, parentID)
	case model.OnDeleteRestrict:
		return p.cascadeRestrict(ctx, tx, rel, parentID)
	case model.OnDeleteDetach:
		return p.cascadeDetach(ctx, tx, rel, parentID)
	default:
		return apperr.New(apperr.CodeInternal, fmt.Sprintf("unknown on_delete policy %q for relation %s", rel.OnDelete, rel.Name))
	}
}

// cascadeDelete soft-deletes children if the target entity is soft-delete, else hard-deletes
// them. Many-to-many relations have no child rows of their own to cascade into; only their
// join rows, which cascadeDetach handles.
func (p *Pipeline) cascadeDelete(ctx context.Context, tx *sql.Tx, rel *model.Relation, parentID string) error {
	if rel.Kind == model.RelationManyToMany {
		return p.cascadeDetach(ctx, tx, rel, parentID)
	}

	target := p.Registry.Entity(rel.TargetEntity)
	var query string
	if target != nil && target.SoftDelete {
		query = fmt.Sprintf("UPDATE %s SET deleted_at = CURRENT_TIMESTAMP WHERE %s = ?", rel.TargetEntity, rel.TargetFKColumn)
	} else {
		query = fmt.Sprintf("DELETE FROM %s WHERE %s = ?", rel.TargetEntity, rel.TargetFKColumn)
	}
	if _, err := tx.ExecContext(ctx, query, parentID); err != nil {
		return apperr.Wrap(apperr.CodeInternal, fmt.Sprintf("cascade delete failed for relation %s", rel.Name), err)
	}
	return nil
}

func (p *Pipeline) cascadeSetNull(ctx context.Context, tx *sql.Tx, rel *model.Relation, parentID string) error {
	query := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = ?", rel.TargetEntity, rel.TargetFKColumn, rel.TargetFKColumn)
	if _, err := tx.ExecContext(ctx, query, parentID); err != nil {
		return apperr.Wrap(apperr.CodeInternal, fmt.Sprintf("cascade set_null failed for relation %s", rel.Name), err)
	}
	return nil
}

func (p *Pipeline) cascadeRestrict(ctx context.Context, tx *sql.Tx, rel *model.Relation, parentID string) error {
	var query string
	var args []interface{}
	switch rel.Kind {
	case model.RelationManyToMany:
		query = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", rel.JoinTable, rel.JoinSourceCol)
		args = []interface{}{parentID}
	default:
		target := p.Registry.Entity(rel.TargetEntity)
		query = fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", rel.TargetEntity, rel.TargetFKColumn)
		if target != nil && target.SoftDelete {
			query += " AND deleted_at IS NULL"
		}
		args = []interface{}{parentID}
	}

	var count int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return apperr.Wrap(apperr.CodeInternal, fmt.Sprintf("restrict check failed for relation %s", rel.Name), err)
	}
	if count > 0 {
		return apperr.New(apperr.CodeConflict, fmt.Sprintf("cannot delete: %d active child record(s) exist via relation %s", count, rel.Name))
	}
	return nil
}

func (p *Pipeline) cascadeDetach(ctx context.Context, tx *sql.Tx, rel *model.Relation, parentID string) error {
	if rel.Kind != model.RelationManyToMany {
		return nil
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", rel.JoinTable, rel.JoinSourceCol)
	if _, err := tx.ExecContext(ctx, query, parentID); err != nil {
		return apperr.Wrap(apperr.CodeInternal, fmt.Sprintf("detach failed for relation %s", rel.Name), err)
	}
	return nil
}
