// Package childwrite implements §4.5: reconciling a relation's incoming child-write array
// against the rows currently in the database, inside the parent's transaction. Grounded on
// station's internal/db/repositories pattern of thin, explicit SQL per operation (no ORM),
// generalized to the metadata-driven diff/replace/append reconciliation §4.5 requires.
package childwrite

import (
	"context"
	"database/sql"
	"fmt"

	"rocketcore/internal/registry"
	"rocketcore/internal/writeplan"
	"rocketcore/pkg/model"
)

// Execute reconciles one child-write operation against parentID, inside tx. reg resolves the
// target entity's own delete semantics (soft vs. hard), the same way pipeline.cascadeDelete
// does for cascade deletes.
func Execute(ctx context.Context, tx *sql.Tx, reg *registry.Registry, parentID string, op writeplan.ChildOp) error {
	switch op.Relation.Kind {
	case model.RelationOneToOne, model.RelationOneToMany:
		return executeToMany(ctx, tx, reg, parentID, op)
	case model.RelationManyToMany:
		return executeManyToMany(ctx, tx, parentID, op)
	default:
		return fmt.Errorf("childwrite: unsupported relation kind %q", op.Relation.Kind)
	}
}

func executeToMany(ctx context.Context, tx *sql.Tx, reg *registry.Registry, parentID string, op writeplan.ChildOp) error {
	rel := op.Relation
	target := reg.Entity(rel.TargetEntity)
	softDelete := target != nil && target.SoftDelete

	current, err := currentChildren(ctx, tx, rel, parentID, softDelete)
	if err != nil {
		return err
	}

	touched := make(map[string]bool)

	for _, row := range op.Data {
		pk, hasPK := row["id"].(string)

		if op.Mode == model.WriteModeAppend {
			if hasPK {
				// append mode ignores rows carrying a PK entirely.
				continue
			}
			if err := insertChild(ctx, tx, rel, parentID, row); err != nil {
				return err
			}
			continue
		}

		// diff and replace share the same per-row reconciliation.
		deleteFlag, _ := row["_delete"].(bool)
		switch {
		case hasPK && deleteFlag:
			if !current[pk] {
				continue
			}
			if err := deleteChild(ctx, tx, rel, pk, softDelete); err != nil {
				return err
			}
			touched[pk] = true
		case hasPK && current[pk]:
			if err := updateChild(ctx, tx, rel, pk, row); err != nil {
				return err
			}
			touched[pk] = true
		case !hasPK:
			if err := insertChild(ctx, tx, rel, parentID, row); err != nil {
				return err
			}
		}
		// PKs present but not in current are silently skipped, per §4.5.
	}

	if op.Mode == model.WriteModeReplace {
		for pk := range current {
			if !touched[pk] {
				if err := deleteChild(ctx, tx, rel, pk, softDelete); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func currentChildren(ctx context.Context, tx *sql.Tx, rel *model.Relation, parentID string, softDelete bool) (map[string]bool, error) {
	table := rel.TargetEntity
	query := fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", table, rel.TargetFKColumn)
	if softDelete {
		query += " AND deleted_at IS NULL"
	}
	rows, err := tx.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("childwrite: failed to fetch current children for %s: %w", rel.Name, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func insertChild(ctx context.Context, tx *sql.Tx, rel *model.Relation, parentID string, row map[string]interface{}) error {
	row[rel.TargetFKColumn] = parentID
	cols, vals := columnsAndValues(row)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", rel.TargetEntity, joinCols(cols), placeholders(len(cols)))
	if _, err := tx.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("childwrite: failed to insert child into %s: %w", rel.TargetEntity, err)
	}
	return nil
}

func updateChild(ctx context.Context, tx *sql.Tx, rel *model.Relation, pk string, row map[string]interface{}) error {
	delete(row, "id")
	delete(row, "_delete")
	if len(row) == 0 {
		return nil
	}
	cols, vals := columnsAndValues(row)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", rel.TargetEntity, setClause(cols))
	vals = append(vals, pk)
	if _, err := tx.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("childwrite: failed to update child %s in %s: %w", pk, rel.TargetEntity, err)
	}
	return nil
}

func deleteChild(ctx context.Context, tx *sql.Tx, rel *model.Relation, pk string, softDelete bool) error {
	var query string
	if softDelete {
		query = fmt.Sprintf("UPDATE %s SET deleted_at = CURRENT_TIMESTAMP WHERE id = ?", rel.TargetEntity)
	} else {
		query = fmt.Sprintf("DELETE FROM %s WHERE id = ?", rel.TargetEntity)
	}
	if _, err := tx.ExecContext(ctx, query, pk); err != nil {
		return fmt.Errorf("childwrite: failed to delete child %s in %s: %w", pk, rel.TargetEntity, err)
	}
	return nil
}

func executeManyToMany(ctx context.Context, tx *sql.Tx, parentID string, op writeplan.ChildOp) error {
	rel := op.Relation

	switch op.Mode {
	case model.WriteModeReplace:
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?", rel.JoinTable, rel.JoinSourceCol), parentID); err != nil {
			return fmt.Errorf("childwrite: failed to clear join rows in %s: %w", rel.JoinTable, err)
		}
		for _, row := range op.Data {
			targetID, _ := row["id"].(string)
			if targetID == "" {
				continue
			}
			if err := insertJoinRow(ctx, tx, rel, parentID, targetID); err != nil {
				return err
			}
		}
	case model.WriteModeAppend:
		for _, row := range op.Data {
			targetID, _ := row["id"].(string)
			if targetID == "" {
				continue
			}
			if err := insertJoinRowIgnoreConflict(ctx, tx, rel, parentID, targetID); err != nil {
				return err
			}
		}
	case model.WriteModeDiff:
		current, err := currentJoinTargets(ctx, tx, rel, parentID)
		if err != nil {
			return err
		}
		for _, row := range op.Data {
			targetID, _ := row["id"].(string)
			if targetID == "" {
				continue
			}
			if deleteFlag, _ := row["_delete"].(bool); deleteFlag {
				if err := deleteJoinRow(ctx, tx, rel, parentID, targetID); err != nil {
					return err
				}
				continue
			}
			if !current[targetID] {
				if err := insertJoinRowIgnoreConflict(ctx, tx, rel, parentID, targetID); err != nil {
					return err
				}
			}
		}
	default:
		return fmt.Errorf("childwrite: unsupported write mode %q for many-to-many", op.Mode)
	}
	return nil
}

func currentJoinTargets(ctx context.Context, tx *sql.Tx, rel *model.Relation, parentID string) (map[string]bool, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", rel.JoinTargetCol, rel.JoinTable, rel.JoinSourceCol)
	rows, err := tx.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("childwrite: failed to fetch current join targets in %s: %w", rel.JoinTable, err)
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func insertJoinRow(ctx context.Context, tx *sql.Tx, rel *model.Relation, parentID, targetID string) error {
	query := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?)", rel.JoinTable, rel.JoinSourceCol, rel.JoinTargetCol)
	if _, err := tx.ExecContext(ctx, query, parentID, targetID); err != nil {
		return fmt.Errorf("childwrite: failed to insert join row into %s: %w", rel.JoinTable, err)
	}
	return nil
}

func insertJoinRowIgnoreConflict(ctx context.Context, tx *sql.Tx, rel *model.Relation, parentID, targetID string) error {
	query := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s, %s) VALUES (?, ?)", rel.JoinTable, rel.JoinSourceCol, rel.JoinTargetCol)
	if _, err := tx.ExecContext(ctx, query, parentID, targetID); err != nil {
		return fmt.Errorf("childwrite: failed to insert join row into %s: %w", rel.JoinTable, err)
	}
	return nil
}

func deleteJoinRow(ctx context.Context, tx *sql.Tx, rel *model.Relation, parentID, targetID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?", rel.JoinTable, rel.JoinSourceCol, rel.JoinTargetCol)
	if _, err := tx.ExecContext(ctx, query, parentID, targetID); err != nil {
		return fmt.Errorf("childwrite: failed to delete join row from %s: %w", rel.JoinTable, err)
	}
	return nil
}

func columnsAndValues(row map[string]interface{}) ([]string, []interface{}) {
	cols := make([]string, 0, len(row))
	vals := make([]interface{}, 0, len(row))
	for k, v := range row {
		if k == "_delete" {
			continue
		}
		cols = append(cols, k)
		vals = append(vals, v)
	}
	return cols, vals
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func setClause(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c + " = ?"
	}
	return out
}

func placeholders(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += "?"
	}
	return out
}
