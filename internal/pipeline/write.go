package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rocketcore/internal/apperr"
	"rocketcore/pkg/model"
)

// insert builds and executes the parameterized INSERT per §4.6 step 5/6: auto-on-create and
// auto-on-update timestamp fields are both stamped to now, the primary key is generated when
// the caller didn't supply one, and auto-managed columns ignore whatever the caller supplied.
func (p *Pipeline) insert(ctx context.Context, tx *sql.Tx, entity *model.Entity, fields map[string]interface{}) (string, error) {
	now := time.Now()
	var cols []string
	var vals []interface{}

	id, ok := fields[entity.PrimaryKey].(string)
	if !ok || id == "" {
		id = generatePrimaryKey()
	}

	for _, f := range entity.Fields {
		switch {
		case f.Name == entity.PrimaryKey:
			cols = append(cols, f.Name)
			vals = append(vals, id)
		case f.AutoFill == model.AutoFillOnCreate || f.AutoFill == model.AutoFillOnUpdate:
			cols = append(cols, f.Name)
			vals = append(vals, autoFillValue(now))
		default:
			v, present := fields[f.Name]
			if !present {
				continue
			}
			encoded, err := encodeValue(&f, v)
			if err != nil {
				return "", apperr.Wrap(apperr.CodeInternal, "failed to encode field for insert", err)
			}
			cols = append(cols, f.Name)
			vals = append(vals, encoded)
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", entity.Table, joinColumns(cols), placeholders(len(cols)))
	if _, err := tx.ExecContext(ctx, query, vals...); err != nil {
		if isUniqueConstraintErr(err) {
			return "", apperr.Wrap(apperr.CodeConflict, "unique constraint violation", err)
		}
		return "", apperr.Wrap(apperr.CodeInternal, fmt.Sprintf("failed to insert %s", entity.Name), err)
	}

	fields[entity.PrimaryKey] = id
	return id, nil
}

// update builds and executes the parameterized UPDATE per §4.6 step 5: only auto-on-update
// timestamp fields are stamped; auto-on-create fields and the primary key are excluded from
// the SET clause.
func (p *Pipeline) update(ctx context.Context, tx *sql.Tx, entity *model.Entity, id string, fields map[string]interface{}) error {
	now := time.Now()
	var cols []string
	var vals []interface{}

	for _, f := range entity.Fields {
		switch {
		case f.Name == entity.PrimaryKey, f.AutoFill == model.AutoFillOnCreate:
			continue
		case f.AutoFill == model.AutoFillOnUpdate:
			cols = append(cols, f.Name)
			vals = append(vals, autoFillValue(now))
		default:
			v, present := fields[f.Name]
			if !present {
				continue
			}
			encoded, err := encodeValue(&f, v)
			if err != nil {
				return apperr.Wrap(apperr.CodeInternal, "failed to encode field for update", err)
			}
			cols = append(cols, f.Name)
			vals = append(vals, encoded)
		}
	}

	if len(cols) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", entity.Table, setClause(cols), entity.PrimaryKey)
	vals = append(vals, id)
	if _, err := tx.ExecContext(ctx, query, vals...); err != nil {
		if isUniqueConstraintErr(err) {
			return apperr.Wrap(apperr.CodeConflict, "unique constraint violation", err)
		}
		return apperr.Wrap(apperr.CodeInternal, fmt.Sprintf("failed to update %s %s", entity.Name, id), err)
	}
	return nil
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
