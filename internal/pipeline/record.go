package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rocketcore/pkg/model"
)

// fetchRecord loads the current row for id, returning (record, found, error). Soft-delete
// entities exclude rows whose deleted_at is set.
func fetchRecord(ctx context.Context, q querier, entity *model.Entity, id string) (map[string]interface{}, bool, error) {
	cols := fieldNames(entity)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", joinColumns(cols), entity.Table, entity.PrimaryKey)
	if entity.SoftDelete {
		query += " AND deleted_at IS NULL"
	}

	row := q.QueryRowContext(ctx, query, id)
	record, err := scanRecord(row, entity, cols)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch %s %s: %w", entity.Name, id, err)
	}
	return record, true, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func fieldNames(entity *model.Entity) []string {
	names := make([]string, len(entity.Fields))
	for i, f := range entity.Fields {
		names[i] = f.Name
	}
	return names
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func scanRecord(row *sql.Row, entity *model.Entity, cols []string) (map[string]interface{}, error) {
	dest := make([]interface{}, len(cols))
	raw := make([]interface{}, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	out := make(map[string]interface{}, len(cols))
	for i, col := range cols {
		f := entity.FieldByName(col)
		out[col] = decodeValue(f, raw[i])
	}
	return out, nil
}

func decodeValue(f *model.Field, v interface{}) interface{} {
	if v == nil {
		return nil
	}
	if f != nil && (f.Type == model.FieldJSON || f.Type == model.FieldFile) {
		b, ok := v.([]byte)
		if !ok {
			if s, ok := v.(string); ok {
				b = []byte(s)
			}
		}
		if len(b) > 0 {
			var decoded interface{}
			if err := json.Unmarshal(b, &decoded); err == nil {
				return decoded
			}
		}
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// encodeValue prepares a field value for storage: structured file/json values are marshaled
// to their JSON text representation; everything else passes through.
func encodeValue(f *model.Field, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if f.Type == model.FieldJSON || f.Type == model.FieldFile {
		switch v.(type) {
		case string:
			return v, nil
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode field %s: %w", f.Name, err)
			}
			return string(b), nil
		}
	}
	return v, nil
}

// autoFillValue computes the value an auto-managed timestamp field takes on write, ignoring
// whatever the caller supplied.
func autoFillValue(now time.Time) interface{} {
	return now.UTC().Format(time.RFC3339)
}

func generatePrimaryKey() string {
	return uuid.NewString()
}
