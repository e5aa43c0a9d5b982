package childwrite

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocketcore/internal/registry"
	"rocketcore/internal/storage"
	"rocketcore/internal/writeplan"
	"rocketcore/pkg/model"
)

func lineItemRelation() *model.Relation {
	return &model.Relation{
		Name: "line_items", Kind: model.RelationOneToMany,
		SourceEntity: "invoices", TargetEntity: "line_items", TargetFKColumn: "invoice_id",
	}
}

func notesRelation() *model.Relation {
	return &model.Relation{
		Name: "notes", Kind: model.RelationOneToMany,
		SourceEntity: "invoices", TargetEntity: "notes", TargetFKColumn: "invoice_id",
	}
}

func tagsRelation() *model.Relation {
	return &model.Relation{
		Name: "tags", Kind: model.RelationManyToMany,
		SourceEntity: "invoices", TargetEntity: "tags",
		JoinTable: "invoice_tags", JoinSourceCol: "invoice_id", JoinTargetCol: "tag_id",
	}
}

// testRegistry returns a registry over db whose only registered entity is line_items
// (soft-delete) or notes (hard-delete), set via softDelete.
func testRegistry(t *testing.T, db *storage.DB, targetEntity string, softDelete bool) *registry.Registry {
	t.Helper()
	reg, err := registry.New(db.Conn())
	require.NoError(t, err)
	fields := []model.Field{{Name: "id", Type: model.FieldUUID}}
	if softDelete {
		fields = append(fields, model.Field{Name: "deleted_at", Type: model.FieldTime})
	}
	require.NoError(t, reg.PutEntity(&model.Entity{
		Name: targetEntity, Table: targetEntity, PrimaryKey: "id", SoftDelete: softDelete,
		Fields: fields,
	}))
	return reg
}

func TestExecute_OneToMany_DiffInsertsNewRow(t *testing.T) {
	ctx := context.Background()
	db := storage.NewTest(t)
	invoiceID := uuid.NewString()
	_, err := db.Conn().ExecContext(ctx, "INSERT INTO invoices (id, customer_name, created_at, updated_at) VALUES (?, ?, datetime('now'), datetime('now'))", invoiceID, "Acme")
	require.NoError(t, err)

	tx, err := db.Conn().Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	op := writeplan.ChildOp{
		Relation: lineItemRelation(),
		Mode:     model.WriteModeDiff,
		Data: []map[string]interface{}{
			{"description": "widget", "amount": 9.5, "created_at": "2026-01-01", "updated_at": "2026-01-01"},
		},
	}
	reg := testRegistry(t, db, "line_items", true)
	require.NoError(t, Execute(ctx, tx, reg, invoiceID, op))
	require.NoError(t, tx.Commit())

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM line_items WHERE invoice_id = ?", invoiceID).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestExecute_OneToMany_ReplaceSoftDeletesUntouched(t *testing.T) {
	ctx := context.Background()
	db := storage.NewTest(t)
	invoiceID := uuid.NewString()
	existingID := uuid.NewString()
	_, err := db.Conn().ExecContext(ctx, "INSERT INTO invoices (id, customer_name, created_at, updated_at) VALUES (?, ?, datetime('now'), datetime('now'))", invoiceID, "Acme")
	require.NoError(t, err)
	_, err = db.Conn().ExecContext(ctx, "INSERT INTO line_items (id, invoice_id, description, amount, created_at, updated_at) VALUES (?, ?, ?, ?, datetime('now'), datetime('now'))", existingID, invoiceID, "old", 1.0)
	require.NoError(t, err)

	tx, err := db.Conn().Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	op := writeplan.ChildOp{
		Relation: lineItemRelation(),
		Mode:     model.WriteModeReplace,
		Data:     []map[string]interface{}{},
	}
	reg := testRegistry(t, db, "line_items", true)
	require.NoError(t, Execute(ctx, tx, reg, invoiceID, op))
	require.NoError(t, tx.Commit())

	var deletedAt *string
	require.NoError(t, db.Conn().QueryRow("SELECT deleted_at FROM line_items WHERE id = ?", existingID).Scan(&deletedAt))
	assert.NotNil(t, deletedAt)
}

func TestExecute_OneToMany_ReplaceHardDeletesUntouchedWhenTargetNotSoftDelete(t *testing.T) {
	ctx := context.Background()
	db := storage.NewTest(t)
	invoiceID := uuid.NewString()
	existingID := uuid.NewString()
	_, err := db.Conn().ExecContext(ctx, "INSERT INTO invoices (id, customer_name, created_at, updated_at) VALUES (?, ?, datetime('now'), datetime('now'))", invoiceID, "Acme")
	require.NoError(t, err)
	_, err = db.Conn().ExecContext(ctx, "INSERT INTO notes (id, invoice_id, body, created_at, updated_at) VALUES (?, ?, ?, datetime('now'), datetime('now'))", existingID, invoiceID, "old note")
	require.NoError(t, err)

	tx, err := db.Conn().Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	op := writeplan.ChildOp{
		Relation: notesRelation(),
		Mode:     model.WriteModeReplace,
		Data:     []map[string]interface{}{},
	}
	reg := testRegistry(t, db, "notes", false)
	require.NoError(t, Execute(ctx, tx, reg, invoiceID, op))
	require.NoError(t, tx.Commit())

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM notes WHERE id = ?", existingID).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestExecute_ManyToMany_AppendIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	db := storage.NewTest(t)
	invoiceID := uuid.NewString()
	tagID := uuid.NewString()
	_, err := db.Conn().ExecContext(ctx, "INSERT INTO invoices (id, customer_name, created_at, updated_at) VALUES (?, ?, datetime('now'), datetime('now'))", invoiceID, "Acme")
	require.NoError(t, err)
	_, err = db.Conn().ExecContext(ctx, "INSERT INTO tags (id, name) VALUES (?, ?)", tagID, "urgent")
	require.NoError(t, err)

	op := writeplan.ChildOp{
		Relation: tagsRelation(),
		Mode:     model.WriteModeAppend,
		Data: []map[string]interface{}{
			{"id": tagID},
			{"id": tagID},
		},
	}

	tx, err := db.Conn().Begin()
	require.NoError(t, err)
	require.NoError(t, Execute(ctx, tx, nil, invoiceID, op))
	require.NoError(t, tx.Commit())

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM invoice_tags WHERE invoice_id = ?", invoiceID).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestExecute_ManyToMany_ReplaceClearsExisting(t *testing.T) {
	ctx := context.Background()
	db := storage.NewTest(t)
	invoiceID := uuid.NewString()
	oldTagID := uuid.NewString()
	newTagID := uuid.NewString()
	_, err := db.Conn().ExecContext(ctx, "INSERT INTO invoices (id, customer_name, created_at, updated_at) VALUES (?, ?, datetime('now'), datetime('now'))", invoiceID, "Acme")
	require.NoError(t, err)
	for _, id := range []string{oldTagID, newTagID} {
		_, err = db.Conn().ExecContext(ctx, "INSERT INTO tags (id, name) VALUES (?, ?)", id, id)
		require.NoError(t, err)
	}
	_, err = db.Conn().ExecContext(ctx, "INSERT INTO invoice_tags (invoice_id, tag_id) VALUES (?, ?)", invoiceID, oldTagID)
	require.NoError(t, err)

	tx, err := db.Conn().Begin()
	require.NoError(t, err)
	op := writeplan.ChildOp{
		Relation: tagsRelation(),
		Mode:     model.WriteModeReplace,
		Data:     []map[string]interface{}{{"id": newTagID}},
	}
	require.NoError(t, Execute(ctx, tx, nil, invoiceID, op))
	require.NoError(t, tx.Commit())

	rows, err := db.Conn().Query("SELECT tag_id FROM invoice_tags WHERE invoice_id = ?", invoiceID)
	require.NoError(t, err)
	defer rows.Close()
	var got []string
	for rows.Next() {
		var tagID string
		require.NoError(t, rows.Scan(&tagID))
		got = append(got, tagID)
	}
	assert.Equal(t, []string{newTagID}, got)
}
