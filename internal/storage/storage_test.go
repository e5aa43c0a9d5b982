package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_AppliesPragmas(t *testing.T) {
	db := NewTest(t)

	var journalMode string
	require.NoError(t, db.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var fk int
	require.NoError(t, db.Conn().QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestMigrate_CreatesRegistryAndRuntimeTables(t *testing.T) {
	db := NewTest(t)

	tables := []string{
		"_entities", "_relations", "_rules", "_state_machines",
		"_webhooks", "_workflow_definitions",
		"_workflow_instances", "_webhook_logs",
		"invoices", "line_items", "tags", "invoice_tags",
	}
	for _, tbl := range tables {
		var name string
		err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", tbl).Scan(&name)
		require.NoError(t, err, "expected table %s to exist", tbl)
		assert.Equal(t, tbl, name)
	}
}
