package migration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/costgov/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add audit index", "add_audit_index"},
		{"Add-Audit-Index", "add_audit_index"},
		{"ADD_AUDIT_INDEX", "add_audit_index"},
		{"add__audit__index", "add_audit_index"},
		{"Add Policy 123", "add_policy_123"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	first, err := CreateMigration(dir, "add audit index", "Index audit events by module")
	require.NoError(t, err)
	assert.Equal(t, "000001", first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_add_audit_index.up.sql"), first.UpPath)
	assert.Equal(t, filepath.Join(dir, "000001_add_audit_index.down.sql"), first.DownPath)

	up, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- Migration: add audit index\n")
	assert.Contains(t, string(up), "Index audit events by module")

	down, err := os.ReadFile(first.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "(Rollback)")

	second, err := CreateMigration(dir, "Widen policy percent", "")
	require.NoError(t, err)
	assert.Equal(t, "000002", second.Version)
}

func TestCreateMigration_InvalidName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.Error(t, err)
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000010_later.up.sql":    {},
		"000010_later.down.sql":  {},
		"000002_second.up.sql":   {},
		"000002_second.down.sql": {},
		"README.md":              {},
		"notes.up.sql":           {},
		"000001_first.up.sql":    {},
		"subdir/000003_x.up.sql": {},
	}

	list, err := ListMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_first", "000002_second", "000010_later"}, list)
}

func TestListMigrations_MissingDir(t *testing.T) {
	list, err := ListMigrations(os.DirFS(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListMigrations_Embedded(t *testing.T) {
	list, err := ListMigrations(migrations.FS)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_governed_entities", "000002_governance_core"}, list)
}
