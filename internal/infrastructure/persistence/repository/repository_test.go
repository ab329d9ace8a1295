package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/infrastructure/persistence/dbtx"
	"github.com/garyjia/hr-requests/migrations"
	"github.com/garyjia/hr-requests/pkg/database"
)

// openTestDB opens a migrated sqlite database in a temp dir
func openTestDB(t *testing.T) (*database.DB, *dbtx.DB) {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Driver: "sqlite3",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fsys, dir := migrations.FS(db.Dialect())
	_, err = database.NewMigrator(db, logger).RunMigrations(fsys, dir)
	require.NoError(t, err)

	return db, dbtx.New(db, logger)
}

func mustExec(t *testing.T, db *database.DB, query string, args ...interface{}) {
	t.Helper()
	_, err := db.ExecContext(context.Background(), query, args...)
	require.NoError(t, err)
}

// seedReference inserts two companies with one contract each and a few users
func seedReference(t *testing.T, db *database.DB) {
	t.Helper()
	mustExec(t, db, `INSERT INTO companies (id, trade_name) VALUES ('C1', 'Acme'), ('C2', 'Globex')`)
	mustExec(t, db, `INSERT INTO contracts (id, company_id, name) VALUES ('K1', 'C1', 'Acme main'), ('K2', 'C2', 'Globex main'), ('K3', 'C1', 'Acme second')`)
	mustExec(t, db, `INSERT INTO work_locations (id, contract_id, name) VALUES ('L1', 'K1', 'HQ')`)
	mustExec(t, db, `INSERT INTO positions (id, name) VALUES ('P1', 'Analyst')`)
	mustExec(t, db, `INSERT INTO employees (id, name, contract_id, work_location_id) VALUES ('E1', 'Ann', 'K1', 'L1')`)
	mustExec(t, db, `INSERT INTO users (id, name, email, role, is_active) VALUES
		('u-sol', 'Sol', 'sol@example.com', 'SOLICITANTE', 1),
		('u-mgr', 'Mgr', 'mgr@example.com', 'GESTAO', 1),
		('u-mgr2', 'Mgr Two', 'mgr2@example.com', 'GESTAO', 1),
		('u-old', 'Old', 'old@example.com', 'GESTAO', 0),
		('u-rh', 'Rh', 'rh@example.com', 'RH', 1)`)
	mustExec(t, db, `INSERT INTO user_companies (user_id, company_id) VALUES ('u-mgr', 'C1'), ('u-mgr2', 'C2'), ('u-old', 'C1')`)
}
