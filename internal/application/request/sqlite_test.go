package request

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/application/workflow"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/domain/scope"
	"github.com/garyjia/hr-requests/internal/infrastructure/persistence/dbtx"
	"github.com/garyjia/hr-requests/internal/infrastructure/persistence/repository"
	"github.com/garyjia/hr-requests/migrations"
	"github.com/garyjia/hr-requests/pkg/database"
)

var errLogWrite = errors.New("status log write failed")

// failingLogs fails Create once fail is set
type failingLogs struct {
	port.StatusLogRepository
	fail bool
}

func (l *failingLogs) Create(ctx context.Context, log *entity.RequestStatusLog) error {
	if l.fail {
		return errLogWrite
	}
	return l.StatusLogRepository.Create(ctx, log)
}

type sqliteFixture struct {
	engine   Engine
	requests port.RequestRepository
	logs     *failingLogs
}

func newSQLiteFixture(t *testing.T) *sqliteFixture {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Driver: "sqlite3",
		Path:   filepath.Join(t.TempDir(), "engine.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fsys, dir := migrations.FS(db.Dialect())
	_, err = database.NewMigrator(db, logger).RunMigrations(fsys, dir)
	require.NoError(t, err)

	tx := dbtx.New(db, logger)
	steps := repository.NewStepRepository(tx, logger)
	workflows := repository.NewWorkflowRepository(tx, logger)
	requests := repository.NewRequestRepository(tx, logger)
	logs := &failingLogs{StatusLogRepository: repository.NewStatusLogRepository(tx, logger)}

	_, err = tx.ExecContext(ctx, `INSERT INTO companies (id, trade_name) VALUES ('C1', 'Acme')`)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, `INSERT INTO contracts (id, company_id, name) VALUES ('K1', 'C1', 'Main')`)
	require.NoError(t, err)

	sent := &entity.Step{Name: "SENT_TO_MANAGEMENT", DefaultRole: entity.RoleSolicitant}
	approved := &entity.Step{Name: "APPROVED", DefaultRole: entity.RoleManagement}
	require.NoError(t, steps.Create(ctx, sent))
	require.NoError(t, steps.Create(ctx, approved))

	wf := &entity.Workflow{Name: "ADMISSION", IsActive: true}
	require.NoError(t, workflows.Create(ctx, wf))

	store := workflow.NewStore(workflows, steps, tx)
	_, err = store.ReplaceSteps(ctx, wf.ID, []entity.WorkflowStep{
		{StepID: sent.ID, Order: 1, AllowedNextStepIDs: []string{approved.ID}},
		{StepID: approved.ID, Order: 2, Final: true},
	})
	require.NoError(t, err)

	engine := NewEngine(requests, logs, steps, repository.NewReferenceRepository(tx, logger),
		store, &mockResolver{resolveFn: companyScoped}, tx, &testLogger{})

	return &sqliteFixture{engine: engine, requests: requests, logs: logs}
}

func TestCreate_RollsBackRequestWhenLogFails(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()

	f.logs.fail = true
	_, err := f.engine.Create(ctx, solicitant, "ADMISSION", payload())
	require.ErrorIs(t, err, errLogWrite)

	page, total, err := f.requests.List(ctx, entity.RequestFilter{}, scope.NewUnrestricted("u-adm"))
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, page)
}

func TestAdvanceStatus_RollsBackStatusWhenLogFails(t *testing.T) {
	f := newSQLiteFixture(t)
	ctx := context.Background()

	req, err := f.engine.Create(ctx, solicitant, "ADMISSION", payload())
	require.NoError(t, err)

	f.logs.fail = true
	_, err = f.engine.AdvanceStatus(ctx, manager, req.ID, "APPROVED", "ok")
	require.ErrorIs(t, err, errLogWrite)

	stored, err := f.requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "SENT_TO_MANAGEMENT", stored.Status)
	assert.Equal(t, req.Version, stored.Version)

	f.logs.fail = false
	moved, err := f.engine.AdvanceStatus(ctx, manager, req.ID, "APPROVED", "ok")
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", moved.Status)

	logs, err := f.logs.ListByRequestID(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "APPROVED", logs[1].Status)
}
