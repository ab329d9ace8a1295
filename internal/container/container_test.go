package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/domain/event"
	domainwf "github.com/garyjia/hr-requests/internal/domain/workflow"
)

const seedYAML = `
steps:
  - name: SENT_TO_MANAGEMENT
    default_role: SOLICITANTE
  - name: APPROVED
    default_role: GESTAO
workflows:
  - name: ADMISSION
    steps:
      - step: SENT_TO_MANAGEMENT
        next: [APPROVED]
      - step: APPROVED
`

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Notification.RelayPollInterval = 50 * time.Millisecond
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	logger := zap.NewNop()

	_, err := NewContainer(nil, logger)
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Database.Driver = "mysql"
	_, err = NewContainer(cfg, logger)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""
	_, err = NewContainer(cfg, logger)
	assert.Error(t, err)
}

func TestContainer_StartWithoutRedis(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()), "second start")

	app := c.Application()
	require.NotNil(t, app)
	assert.NotNil(t, app.Requests)
	assert.NotNil(t, app.Workflows)
	assert.NotNil(t, app.Permissions)
	assert.NotNil(t, app.Inbox)
	assert.Equal(t, 0, c.Workers().Count())

	health := c.Health(context.Background())
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)
	assert.True(t, health.Components["dispatcher"].Healthy)
	assert.Equal(t, fmt.Sprintf("handlers: %d", len(event.LifecycleTypes)), health.Components["dispatcher"].Message)
	_, hasRedis := health.Components["redis"]
	assert.False(t, hasRedis)
	assert.NoError(t, c.HealthCheck(context.Background()))

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close(), "second close")
	assert.Error(t, c.Start(context.Background()), "start after close")
}

func TestContainer_SeedAndRelay(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.Workflow.SeedFile = filepath.Join(t.TempDir(), "workflows.yaml")
	require.NoError(t, os.WriteFile(cfg.Workflow.SeedFile, []byte(seedYAML), 0o644))

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	ctx := context.Background()
	wf, err := c.Repositories().Workflow.GetByName(ctx, "ADMISSION")
	require.NoError(t, err)
	require.NotNil(t, wf)

	def, err := c.Application().Workflows.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Len(t, def.Steps, 2)

	assert.Equal(t, 1, c.Workers().Count())
	health := c.Health(ctx)
	assert.True(t, health.Components["redis"].Healthy)
	assert.True(t, health.Overall)
}

func TestContainer_StartFailsOnUnreachableRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = addr

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)

	err = c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publisher")
	assert.False(t, c.Ready())
}

const shippedWorkflows = "../../configs/workflows.yaml"

func companyGrant(userID, key, companyID string) entity.UserPermission {
	company := entity.ScopeCompany
	return entity.UserPermission{UserID: userID, PermissionKey: key, ScopeType: &company, ScopeID: &companyID}
}

func TestContainer_CancellationWithShippedWorkflows(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.SeedFile = shippedWorkflows

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	defer c.Close()

	for _, q := range []string{
		`INSERT INTO companies (id, trade_name) VALUES ('C1', 'Acme')`,
		`INSERT INTO contracts (id, company_id, name) VALUES ('K1', 'C1', 'Main')`,
		`INSERT INTO users (id, name, email, role) VALUES ('u-sol', 'Sol', 'sol@acme.test', 'SOLICITANTE')`,
		`INSERT INTO users (id, name, email, role) VALUES ('u-mgr', 'Mgr', 'mgr@acme.test', 'GESTAO')`,
	} {
		_, err := c.database.ExecContext(ctx, q)
		require.NoError(t, err)
	}

	app := c.Application()
	require.NoError(t, app.Permissions.SetUserPermissions(ctx, "u-sol", []entity.UserPermission{
		companyGrant("u-sol", entity.PermRequestsCreate, "C1"),
		{UserID: "u-sol", PermissionKey: entity.PermRequestsUpdate + entity.OwnSuffix},
	}))
	require.NoError(t, app.Permissions.SetUserPermissions(ctx, "u-mgr", []entity.UserPermission{
		companyGrant("u-mgr", entity.PermRequestsUpdate, "C1"),
	}))

	sol := entity.Actor{UserID: "u-sol", Role: entity.RoleSolicitant}
	mgr := entity.Actor{UserID: "u-mgr", Role: entity.RoleManagement}

	req, err := app.Requests.Create(ctx, sol, "ADMISSION", entity.RequestPayload{
		CompanyID: "C1", ContractID: "K1", CandidateName: "Ana",
	})
	require.NoError(t, err)
	assert.Equal(t, "SENT_TO_MANAGEMENT", req.Status)

	req, err = app.Requests.RequestCancellation(ctx, sol, req.ID, "position filled")
	require.NoError(t, err)
	assert.Equal(t, entity.StepCancellationRequested, req.Status)

	req, err = app.Requests.ResolveCancellation(ctx, mgr, req.ID, false, "keep it")
	require.NoError(t, err)
	assert.Equal(t, "SENT_TO_MANAGEMENT", req.Status, "denial restores the previous status")

	_, err = app.Requests.RequestCancellation(ctx, sol, req.ID, "really")
	require.NoError(t, err)
	req, err = app.Requests.ResolveCancellation(ctx, mgr, req.ID, true, "")
	require.NoError(t, err)
	assert.Equal(t, entity.StepCancelled, req.Status)

	_, err = app.Requests.AdvanceStatus(ctx, mgr, req.ID, "SENT_TO_MANAGEMENT", "reopen")
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition, "a cancelled request stays cancelled")
}

func TestContainer_RestartKeepsEditedWorkflows(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.SeedFile = shippedWorkflows
	ctx := context.Background()

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	wf, err := c.Repositories().Workflow.GetByName(ctx, "TERMINATION")
	require.NoError(t, err)
	sent, err := c.Repositories().Step.GetByName(ctx, "SENT_TO_MANAGEMENT")
	require.NoError(t, err)
	done, err := c.Repositories().Step.GetByName(ctx, "TERMINATION_COMPLETED")
	require.NoError(t, err)

	_, err = c.Application().Workflows.ReplaceSteps(ctx, wf.ID, []entity.WorkflowStep{
		{StepID: sent.ID, Order: 1, AllowedNextStepIDs: []string{done.ID}},
		{StepID: done.ID, Order: 2, Final: true},
	})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))
	defer c.Close()

	def, err := c.Application().Workflows.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Len(t, def.Steps, 2)
}
