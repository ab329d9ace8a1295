package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/application/workflow"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	domainwf "github.com/garyjia/hr-requests/internal/domain/workflow"
	"github.com/garyjia/hr-requests/internal/infrastructure/persistence/dbtx"
	"github.com/garyjia/hr-requests/internal/infrastructure/persistence/repository"
	"github.com/garyjia/hr-requests/migrations"
	"github.com/garyjia/hr-requests/pkg/database"
)

const admissionYAML = `
steps:
  - name: SENT_TO_MANAGEMENT
    description: Waiting for the client manager
    default_role: SOLICITANTE
  - name: APPROVED
    default_role: GESTAO
  - name: HIRED
    default_role: RH
workflows:
  - name: ADMISSION
    description: New hire
    steps:
      - step: SENT_TO_MANAGEMENT
        next: [APPROVED]
      - step: APPROVED
        role: rh
        next: [HIRED]
      - step: HIRED
`

type fixture struct {
	seeder    *Seeder
	store     workflow.Store
	stepRepo  port.StepRepository
	workflows port.WorkflowRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Driver: "sqlite3",
		Path:   filepath.Join(t.TempDir(), "seed.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fsys, dir := migrations.FS(db.Dialect())
	_, err = database.NewMigrator(db, logger).RunMigrations(fsys, dir)
	require.NoError(t, err)

	tx := dbtx.New(db, logger)
	stepRepo := repository.NewStepRepository(tx, logger)
	workflowRepo := repository.NewWorkflowRepository(tx, logger)
	store := workflow.NewStore(workflowRepo, stepRepo, tx)

	return &fixture{
		seeder:    NewSeeder(stepRepo, workflowRepo, store, tx, logger),
		store:     store,
		stepRepo:  stepRepo,
		workflows: workflowRepo,
	}
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(admissionYAML))
	require.NoError(t, err)
	assert.Len(t, f.Steps, 3)
	require.Len(t, f.Workflows, 1)
	assert.Equal(t, []string{"APPROVED"}, f.Workflows[0].Steps[0].Next)

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "  \n", "empty"},
		{"unknown field", "steps:\n  - name: A\n    default_role: RH\n    colour: red\n", "decode"},
		{"bad role", "steps:\n  - name: A\n    default_role: BOSS\n", "unknown role"},
		{"duplicate step", "steps:\n  - name: A\n    default_role: RH\n  - name: A\n    default_role: RH\n", "declared twice"},
		{"workflow without steps", "workflows:\n  - name: W\n", "has no steps"},
		{"bad override", "workflows:\n  - name: W\n    steps:\n      - step: A\n        role: CEO\n", "unknown role"},
		{"final with exits", "workflows:\n  - name: W\n    steps:\n      - step: A\n        final: true\n        next: [B]\n", "final step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(admissionYAML), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ADMISSION", f.Workflows[0].Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSeeder_Apply(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	f, err := Parse([]byte(admissionYAML))
	require.NoError(t, err)

	res, err := fx.seeder.Apply(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, &Result{StepsCreated: 3, WorkflowsCreated: 1}, res)

	wf, err := fx.store.ActiveWorkflow(ctx, "ADMISSION")
	require.NoError(t, err)

	g, err := fx.store.Graph(ctx, wf.ID)
	require.NoError(t, err)
	initial, err := g.Initial()
	require.NoError(t, err)
	assert.Equal(t, "SENT_TO_MANAGEMENT", initial.Name())
	assert.True(t, g.IsTransitionAllowed("SENT_TO_MANAGEMENT", "APPROVED"))
	assert.False(t, g.IsTransitionAllowed("SENT_TO_MANAGEMENT", "HIRED"))

	role, err := fx.store.ResolveResponsibleRole(ctx, wf.ID, "APPROVED")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleHR, role)

	// Re-applying is a no-op
	res, err = fx.seeder.Apply(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, &Result{}, res)
}

func TestSeeder_ApplyUpdatesChangedDefinitions(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	f, err := Parse([]byte(admissionYAML))
	require.NoError(t, err)
	_, err = fx.seeder.Apply(ctx, f)
	require.NoError(t, err)

	inactive := false
	f.Steps[1].Description = "Manager approved"
	f.Workflows[0].Active = &inactive

	res, err := fx.seeder.Apply(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 1, res.StepsUpdated)
	assert.Equal(t, 1, res.WorkflowsUpdated)

	step, err := fx.stepRepo.GetByName(ctx, "APPROVED")
	require.NoError(t, err)
	assert.Equal(t, "Manager approved", step.Description)

	_, err = fx.store.ActiveWorkflow(ctx, "ADMISSION")
	assert.True(t, errors.Is(err, domainwf.ErrInvalidWorkflow))
}

func TestSeeder_ApplyMissingKeepsExistingDefinitions(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	f, err := Parse([]byte(admissionYAML))
	require.NoError(t, err)

	res, err := fx.seeder.ApplyMissing(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, &Result{StepsCreated: 3, WorkflowsCreated: 1}, res)

	// An administrator trims the workflow and edits a step
	_, err = fx.seeder.ReplaceSteps(ctx, "ADMISSION", []PlacementDef{
		{Step: "SENT_TO_MANAGEMENT", Next: []string{"HIRED"}},
		{Step: "HIRED", Final: true},
	})
	require.NoError(t, err)
	approved, err := fx.stepRepo.GetByName(ctx, "APPROVED")
	require.NoError(t, err)
	approved.DefaultRole = entity.RoleAdmin
	require.NoError(t, fx.stepRepo.Update(ctx, approved))

	// A new workflow in the file is still picked up
	f.Workflows = append(f.Workflows, WorkflowDef{
		Name:  "TERMINATION",
		Steps: []PlacementDef{{Step: "SENT_TO_MANAGEMENT"}},
	})

	res, err = fx.seeder.ApplyMissing(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, &Result{WorkflowsCreated: 1}, res)

	wf, err := fx.workflows.GetByName(ctx, "ADMISSION")
	require.NoError(t, err)
	def, err := fx.store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, def.Steps, 2, "existing placements survive")
	assert.True(t, def.Steps[1].Final)

	approved, err = fx.stepRepo.GetByName(ctx, "APPROVED")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleAdmin, approved.DefaultRole, "existing steps survive")

	// Apply still makes the store match the file
	_, err = fx.seeder.Apply(ctx, f)
	require.NoError(t, err)
	def, err = fx.store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Len(t, def.Steps, 3)
}

func TestSeeder_ApplyRollsBackOnUnknownStep(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	f, err := Parse([]byte(`
steps:
  - name: OPEN
    default_role: RH
workflows:
  - name: BROKEN
    steps:
      - step: OPEN
        next: [NOWHERE]
`))
	require.NoError(t, err)

	_, err = fx.seeder.Apply(ctx, f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainwf.ErrUnknownStep))

	step, err := fx.stepRepo.GetByName(ctx, "OPEN")
	require.NoError(t, err)
	assert.Nil(t, step, "step creation must roll back with the failed workflow")

	wf, err := fx.workflows.GetByName(ctx, "BROKEN")
	require.NoError(t, err)
	assert.Nil(t, wf)
}

func TestSeeder_ReplaceSteps(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	f, err := Parse([]byte(admissionYAML))
	require.NoError(t, err)
	_, err = fx.seeder.Apply(ctx, f)
	require.NoError(t, err)

	steps, err := ParsePlacements([]byte(`
- step: SENT_TO_MANAGEMENT
  next: [HIRED]
- step: HIRED
`))
	require.NoError(t, err)

	def, err := fx.seeder.ReplaceSteps(ctx, "ADMISSION", steps)
	require.NoError(t, err)
	require.Len(t, def.Steps, 2)
	assert.Equal(t, "HIRED", def.Steps[1].Step.Name)
	assert.Equal(t, "New hire", def.Description, "workflow metadata is untouched")

	_, err = fx.seeder.ReplaceSteps(ctx, "DISMISSAL", steps)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	_, err = fx.seeder.ReplaceSteps(ctx, "ADMISSION", nil)
	assert.ErrorIs(t, err, domainwf.ErrInvalidWorkflow)

	_, err = fx.seeder.ReplaceSteps(ctx, "ADMISSION", []PlacementDef{{Step: "FIRED"}})
	assert.ErrorIs(t, err, domainwf.ErrUnknownStep)
}

func TestParsePlacements_Invalid(t *testing.T) {
	_, err := ParsePlacements([]byte("- step: A\n  colour: red\n"))
	assert.Error(t, err)

	_, err = ParsePlacements([]byte("- role: RH\n"))
	assert.Error(t, err)
}

func TestSeeder_ApplyShippedDefinitions(t *testing.T) {
	f, err := LoadFile(filepath.Join("..", "..", "..", "configs", "workflows.yaml"))
	require.NoError(t, err)

	fx := newFixture(t)
	ctx := context.Background()
	res, err := fx.seeder.Apply(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 3, res.WorkflowsCreated)

	wf, err := fx.workflows.GetByName(ctx, "ADMISSION")
	require.NoError(t, err)
	ok, err := fx.store.IsTransitionAllowed(ctx, wf.ID, "SENT_TO_MANAGEMENT", entity.StepCancellationRequested)
	require.NoError(t, err)
	assert.True(t, ok)

	role, err := fx.store.ResolveResponsibleRole(ctx, wf.ID, entity.StepCancellationRequested)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleSolicitant, role, "the solicitant asks for cancellation")

	for _, final := range []string{entity.StepCancelled, "REJECTED", "ADMITTED"} {
		ok, err := fx.store.IsTransitionAllowed(ctx, wf.ID, final, "SENT_TO_MANAGEMENT")
		require.NoError(t, err)
		assert.False(t, ok, "%s has no exit", final)
	}
}
