package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
)

func TestWorkflowRepository_ReplaceAndGetSteps(t *testing.T) {
	_, db := openTestDB(t)
	ctx := context.Background()
	logger := zap.NewNop()
	steps := NewStepRepository(db, logger)
	workflows := NewWorkflowRepository(db, logger)

	sent := &entity.Step{Name: "SENT_TO_MANAGEMENT", DefaultRole: entity.RoleManagement}
	approved := &entity.Step{Name: "APPROVED", DefaultRole: entity.RoleManagement}
	rejected := &entity.Step{Name: "REJECTED", DefaultRole: entity.RoleManagement}
	for _, s := range []*entity.Step{sent, approved, rejected} {
		require.NoError(t, steps.Create(ctx, s))
	}

	wf := &entity.Workflow{Name: "ADMISSION", IsActive: true}
	require.NoError(t, workflows.Create(ctx, wf))

	hr := entity.RoleHR
	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		return workflows.ReplaceSteps(ctx, wf.ID, []entity.WorkflowStep{
			{StepID: sent.ID, Order: 1, AllowedNextStepIDs: []string{rejected.ID, approved.ID}},
			{StepID: approved.ID, Order: 2, RoleOverride: &hr},
			{StepID: rejected.ID, Order: 3, Final: true},
		})
	})
	require.NoError(t, err)

	configs, err := workflows.GetSteps(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, configs, 3)

	assert.Equal(t, "SENT_TO_MANAGEMENT", configs[0].Step.Name)
	assert.Equal(t, []string{rejected.ID, approved.ID}, configs[0].AllowedNextStepIDs, "declaration order is kept")
	assert.Equal(t, entity.RoleHR, configs[1].ResponsibleRole())
	assert.Empty(t, configs[2].AllowedNextStepIDs)
	assert.False(t, configs[0].Final)
	assert.True(t, configs[2].Final)

	referenced, err := steps.IsReferenced(ctx, approved.ID)
	require.NoError(t, err)
	assert.True(t, referenced)

	// A second replace drops the old placement entirely
	err = db.WithTransaction(ctx, func(ctx context.Context) error {
		return workflows.ReplaceSteps(ctx, wf.ID, []entity.WorkflowStep{{StepID: sent.ID, Order: 1}})
	})
	require.NoError(t, err)

	configs, err = workflows.GetSteps(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Empty(t, configs[0].AllowedNextStepIDs)

	referenced, err = steps.IsReferenced(ctx, approved.ID)
	require.NoError(t, err)
	assert.False(t, referenced)
}

func TestWorkflowRepository_ReplaceSteps_RollsBackOnFailure(t *testing.T) {
	_, db := openTestDB(t)
	ctx := context.Background()
	logger := zap.NewNop()
	steps := NewStepRepository(db, logger)
	workflows := NewWorkflowRepository(db, logger)

	a := &entity.Step{Name: "A", DefaultRole: entity.RoleHR}
	require.NoError(t, steps.Create(ctx, a))
	wf := &entity.Workflow{Name: "TERMINATION", IsActive: true}
	require.NoError(t, workflows.Create(ctx, wf))
	require.NoError(t, db.WithTransaction(ctx, func(ctx context.Context) error {
		return workflows.ReplaceSteps(ctx, wf.ID, []entity.WorkflowStep{{StepID: a.ID, Order: 1}})
	}))

	// duplicate order violates the unique constraint halfway through
	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		return workflows.ReplaceSteps(ctx, wf.ID, []entity.WorkflowStep{
			{StepID: a.ID, Order: 1},
			{StepID: "missing", Order: 1},
		})
	})
	require.Error(t, err)

	configs, err := workflows.GetSteps(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, configs, 1, "the previous definition survives a failed replace")
}

func TestStepRepository_CRUD(t *testing.T) {
	_, db := openTestDB(t)
	ctx := context.Background()
	repo := NewStepRepository(db, zap.NewNop())

	step := &entity.Step{Name: "SENT_TO_HR", Description: "waiting on HR", DefaultRole: entity.RoleHR}
	require.NoError(t, repo.Create(ctx, step))
	require.NotEmpty(t, step.ID)

	err := repo.Create(ctx, &entity.Step{Name: "SENT_TO_HR", DefaultRole: entity.RoleHR})
	assert.ErrorIs(t, err, entity.ErrInvalidData)

	got, err := repo.GetByName(ctx, "SENT_TO_HR")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, step.ID, got.ID)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	step.Description = "updated"
	require.NoError(t, repo.Update(ctx, step))

	list, total, err := repo.List(ctx, port.StepFilter{Name: "sent", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "updated", list[0].Description)

	byIDs, err := repo.GetByIDs(ctx, []string{step.ID, "ghost"})
	require.NoError(t, err)
	assert.Len(t, byIDs, 1)

	require.NoError(t, repo.Delete(ctx, step.ID))
	assert.ErrorIs(t, repo.Delete(ctx, step.ID), entity.ErrNotFound)
}
