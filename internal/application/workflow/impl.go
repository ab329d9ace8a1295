package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	domainwf "github.com/garyjia/hr-requests/internal/domain/workflow"
)

// storeImpl is the concrete implementation of DefinitionStore and StepCatalog
type storeImpl struct {
	workflowRepo port.WorkflowRepository
	stepRepo     port.StepRepository
	txManager    port.TransactionManager
	logger       Logger
	now          func() time.Time

	// Cache graphs per workflow
	mu          sync.RWMutex
	graphs      map[string]*domainwf.Graph
	loadedAt    map[string]time.Time
	cacheExpiry time.Duration
}

// StoreOption configures the definition store
type StoreOption func(*storeImpl)

// WithCacheExpiry sets how long a loaded graph is served before it is reloaded
func WithCacheExpiry(expiry time.Duration) StoreOption {
	return func(s *storeImpl) {
		s.cacheExpiry = expiry
	}
}

// WithLogger sets the logger
func WithLogger(logger Logger) StoreOption {
	return func(s *storeImpl) {
		s.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) StoreOption {
	return func(s *storeImpl) {
		s.now = now
	}
}

// Store is a DefinitionStore that also administers the step catalogue
type Store interface {
	DefinitionStore
	StepCatalog
}

// NewStore creates a new workflow definition store
func NewStore(
	workflowRepo port.WorkflowRepository,
	stepRepo port.StepRepository,
	txManager port.TransactionManager,
	opts ...StoreOption,
) Store {
	s := &storeImpl{
		workflowRepo: workflowRepo,
		stepRepo:     stepRepo,
		txManager:    txManager,
		logger:       nopLogger{},
		now:          time.Now,
		graphs:       make(map[string]*domainwf.Graph),
		loadedAt:     make(map[string]time.Time),
		cacheExpiry:  30 * time.Minute,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ActiveWorkflow returns the active workflow with the given name
func (s *storeImpl) ActiveWorkflow(ctx context.Context, name string) (*entity.Workflow, error) {
	wf, err := s.workflowRepo.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %s: %w", name, err)
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: workflow %s does not exist", domainwf.ErrInvalidWorkflow, name)
	}
	if !wf.IsActive {
		return nil, fmt.Errorf("%w: workflow %s is inactive", domainwf.ErrInvalidWorkflow, name)
	}
	return wf, nil
}

// Graph returns the cached graph, loading it when absent or older than the cache expiry
func (s *storeImpl) Graph(ctx context.Context, workflowID string) (*domainwf.Graph, error) {
	s.mu.RLock()
	g, exists := s.graphs[workflowID]
	loaded := s.loadedAt[workflowID]
	s.mu.RUnlock()

	if exists && s.now().Sub(loaded) < s.cacheExpiry {
		return g, nil
	}

	wf, err := s.workflowRepo.GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow: %w", err)
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: workflow %s", entity.ErrNotFound, workflowID)
	}

	configs, err := s.workflowRepo.GetSteps(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow steps: %w", err)
	}

	g, err = BuildGraph(*wf, configs)
	if err != nil {
		s.logger.Error("Stored workflow definition is invalid", "workflow_id", workflowID, "error", err)
		return nil, err
	}

	s.mu.Lock()
	s.graphs[workflowID] = g
	s.loadedAt[workflowID] = s.now()
	s.mu.Unlock()

	return g, nil
}

// GetInitialStep returns the step at order 1
func (s *storeImpl) GetInitialStep(ctx context.Context, workflowID string) (*entity.Step, error) {
	g, err := s.Graph(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	node, err := g.Initial()
	if err != nil {
		return nil, err
	}
	step := node.Config().Step
	return &step, nil
}

// GetWorkflowStep returns the placement of stepName in the workflow
func (s *storeImpl) GetWorkflowStep(ctx context.Context, workflowID, stepName string) (*entity.WorkflowStepConfig, error) {
	g, err := s.Graph(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	node, ok := g.Node(stepName)
	if !ok {
		return nil, fmt.Errorf("%w: step %s is not part of workflow %s", entity.ErrNotFound, stepName, g.Workflow().Name)
	}
	return node.Config(), nil
}

// IsTransitionAllowed reports whether to is reachable from from. Open steps are logged.
func (s *storeImpl) IsTransitionAllowed(ctx context.Context, workflowID, from, to string) (bool, error) {
	g, err := s.Graph(ctx, workflowID)
	if err != nil {
		return false, err
	}
	allowed := g.IsTransitionAllowed(from, to)
	if allowed && g.IsOpen(from) {
		s.logger.Warn("Transition allowed by open step",
			"workflow", g.Workflow().Name,
			"from", from,
			"to", to,
		)
	}
	return allowed, nil
}

// ResolveResponsibleRole returns the override role when set, else the step's default role
func (s *storeImpl) ResolveResponsibleRole(ctx context.Context, workflowID, stepName string) (entity.Role, error) {
	cfg, err := s.GetWorkflowStep(ctx, workflowID, stepName)
	if err != nil {
		return "", err
	}
	return cfg.ResponsibleRole(), nil
}

// ListWorkflows returns every workflow
func (s *storeImpl) ListWorkflows(ctx context.Context) ([]*entity.Workflow, error) {
	workflows, err := s.workflowRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	return workflows, nil
}

// GetWorkflow returns a workflow with its ordered steps, bypassing the cache
func (s *storeImpl) GetWorkflow(ctx context.Context, workflowID string) (*entity.WorkflowDefinition, error) {
	wf, err := s.workflowRepo.GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow: %w", err)
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: workflow %s", entity.ErrNotFound, workflowID)
	}

	configs, err := s.workflowRepo.GetSteps(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow steps: %w", err)
	}

	def := &entity.WorkflowDefinition{Workflow: *wf, Steps: make([]entity.WorkflowStepConfig, 0, len(configs))}
	for _, cfg := range configs {
		def.Steps = append(def.Steps, *cfg)
	}
	return def, nil
}

// ReplaceSteps validates the new step list and swaps it in within one transaction
func (s *storeImpl) ReplaceSteps(ctx context.Context, workflowID string, steps []entity.WorkflowStep) (*entity.WorkflowDefinition, error) {
	wf, err := s.workflowRepo.GetByID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow: %w", err)
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: workflow %s", entity.ErrNotFound, workflowID)
	}

	configs, err := s.validateSteps(ctx, *wf, steps)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for i := range steps {
			steps[i].WorkflowID = workflowID
		}
		return s.workflowRepo.ReplaceSteps(txCtx, workflowID, steps)
	})
	if err != nil {
		s.logger.Error("Failed to replace workflow steps", "workflow_id", workflowID, "error", err)
		return nil, fmt.Errorf("failed to replace workflow steps: %w", err)
	}

	s.Invalidate(workflowID)
	s.logger.Info("Workflow steps replaced", "workflow", wf.Name, "steps", len(steps))

	def := &entity.WorkflowDefinition{Workflow: *wf, Steps: make([]entity.WorkflowStepConfig, 0, len(configs))}
	for _, cfg := range configs {
		def.Steps = append(def.Steps, *cfg)
	}
	return def, nil
}

// validateSteps checks every referenced step exists and that the list forms a valid graph
func (s *storeImpl) validateSteps(ctx context.Context, wf entity.Workflow, steps []entity.WorkflowStep) ([]*entity.WorkflowStepConfig, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: workflow %s needs at least one step", domainwf.ErrConfiguration, wf.Name)
	}

	ids := make([]string, 0, len(steps))
	placed := make(map[string]bool, len(steps))
	for _, ws := range steps {
		if ws.StepID == "" {
			return nil, fmt.Errorf("%w: step id is required", domainwf.ErrConfiguration)
		}
		if placed[ws.StepID] {
			return nil, fmt.Errorf("%w: step %s is placed twice", domainwf.ErrConfiguration, ws.StepID)
		}
		if ws.RoleOverride != nil && *ws.RoleOverride != "" && !ws.RoleOverride.IsValid() {
			return nil, fmt.Errorf("%w: step %s has unknown role override %s", domainwf.ErrConfiguration, ws.StepID, *ws.RoleOverride)
		}
		if ws.Final && len(ws.AllowedNextStepIDs) > 0 {
			return nil, fmt.Errorf("%w: final step %s cannot allow next steps", domainwf.ErrConfiguration, ws.StepID)
		}
		placed[ws.StepID] = true
		ids = append(ids, ws.StepID)
		ids = append(ids, ws.AllowedNextStepIDs...)
	}

	known, err := s.stepRepo.GetByIDs(ctx, uniqueStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch steps: %w", err)
	}

	configs := make([]*entity.WorkflowStepConfig, 0, len(steps))
	for _, ws := range steps {
		step, ok := known[ws.StepID]
		if !ok {
			return nil, fmt.Errorf("%w: step id %s does not exist", domainwf.ErrUnknownStep, ws.StepID)
		}
		for _, next := range ws.AllowedNextStepIDs {
			if _, ok := known[next]; !ok {
				return nil, fmt.Errorf("%w: next step id %s does not exist", domainwf.ErrUnknownStep, next)
			}
			if !placed[next] {
				return nil, fmt.Errorf("%w: step %s allows %s which is not part of workflow %s",
					domainwf.ErrConfiguration, step.Name, known[next].Name, wf.Name)
			}
		}
		ws.WorkflowID = wf.ID
		configs = append(configs, &entity.WorkflowStepConfig{WorkflowStep: ws, Step: *step})
	}

	g, err := BuildGraph(wf, configs)
	if err != nil {
		return nil, err
	}
	if _, err := g.Initial(); err != nil {
		return nil, err
	}

	ordered := make([]*entity.WorkflowStepConfig, 0, len(configs))
	for _, n := range g.Nodes() {
		ordered = append(ordered, n.Config())
	}
	return ordered, nil
}

// Invalidate drops the cached graph of a workflow
func (s *storeImpl) Invalidate(workflowID string) {
	s.mu.Lock()
	delete(s.graphs, workflowID)
	delete(s.loadedAt, workflowID)
	s.mu.Unlock()
}

// CreateStep adds a step to the catalogue
func (s *storeImpl) CreateStep(ctx context.Context, step *entity.Step) (*entity.Step, error) {
	if err := validateStep(step); err != nil {
		return nil, err
	}
	if err := s.stepRepo.Create(ctx, step); err != nil {
		return nil, err
	}
	s.logger.Info("Step created", "step", step.Name, "role", step.DefaultRole)
	return step, nil
}

// GetStep returns a step by id
func (s *storeImpl) GetStep(ctx context.Context, id string) (*entity.Step, error) {
	step, err := s.stepRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch step: %w", err)
	}
	if step == nil {
		return nil, fmt.Errorf("%w: step %s", entity.ErrNotFound, id)
	}
	return step, nil
}

// ListSteps returns a page of the catalogue
func (s *storeImpl) ListSteps(ctx context.Context, filter port.StepFilter) ([]*entity.Step, int, error) {
	return s.stepRepo.List(ctx, filter)
}

// UpdateStep rewrites a step and drops every cached graph, since any workflow may place it
func (s *storeImpl) UpdateStep(ctx context.Context, step *entity.Step) (*entity.Step, error) {
	if err := validateStep(step); err != nil {
		return nil, err
	}
	if err := s.stepRepo.Update(ctx, step); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.graphs = make(map[string]*domainwf.Graph)
	s.loadedAt = make(map[string]time.Time)
	s.mu.Unlock()

	s.logger.Info("Step updated", "step", step.Name)
	return step, nil
}

// DeleteStep removes a step that no workflow references
func (s *storeImpl) DeleteStep(ctx context.Context, id string) error {
	referenced, err := s.stepRepo.IsReferenced(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check step references: %w", err)
	}
	if referenced {
		return fmt.Errorf("%w: step %s is used by a workflow", domainwf.ErrConfiguration, id)
	}
	if err := s.stepRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Step deleted", "step_id", id)
	return nil
}

func validateStep(step *entity.Step) error {
	if step == nil || step.Name == "" {
		return fmt.Errorf("%w: step name is required", entity.ErrInvalidData)
	}
	if !step.DefaultRole.IsValid() {
		return fmt.Errorf("%w: unknown role %q", entity.ErrInvalidData, step.DefaultRole)
	}
	return nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// Verify interface compliance
var _ Store = (*storeImpl)(nil)
