// Package seed loads step and workflow definitions from YAML and applies them idempotently.
// Apply makes the store match the file; ApplyMissing only fills in what is absent.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/application/workflow"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	domainwf "github.com/garyjia/hr-requests/internal/domain/workflow"
)

// File is the YAML document layout
type File struct {
	Steps     []StepDef     `yaml:"steps"`
	Workflows []WorkflowDef `yaml:"workflows"`
}

// StepDef declares a catalogue step
type StepDef struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	DefaultRole string `yaml:"default_role"`
}

// WorkflowDef declares a workflow and its ordered steps
type WorkflowDef struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Active      *bool          `yaml:"active"`
	Steps       []PlacementDef `yaml:"steps"`
}

// PlacementDef places a step, by name, inside a workflow. Order follows list position.
type PlacementDef struct {
	Step  string   `yaml:"step"`
	Role  string   `yaml:"role"`
	Next  []string `yaml:"next"`
	Final bool     `yaml:"final"`
}

// Parse decodes and validates a seed document
func Parse(data []byte) (*File, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("seed: document is empty")
	}
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads and parses a seed file
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("seed: %s: %w", path, err)
	}
	return f, nil
}

// Validate checks names and roles. Step references are checked again by the store when applied.
func (f *File) Validate() error {
	declared := make(map[string]bool, len(f.Steps))
	for i, s := range f.Steps {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("seed: steps[%d]: name is required", i)
		}
		if declared[name] {
			return fmt.Errorf("seed: step %s declared twice", name)
		}
		if _, err := entity.ParseRole(s.DefaultRole); err != nil {
			return fmt.Errorf("seed: step %s: %w", name, err)
		}
		declared[name] = true
	}

	seen := make(map[string]bool, len(f.Workflows))
	for i, wf := range f.Workflows {
		name := strings.TrimSpace(wf.Name)
		if name == "" {
			return fmt.Errorf("seed: workflows[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("seed: workflow %s declared twice", name)
		}
		seen[name] = true
		if len(wf.Steps) == 0 {
			return fmt.Errorf("seed: workflow %s has no steps", name)
		}
		for _, p := range wf.Steps {
			if strings.TrimSpace(p.Step) == "" {
				return fmt.Errorf("seed: workflow %s: step name is required", name)
			}
			if p.Final && len(p.Next) > 0 {
				return fmt.Errorf("seed: workflow %s step %s: a final step cannot list next steps", name, p.Step)
			}
			if p.Role != "" {
				if _, err := entity.ParseRole(p.Role); err != nil {
					return fmt.Errorf("seed: workflow %s step %s: %w", name, p.Step, err)
				}
			}
		}
	}
	return nil
}

// Result summarises what Apply changed
type Result struct {
	StepsCreated     int
	StepsUpdated     int
	WorkflowsCreated int
	WorkflowsUpdated int
}

// Seeder applies seed files through the repositories and the definition store
type Seeder struct {
	stepRepo     port.StepRepository
	workflowRepo port.WorkflowRepository
	definitions  workflow.DefinitionStore
	txManager    port.TransactionManager
	logger       *zap.Logger
}

// NewSeeder creates a new seeder
func NewSeeder(
	stepRepo port.StepRepository,
	workflowRepo port.WorkflowRepository,
	definitions workflow.DefinitionStore,
	txManager port.TransactionManager,
	logger *zap.Logger,
) *Seeder {
	return &Seeder{
		stepRepo:     stepRepo,
		workflowRepo: workflowRepo,
		definitions:  definitions,
		txManager:    txManager,
		logger:       logger,
	}
}

// Apply upserts steps and workflows by name and replaces each workflow's step list.
// Everything runs in one transaction; applying the same file twice changes nothing.
func (s *Seeder) Apply(ctx context.Context, f *File) (*Result, error) {
	return s.apply(ctx, f, true)
}

// ApplyMissing creates the steps and workflows that do not exist yet and leaves
// existing ones, including their placements, untouched.
func (s *Seeder) ApplyMissing(ctx context.Context, f *File) (*Result, error) {
	return s.apply(ctx, f, false)
}

func (s *Seeder) apply(ctx context.Context, f *File, overwrite bool) (*Result, error) {
	res := &Result{}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, def := range f.Steps {
			if err := s.upsertStep(txCtx, def, overwrite, res); err != nil {
				return err
			}
		}
		for _, def := range f.Workflows {
			if err := s.applyWorkflow(txCtx, def, overwrite, res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Seed applied",
		zap.Bool("overwrite", overwrite),
		zap.Int("steps_created", res.StepsCreated),
		zap.Int("steps_updated", res.StepsUpdated),
		zap.Int("workflows_created", res.WorkflowsCreated),
		zap.Int("workflows_updated", res.WorkflowsUpdated))
	return res, nil
}

func (s *Seeder) upsertStep(ctx context.Context, def StepDef, overwrite bool, res *Result) error {
	name := strings.TrimSpace(def.Name)
	role, _ := entity.ParseRole(def.DefaultRole)

	existing, err := s.stepRepo.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to fetch step %s: %w", name, err)
	}
	if existing == nil {
		step := &entity.Step{Name: name, Description: def.Description, DefaultRole: role}
		if err := s.stepRepo.Create(ctx, step); err != nil {
			return fmt.Errorf("failed to create step %s: %w", name, err)
		}
		res.StepsCreated++
		return nil
	}

	if !overwrite || (existing.Description == def.Description && existing.DefaultRole == role) {
		return nil
	}
	existing.Description = def.Description
	existing.DefaultRole = role
	if err := s.stepRepo.Update(ctx, existing); err != nil {
		return fmt.Errorf("failed to update step %s: %w", name, err)
	}
	res.StepsUpdated++
	return nil
}

func (s *Seeder) applyWorkflow(ctx context.Context, def WorkflowDef, overwrite bool, res *Result) error {
	name := strings.TrimSpace(def.Name)
	active := def.Active == nil || *def.Active

	wf, err := s.workflowRepo.GetByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to fetch workflow %s: %w", name, err)
	}
	if wf == nil {
		wf = &entity.Workflow{Name: name, Description: def.Description, IsActive: active}
		if err := s.workflowRepo.Create(ctx, wf); err != nil {
			return fmt.Errorf("failed to create workflow %s: %w", name, err)
		}
		res.WorkflowsCreated++
	} else if !overwrite {
		return nil
	} else if wf.Description != def.Description || wf.IsActive != active {
		wf.Description = def.Description
		wf.IsActive = active
		if err := s.workflowRepo.Update(ctx, wf); err != nil {
			return fmt.Errorf("failed to update workflow %s: %w", name, err)
		}
		res.WorkflowsUpdated++
	}

	if _, err := s.replace(ctx, wf, def.Steps); err != nil {
		return err
	}
	return nil
}

// ReplaceSteps swaps the step list of an existing workflow for the given placements
func (s *Seeder) ReplaceSteps(ctx context.Context, workflowName string, steps []PlacementDef) (*entity.WorkflowDefinition, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("workflow %s: %w: at least one step is required", workflowName, domainwf.ErrInvalidWorkflow)
	}
	for _, p := range steps {
		if p.Role == "" {
			continue
		}
		if _, err := entity.ParseRole(p.Role); err != nil {
			return nil, fmt.Errorf("workflow %s step %s: %w", workflowName, p.Step, err)
		}
	}

	var def *entity.WorkflowDefinition
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		wf, err := s.workflowRepo.GetByName(ctx, strings.TrimSpace(workflowName))
		if err != nil {
			return fmt.Errorf("failed to fetch workflow %s: %w", workflowName, err)
		}
		if wf == nil {
			return fmt.Errorf("workflow %s: %w", workflowName, entity.ErrNotFound)
		}
		def, err = s.replace(ctx, wf, steps)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Workflow steps replaced", zap.String("workflow", workflowName), zap.Int("steps", len(steps)))
	return def, nil
}

// replace resolves step names and hands the placements to the definition store
func (s *Seeder) replace(ctx context.Context, wf *entity.Workflow, steps []PlacementDef) (*entity.WorkflowDefinition, error) {
	placements := make([]entity.WorkflowStep, 0, len(steps))
	for i, p := range steps {
		stepID, err := s.stepID(ctx, p.Step)
		if err != nil {
			return nil, fmt.Errorf("workflow %s: %w", wf.Name, err)
		}
		ws := entity.WorkflowStep{
			WorkflowID: wf.ID,
			StepID:     stepID,
			Order:      i + 1,
			Final:      p.Final,
		}
		if p.Role != "" {
			role, _ := entity.ParseRole(p.Role)
			ws.RoleOverride = &role
		}
		for _, next := range p.Next {
			nextID, err := s.stepID(ctx, next)
			if err != nil {
				return nil, fmt.Errorf("workflow %s step %s: %w", wf.Name, p.Step, err)
			}
			ws.AllowedNextStepIDs = append(ws.AllowedNextStepIDs, nextID)
		}
		placements = append(placements, ws)
	}

	def, err := s.definitions.ReplaceSteps(ctx, wf.ID, placements)
	if err != nil {
		return nil, fmt.Errorf("failed to apply steps of workflow %s: %w", wf.Name, err)
	}
	return def, nil
}

// ParsePlacements decodes a YAML list of step placements
func ParsePlacements(data []byte) ([]PlacementDef, error) {
	var steps []PlacementDef
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&steps); err != nil {
		return nil, fmt.Errorf("seed: decode placements: %w", err)
	}
	for i, p := range steps {
		if strings.TrimSpace(p.Step) == "" {
			return nil, fmt.Errorf("seed: steps[%d]: step name is required", i)
		}
	}
	return steps, nil
}

func (s *Seeder) stepID(ctx context.Context, name string) (string, error) {
	step, err := s.stepRepo.GetByName(ctx, strings.TrimSpace(name))
	if err != nil {
		return "", fmt.Errorf("failed to fetch step %s: %w", name, err)
	}
	if step == nil {
		return "", fmt.Errorf("%w: step %s", domainwf.ErrUnknownStep, name)
	}
	return step.ID, nil
}
