package request

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/garyjia/hr-requests/internal/application/dispatcher"
	"github.com/garyjia/hr-requests/internal/application/permission"
	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/application/workflow"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/domain/event"
	domainwf "github.com/garyjia/hr-requests/internal/domain/workflow"
	"github.com/garyjia/hr-requests/pkg/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	requestRepo   port.RequestRepository
	statusLogRepo port.StatusLogRepository
	stepRepo      port.StepRepository
	referenceRepo port.ReferenceRepository
	definitions   workflow.DefinitionStore
	permissions   permission.Resolver
	txManager     port.TransactionManager
	logger        Logger

	dispatcher       dispatcher.Dispatcher
	exporter         port.RequestExporter
	location         *time.Location
	now              func() time.Time
	terminalSteps    map[string]bool
	protocolAttempts int
}

// Option configures the engine
type Option func(*engineImpl)

// WithDispatcher sets the dispatcher that receives lifecycle events after commit
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithExporter sets the renderer used by ExportRequests
func WithExporter(x port.RequestExporter) Option {
	return func(e *engineImpl) {
		e.exporter = x
	}
}

// WithLocation sets the time zone that defines a protocol's calendar day
func WithLocation(loc *time.Location) Option {
	return func(e *engineImpl) {
		if loc != nil {
			e.location = loc
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithTerminalSteps replaces the set of step names a request cannot be cancelled from
func WithTerminalSteps(steps []string) Option {
	return func(e *engineImpl) {
		if len(steps) == 0 {
			return
		}
		e.terminalSteps = make(map[string]bool, len(steps))
		for _, s := range steps {
			e.terminalSteps[s] = true
		}
	}
}

// WithProtocolAttempts bounds how many times Create retries on a protocol collision
func WithProtocolAttempts(n int) Option {
	return func(e *engineImpl) {
		if n > 0 {
			e.protocolAttempts = n
		}
	}
}

// NewEngine creates a new request engine
func NewEngine(
	requestRepo port.RequestRepository,
	statusLogRepo port.StatusLogRepository,
	stepRepo port.StepRepository,
	referenceRepo port.ReferenceRepository,
	definitions workflow.DefinitionStore,
	permissions permission.Resolver,
	txManager port.TransactionManager,
	logger Logger,
	opts ...Option,
) Engine {
	e := &engineImpl{
		requestRepo:      requestRepo,
		statusLogRepo:    statusLogRepo,
		stepRepo:         stepRepo,
		referenceRepo:    referenceRepo,
		definitions:      definitions,
		permissions:      permissions,
		txManager:        txManager,
		logger:           logger,
		location:         time.UTC,
		now:              time.Now,
		protocolAttempts: 3,
	}
	WithTerminalSteps(entity.DefaultTerminalSteps)(e)

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Create opens a request in the initial step of the named workflow
func (e *engineImpl) Create(ctx context.Context, actor entity.Actor, workflowName string, payload entity.RequestPayload) (*entity.Request, error) {
	wf, err := e.definitions.ActiveWorkflow(ctx, workflowName)
	if err != nil {
		return nil, err
	}

	sc, err := e.permissions.ResolveScope(ctx, actor, entity.PermRequestsCreate)
	if err != nil {
		return nil, err
	}
	if !sc.AllowsCompany(payload.CompanyID) && !sc.AllowsContract(payload.ContractID) {
		return nil, fmt.Errorf("%w: user %s cannot create requests for company %s",
			entity.ErrPermissionDenied, actor.UserID, payload.CompanyID)
	}

	if err := e.validateReferences(ctx, payload); err != nil {
		return nil, err
	}
	if err := normalizeCandidate(&payload); err != nil {
		return nil, err
	}

	initial, err := e.definitions.GetInitialStep(ctx, wf.ID)
	if err != nil {
		return nil, err
	}

	protocols := NewProtocolGenerator(e.requestRepo, e.location)
	req := &entity.Request{
		WorkflowID:     wf.ID,
		WorkflowName:   wf.Name,
		Status:         initial.Name,
		CompanyID:      payload.CompanyID,
		ContractID:     payload.ContractID,
		WorkLocationID: payload.WorkLocationID,
		PositionID:     payload.PositionID,
		EmployeeID:     payload.EmployeeID,
		SolicitantID:   actor.UserID,
		CandidateName:  payload.CandidateName,
		CandidateCPF:   payload.CandidateCPF,
		CandidatePhone: payload.CandidatePhone,
		Reason:         payload.Reason,
		Version:        1,
	}

	for attempt := 1; ; attempt++ {
		now := e.now().UTC()
		err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			protocol, err := protocols.Generate(txCtx, now)
			if err != nil {
				return err
			}
			req.Protocol = protocol
			req.CreatedAt = now
			req.UpdatedAt = now

			if err := e.requestRepo.Create(txCtx, req); err != nil {
				return err
			}

			return e.statusLogRepo.Create(txCtx, &entity.RequestStatusLog{
				RequestID:     req.ID,
				Status:        initial.Name,
				ResponsibleID: actor.UserID,
				Notes:         entity.NoteCreated,
				CreatedAt:     now,
			})
		})
		if err == nil {
			break
		}
		if !errors.Is(err, entity.ErrDuplicateProtocol) || attempt >= e.protocolAttempts {
			e.logger.Error("Failed to create request",
				"workflow", wf.Name,
				"attempt", attempt,
				"error", err,
			)
			return nil, err
		}
		e.logger.Warn("Protocol collision, retrying",
			"protocol", req.Protocol,
			"attempt", attempt,
		)
	}

	e.logger.Info("Request created",
		"request_id", req.ID,
		"protocol", req.Protocol,
		"workflow", wf.Name,
		"status", req.Status,
	)

	e.publish(ctx, event.TypeRequestCreated, req, actor, "", entity.NoteCreated, nil)
	return req, nil
}

// normalizeCandidate cleans the free-text fields and checks CPF and phone when present
func normalizeCandidate(p *entity.RequestPayload) error {
	p.CandidateName = utils.SanitizeString(p.CandidateName)
	p.Reason = utils.SanitizeString(p.Reason)

	if p.CandidateCPF != "" {
		if err := utils.ValidateCPF(p.CandidateCPF); err != nil {
			return fmt.Errorf("%w: %v", entity.ErrInvalidData, err)
		}
		p.CandidateCPF = utils.NormalizeCPF(p.CandidateCPF)
	}
	if p.CandidatePhone != "" {
		if err := utils.ValidatePhone(p.CandidatePhone); err != nil {
			return fmt.Errorf("%w: %v", entity.ErrInvalidData, err)
		}
	}
	return nil
}

// validateReferences checks the payload's entities exist and belong to each other
func (e *engineImpl) validateReferences(ctx context.Context, p entity.RequestPayload) error {
	if p.CompanyID == "" || p.ContractID == "" {
		return fmt.Errorf("%w: company and contract are required", entity.ErrInvalidData)
	}

	company, err := e.referenceRepo.GetCompany(ctx, p.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to fetch company: %w", err)
	}
	if company == nil {
		return fmt.Errorf("%w: company %s not found", entity.ErrInvalidData, p.CompanyID)
	}

	contract, err := e.referenceRepo.GetContract(ctx, p.ContractID)
	if err != nil {
		return fmt.Errorf("failed to fetch contract: %w", err)
	}
	if contract == nil {
		return fmt.Errorf("%w: contract %s not found", entity.ErrInvalidData, p.ContractID)
	}
	if contract.CompanyID != p.CompanyID {
		return fmt.Errorf("%w: contract %s does not belong to company %s", entity.ErrInvalidData, p.ContractID, p.CompanyID)
	}

	if p.WorkLocationID != nil && *p.WorkLocationID != "" {
		loc, err := e.referenceRepo.GetWorkLocation(ctx, *p.WorkLocationID)
		if err != nil {
			return fmt.Errorf("failed to fetch work location: %w", err)
		}
		if loc == nil {
			return fmt.Errorf("%w: work location %s not found", entity.ErrInvalidData, *p.WorkLocationID)
		}
		if loc.ContractID != p.ContractID {
			return fmt.Errorf("%w: work location %s does not belong to contract %s", entity.ErrInvalidData, loc.ID, p.ContractID)
		}
	}

	if p.PositionID != nil && *p.PositionID != "" {
		pos, err := e.referenceRepo.GetPosition(ctx, *p.PositionID)
		if err != nil {
			return fmt.Errorf("failed to fetch position: %w", err)
		}
		if pos == nil {
			return fmt.Errorf("%w: position %s not found", entity.ErrInvalidData, *p.PositionID)
		}
	}

	if p.EmployeeID != nil && *p.EmployeeID != "" {
		emp, err := e.referenceRepo.GetEmployee(ctx, *p.EmployeeID)
		if err != nil {
			return fmt.Errorf("failed to fetch employee: %w", err)
		}
		if emp == nil {
			return fmt.Errorf("%w: employee %s not found", entity.ErrInvalidData, *p.EmployeeID)
		}
		if emp.ContractID != p.ContractID {
			return fmt.Errorf("%w: employee %s does not belong to contract %s", entity.ErrInvalidData, emp.ID, p.ContractID)
		}
		if p.WorkLocationID != nil && *p.WorkLocationID != "" && emp.WorkLocationID != nil && *emp.WorkLocationID != *p.WorkLocationID {
			return fmt.Errorf("%w: employee %s does not work at location %s", entity.ErrInvalidData, emp.ID, *p.WorkLocationID)
		}
	}

	return nil
}

// AdvanceStatus moves a request to targetStep
func (e *engineImpl) AdvanceStatus(ctx context.Context, actor entity.Actor, requestID, targetStep, notes string) (*entity.Request, error) {
	req, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return e.transition(ctx, actor, req, targetStep, notes, transitionOptions{eventType: event.TypeStatusChanged})
}

// RequestCancellation asks for a request to be cancelled
func (e *engineImpl) RequestCancellation(ctx context.Context, actor entity.Actor, requestID, reason string) (*entity.Request, error) {
	req, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.SolicitantID != actor.UserID {
		return nil, fmt.Errorf("%w: only the solicitant of request %s may ask for its cancellation",
			entity.ErrPermissionDenied, req.Protocol)
	}
	if e.terminalSteps[req.Status] {
		return nil, fmt.Errorf("%w: request %s is in terminal status %s and cannot be cancelled",
			domainwf.ErrInvalidTransition, req.Protocol, req.Status)
	}

	notes := reason
	if notes == "" {
		notes = "cancellation requested"
	}

	return e.transition(ctx, actor, req, entity.StepCancellationRequested, notes, transitionOptions{
		eventType: event.TypeCancellationRequested,
	})
}

// ResolveCancellation settles a pending cancellation
func (e *engineImpl) ResolveCancellation(ctx context.Context, actor entity.Actor, requestID string, approved bool, notes string) (*entity.Request, error) {
	req, err := e.load(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.Status != entity.StepCancellationRequested {
		return nil, fmt.Errorf("%w: request %s has status %s, cancellation can only be resolved from %s",
			domainwf.ErrInvalidTransition, req.Protocol, req.Status, entity.StepCancellationRequested)
	}

	sc, err := e.permissions.ResolveScope(ctx, actor, entity.PermRequestsUpdate)
	if err != nil {
		return nil, err
	}
	if !sc.AllowsCompany(req.CompanyID) && !sc.AllowsContract(req.ContractID) {
		return nil, fmt.Errorf("%w: user %s cannot manage requests of company %s",
			entity.ErrPermissionDenied, actor.UserID, req.CompanyID)
	}

	opts := transitionOptions{
		eventType: event.TypeCancellationResolved,
		payload:   map[string]interface{}{event.PayloadApproved: approved},
	}

	if approved {
		return e.transition(ctx, actor, req, entity.StepCancelled, notes, opts)
	}

	previous, err := e.statusBeforeCancellation(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	// The rollback target is computed from history, so it is not required to be a configured edge.
	// Denial requires the role of the CANCELLED step.
	opts.skipTransitionCheck = true
	opts.roleStep = entity.StepCancelled
	return e.transition(ctx, actor, req, previous, notes, opts)
}

// statusBeforeCancellation returns the most recent status logged before the latest cancellation request
func (e *engineImpl) statusBeforeCancellation(ctx context.Context, requestID string) (string, error) {
	logs, err := e.statusLogRepo.ListByRequestID(ctx, requestID)
	if err != nil {
		return "", fmt.Errorf("failed to load status history: %w", err)
	}

	i := len(logs) - 1
	for ; i >= 0; i-- {
		if logs[i].Status == entity.StepCancellationRequested {
			break
		}
	}
	for i--; i >= 0; i-- {
		if logs[i].Status != entity.StepCancellationRequested {
			return logs[i].Status, nil
		}
	}

	e.logger.Error("No status precedes the cancellation request", "request_id", requestID, "log_entries", len(logs))
	return "", fmt.Errorf("%w: request %s has no status before its cancellation request", entity.ErrRollbackImpossible, requestID)
}

type transitionOptions struct {
	eventType           event.Type
	payload             map[string]interface{}
	skipTransitionCheck bool

	// roleStep names the step whose responsible role is required instead of the target's
	roleStep string
}

// transition is the shared machinery behind every status change
func (e *engineImpl) transition(ctx context.Context, actor entity.Actor, req *entity.Request, target, notes string, opts transitionOptions) (*entity.Request, error) {
	from := req.Status

	current, err := e.stepRepo.GetByName(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch step: %w", err)
	}
	if current == nil {
		return nil, fmt.Errorf("%w: current status %s is not a known step", domainwf.ErrUnknownStep, from)
	}
	targetStep, err := e.stepRepo.GetByName(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch step: %w", err)
	}
	if targetStep == nil {
		return nil, fmt.Errorf("%w: target status %s is not a known step", domainwf.ErrUnknownStep, target)
	}

	graph, err := e.definitions.Graph(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	roleStep := target
	if opts.roleStep != "" {
		roleStep = opts.roleStep
	}
	required := targetStep.DefaultRole
	if node, ok := graph.Node(roleStep); ok {
		required = node.Role()
	}
	if !actor.Role.BypassesScope() && actor.Role != required {
		return nil, fmt.Errorf("%w: role %s required to move request %s to %s, actor has %s",
			entity.ErrPermissionDenied, required, req.Protocol, target, actor.Role)
	}

	if opts.skipTransitionCheck {
		if !graph.Contains(target) {
			return nil, fmt.Errorf("%w: %s is not a step of workflow %s",
				domainwf.ErrInvalidTransition, target, graph.Workflow().Name)
		}
	} else {
		allowed, err := e.definitions.IsTransitionAllowed(ctx, req.WorkflowID, from, target)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: transition %s -> %s not permitted in workflow %s",
				domainwf.ErrInvalidTransition, from, target, graph.Workflow().Name)
		}
	}

	if actor.Role.RequiresScope() {
		sc, err := e.permissions.ResolveScope(ctx, actor, entity.PermRequestsUpdate)
		if err != nil {
			return nil, err
		}
		if !sc.AllowsRequest(req.CompanyID, req.ContractID, req.SolicitantID) {
			return nil, fmt.Errorf("%w: request %s is outside the update scope of user %s",
				entity.ErrPermissionDenied, req.Protocol, actor.UserID)
		}
	}

	now := e.now().UTC()
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := e.requestRepo.UpdateStatus(txCtx, req.ID, target, req.Version, now); err != nil {
			return err
		}
		return e.statusLogRepo.Create(txCtx, &entity.RequestStatusLog{
			RequestID:     req.ID,
			Status:        target,
			ResponsibleID: actor.UserID,
			Notes:         notes,
			CreatedAt:     now,
		})
	})
	if err != nil {
		if errors.Is(err, entity.ErrConcurrentModification) {
			e.logger.Warn("Request changed concurrently", "request_id", req.ID, "expected_version", req.Version)
		} else {
			e.logger.Error("Failed to change request status", "request_id", req.ID, "error", err)
		}
		return nil, err
	}

	e.logger.Info("Request status changed",
		"request_id", req.ID,
		"protocol", req.Protocol,
		"from", from,
		"to", target,
		"actor_id", actor.UserID,
	)

	req.Status = target
	req.Version++
	req.UpdatedAt = now
	e.publish(ctx, opts.eventType, req, actor, from, notes, opts.payload)

	reloaded, err := e.requestRepo.GetByID(ctx, req.ID)
	if err != nil || reloaded == nil {
		// Committed already; fall back to the in-memory copy
		return req, nil
	}
	return reloaded, nil
}

// publish dispatches a lifecycle event after commit; failures never reach the caller
func (e *engineImpl) publish(ctx context.Context, t event.Type, req *entity.Request, actor entity.Actor, from, notes string, extra map[string]interface{}) {
	if e.dispatcher == nil {
		return
	}

	payload := map[string]interface{}{
		event.PayloadWorkflowID: req.WorkflowID,
		event.PayloadFromStatus: from,
		event.PayloadToStatus:   req.Status,
		event.PayloadActorID:    actor.UserID,
		event.PayloadActorRole:  string(actor.Role),
		event.PayloadNotes:      notes,
		event.PayloadProtocol:   req.Protocol,
		event.PayloadCompanyID:  req.CompanyID,
		event.PayloadSolicitant: req.SolicitantID,
	}
	for k, v := range extra {
		payload[k] = v
	}

	e.dispatcher.DispatchAsync(ctx, event.NewEventWithCorrelation(t, req.ID, payload, event.CorrelationIDFromContext(ctx)))
}

func (e *engineImpl) load(ctx context.Context, requestID string) (*entity.Request, error) {
	req, err := e.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request %s", entity.ErrNotFound, requestID)
	}
	return req, nil
}

// GetRequest returns a request in the actor's read scope with its status history
func (e *engineImpl) GetRequest(ctx context.Context, actor entity.Actor, requestID string) (*entity.Request, error) {
	sc, err := e.permissions.ResolveScope(ctx, actor, entity.PermRequestsRead)
	if err != nil {
		return nil, err
	}

	req, err := e.requestRepo.FindByID(ctx, requestID, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request %s", entity.ErrNotFound, requestID)
	}

	history, err := e.statusLogRepo.ListByRequestID(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load status history: %w", err)
	}
	req.StatusHistory = history

	if g, err := e.definitions.Graph(ctx, req.WorkflowID); err != nil {
		e.logger.Warn("Next statuses unavailable", "request_id", req.ID, "error", err)
	} else {
		req.NextStatuses = domainwf.NewMachine(g, req.Status).PermittedTargets()
	}

	return req, nil
}

// ListRequests returns one page of requests in the actor's read scope
func (e *engineImpl) ListRequests(ctx context.Context, actor entity.Actor, filter entity.RequestFilter) (*entity.RequestPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}

	page := &entity.RequestPage{Requests: []*entity.Request{}, Page: filter.Page, Limit: filter.Limit}

	sc, err := e.permissions.ResolveScope(ctx, actor, entity.PermRequestsRead)
	if err != nil {
		return nil, err
	}
	if sc.IsDenied() {
		return page, nil
	}

	requests, total, err := e.requestRepo.List(ctx, filter, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	page.Requests = requests
	page.Total = total

	return page, nil
}

// ExportRequests renders every matching request in the actor's export scope
func (e *engineImpl) ExportRequests(ctx context.Context, actor entity.Actor, filter entity.RequestFilter, w io.Writer) error {
	if e.exporter == nil {
		return fmt.Errorf("%w: no request exporter configured", domainwf.ErrConfiguration)
	}

	sc, err := e.permissions.ResolveScope(ctx, actor, entity.PermRequestsExport)
	if err != nil {
		return err
	}
	if sc.IsDenied() {
		return fmt.Errorf("%w: user %s holds no %s grant", entity.ErrPermissionDenied, actor.UserID, entity.PermRequestsExport)
	}

	filter.Page, filter.Limit = 0, 0
	requests, _, err := e.requestRepo.List(ctx, filter, sc)
	if err != nil {
		return fmt.Errorf("failed to list requests: %w", err)
	}

	if err := e.exporter.Export(ctx, w, requests); err != nil {
		return fmt.Errorf("failed to export requests: %w", err)
	}

	e.logger.Info("Requests exported", "actor_id", actor.UserID, "count", len(requests), "scope", sc.String())
	return nil
}

// Verify interface compliance
var _ Engine = (*engineImpl)(nil)
