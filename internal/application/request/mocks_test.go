package request

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/hr-requests/internal/application/dispatcher"
	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/domain/event"
	"github.com/garyjia/hr-requests/internal/domain/scope"
)

// memRequests is an in-memory RequestRepository
type memRequests struct {
	mu         sync.Mutex
	rows       map[string]*entity.Request
	createErrs []error
	creates    int
	afterGet   func(stored *entity.Request)
	listCalls  int
}

func newMemRequests() *memRequests {
	return &memRequests{rows: make(map[string]*entity.Request)}
}

func (m *memRequests) Create(ctx context.Context, req *entity.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		return err
	}
	for _, r := range m.rows {
		if r.Protocol == req.Protocol {
			return entity.ErrDuplicateProtocol
		}
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	cp := *req
	m.rows[req.ID] = &cp
	return nil
}

func (m *memRequests) GetByID(ctx context.Context, id string) (*entity.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	if m.afterGet != nil {
		m.afterGet(r)
	}
	return &cp, nil
}

func (m *memRequests) FindByID(ctx context.Context, id string, sc scope.Scope) (*entity.Request, error) {
	r, err := m.GetByID(ctx, id)
	if err != nil || r == nil {
		return r, err
	}
	if !sc.AllowsRequest(r.CompanyID, r.ContractID, r.SolicitantID) {
		return nil, nil
	}
	return r, nil
}

func (m *memRequests) UpdateStatus(ctx context.Context, id, status string, expectedVersion int64, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.Version != expectedVersion {
		return entity.ErrConcurrentModification
	}
	r.Status = status
	r.Version++
	r.UpdatedAt = updatedAt
	return nil
}

func (m *memRequests) CountCreatedBetween(ctx context.Context, start, end time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if !r.CreatedAt.Before(start) && r.CreatedAt.Before(end) {
			n++
		}
	}
	return n, nil
}

func (m *memRequests) List(ctx context.Context, filter entity.RequestFilter, sc scope.Scope) ([]*entity.Request, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var out []*entity.Request
	for _, r := range m.rows {
		if !sc.AllowsRequest(r.CompanyID, r.ContractID, r.SolicitantID) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Protocol != "" && !strings.Contains(r.Protocol, filter.Protocol) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Protocol > out[j].Protocol })
	return out, len(out), nil
}

// memLogs is an in-memory StatusLogRepository
type memLogs struct {
	mu   sync.Mutex
	rows []*entity.RequestStatusLog
}

func (m *memLogs) Create(ctx context.Context, log *entity.RequestStatusLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := 0
	for _, l := range m.rows {
		if l.RequestID == log.RequestID && l.Sequence > seq {
			seq = l.Sequence
		}
	}
	log.Sequence = seq + 1
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	cp := *log
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memLogs) ListByRequestID(ctx context.Context, requestID string) ([]*entity.RequestStatusLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.RequestStatusLog
	for _, l := range m.rows {
		if l.RequestID == requestID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

// memSteps is a StepRepository over a fixed catalogue
type memSteps struct {
	port.StepRepository
	byID map[string]*entity.Step
}

func (m *memSteps) GetByID(ctx context.Context, id string) (*entity.Step, error) {
	return m.byID[id], nil
}

func (m *memSteps) GetByName(ctx context.Context, name string) (*entity.Step, error) {
	for _, s := range m.byID {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, nil
}

func (m *memSteps) GetByIDs(ctx context.Context, ids []string) (map[string]*entity.Step, error) {
	out := make(map[string]*entity.Step)
	for _, id := range ids {
		if s, ok := m.byID[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

// memWorkflows serves one workflow definition
type memWorkflows struct {
	port.WorkflowRepository
	wf    *entity.Workflow
	steps []*entity.WorkflowStepConfig
}

func (m *memWorkflows) GetByID(ctx context.Context, id string) (*entity.Workflow, error) {
	if m.wf.ID == id {
		return m.wf, nil
	}
	return nil, nil
}

func (m *memWorkflows) GetByName(ctx context.Context, name string) (*entity.Workflow, error) {
	if m.wf.Name == name {
		return m.wf, nil
	}
	return nil, nil
}

func (m *memWorkflows) GetSteps(ctx context.Context, workflowID string) ([]*entity.WorkflowStepConfig, error) {
	return m.steps, nil
}

// memRefs serves reference data
type memRefs struct {
	companies map[string]*entity.Company
	contracts map[string]*entity.Contract
	locations map[string]*entity.WorkLocation
	positions map[string]*entity.Position
	employees map[string]*entity.Employee
}

func (m *memRefs) GetCompany(ctx context.Context, id string) (*entity.Company, error) {
	return m.companies[id], nil
}

func (m *memRefs) GetContract(ctx context.Context, id string) (*entity.Contract, error) {
	return m.contracts[id], nil
}

func (m *memRefs) GetWorkLocation(ctx context.Context, id string) (*entity.WorkLocation, error) {
	return m.locations[id], nil
}

func (m *memRefs) GetPosition(ctx context.Context, id string) (*entity.Position, error) {
	return m.positions[id], nil
}

func (m *memRefs) GetEmployee(ctx context.Context, id string) (*entity.Employee, error) {
	return m.employees[id], nil
}

func (m *memRefs) ContractIDsByCompany(ctx context.Context, companyIDs []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, c := range m.contracts {
		out[c.CompanyID] = append(out[c.CompanyID], c.ID)
	}
	return out, nil
}

// mockResolver resolves scopes with a func field
type mockResolver struct {
	resolveFn func(actor entity.Actor, key string) scope.Scope
}

func (m *mockResolver) ResolveScope(ctx context.Context, actor entity.Actor, key string) (scope.Scope, error) {
	return m.resolveFn(actor, key), nil
}

func (m *mockResolver) ListUserPermissions(ctx context.Context, userID string) ([]entity.UserPermission, error) {
	return nil, nil
}

func (m *mockResolver) SetUserPermissions(ctx context.Context, userID string, grants []entity.UserPermission) error {
	return nil
}

type mockTxManager struct {
	mu    sync.Mutex
	calls int
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return fn(ctx)
}

// mockDispatcher records async events
type mockDispatcher struct {
	dispatcher.Dispatcher
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type mockExporter struct {
	exported []*entity.Request
}

func (m *mockExporter) Export(ctx context.Context, w io.Writer, requests []*entity.Request) error {
	m.exported = requests
	_, err := w.Write([]byte("xlsx"))
	return err
}

func (m *mockExporter) ContentType() string   { return "application/octet-stream" }
func (m *mockExporter) FileExtension() string { return "bin" }

type testLogger struct {
	mu    sync.Mutex
	warns int
}

func (l *testLogger) Info(string, ...interface{})  {}
func (l *testLogger) Error(string, ...interface{}) {}
func (l *testLogger) Warn(string, ...interface{}) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}
