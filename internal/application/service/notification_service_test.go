package service

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/garyjia/hr-requests/internal/application/workflow"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/domain/event"
	domainwf "github.com/garyjia/hr-requests/internal/domain/workflow"
)

type mockLogger struct {
	errors int
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) { m.errors++ }

// graphStore serves one prebuilt graph
type graphStore struct {
	workflow.DefinitionStore
	graph *domainwf.Graph
	err   error
}

func (g *graphStore) Graph(ctx context.Context, workflowID string) (*domainwf.Graph, error) {
	return g.graph, g.err
}

type mockUserRepo struct {
	users []*entity.User
	links map[string][]string
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) { return nil, nil }

func (m *mockUserRepo) ListActiveByRole(ctx context.Context, role entity.Role, companyID string) ([]*entity.User, error) {
	var out []*entity.User
	for _, u := range m.users {
		if u.Role != role || !u.IsActive {
			continue
		}
		if companyID != "" && !contains(m.links[u.ID], companyID) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *mockUserRepo) IsLinkedToCompany(ctx context.Context, userID, companyID string) (bool, error) {
	return contains(m.links[userID], companyID), nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

type mockReferenceRepo struct {
	getCompanyFunc func(ctx context.Context, id string) (*entity.Company, error)
}

func (m *mockReferenceRepo) GetCompany(ctx context.Context, id string) (*entity.Company, error) {
	if m.getCompanyFunc != nil {
		return m.getCompanyFunc(ctx, id)
	}
	return &entity.Company{ID: id, TradeName: "Acme"}, nil
}
func (m *mockReferenceRepo) GetContract(ctx context.Context, id string) (*entity.Contract, error) {
	return nil, nil
}
func (m *mockReferenceRepo) GetWorkLocation(ctx context.Context, id string) (*entity.WorkLocation, error) {
	return nil, nil
}
func (m *mockReferenceRepo) GetPosition(ctx context.Context, id string) (*entity.Position, error) {
	return nil, nil
}
func (m *mockReferenceRepo) GetEmployee(ctx context.Context, id string) (*entity.Employee, error) {
	return nil, nil
}
func (m *mockReferenceRepo) ContractIDsByCompany(ctx context.Context, ids []string) (map[string][]string, error) {
	return nil, nil
}

type mockNotificationRepo struct {
	created    []*entity.Notification
	createFunc func(ctx context.Context, n *entity.Notification) error
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	if m.createFunc != nil {
		if err := m.createFunc(ctx, n); err != nil {
			return err
		}
	}
	m.created = append(m.created, n)
	return nil
}

func (m *mockNotificationRepo) ListByUser(ctx context.Context, userID string, isRead *bool, page, limit int) ([]*entity.Notification, int, error) {
	var out []*entity.Notification
	for _, n := range m.created {
		if n.UserID == userID && (isRead == nil || n.IsRead == *isRead) {
			out = append(out, n)
		}
	}
	return out, len(out), nil
}

func (m *mockNotificationRepo) MarkAsRead(ctx context.Context, id, userID string) (bool, error) {
	for _, n := range m.created {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			return true, nil
		}
	}
	return false, nil
}

func (m *mockNotificationRepo) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	var count int64
	for _, n := range m.created {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

func (m *mockNotificationRepo) ListUndelivered(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error) {
	return nil, nil
}
func (m *mockNotificationRepo) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	return nil
}
func (m *mockNotificationRepo) IncrementAttempts(ctx context.Context, id string) error { return nil }

func (m *mockNotificationRepo) recipients() []string {
	var out []string
	for _, n := range m.created {
		out = append(out, n.UserID)
	}
	sort.Strings(out)
	return out
}

func admissionGraph(t *testing.T) *domainwf.Graph {
	t.Helper()
	b := domainwf.NewBuilder(entity.Workflow{ID: "wf-adm", Name: "ADMISSION"})
	b.Configure(entity.Step{ID: "s-sent", Name: "SENT_TO_MANAGEMENT", DefaultRole: entity.RoleSolicitant}, 1).
		Permit("s-approved")
	b.Configure(entity.Step{ID: "s-approved", Name: "APPROVED", DefaultRole: entity.RoleManagement}, 2).
		Permit("s-hired")
	b.Configure(entity.Step{ID: "s-hired", Name: "HIRED", DefaultRole: entity.RoleHR}, 3)
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return g
}

func newTestNotificationService(t *testing.T) (NotificationService, *mockNotificationRepo, *mockLogger) {
	t.Helper()
	users := &mockUserRepo{
		users: []*entity.User{
			{ID: "u-sol", Role: entity.RoleSolicitant, IsActive: true},
			{ID: "u-mgr", Role: entity.RoleManagement, IsActive: true},
			{ID: "u-mgr-c2", Role: entity.RoleManagement, IsActive: true},
			{ID: "u-mgr-old", Role: entity.RoleManagement, IsActive: false},
			{ID: "u-rh", Role: entity.RoleHR, IsActive: true},
			{ID: "u-rh2", Role: entity.RoleHR, IsActive: true},
		},
		links: map[string][]string{
			"u-sol":     {"C1"},
			"u-mgr":     {"C1"},
			"u-mgr-c2":  {"C2"},
			"u-mgr-old": {"C1"},
		},
	}
	repo := &mockNotificationRepo{}
	logger := &mockLogger{}
	svc := NewNotificationService(&graphStore{graph: admissionGraph(t)}, users, &mockReferenceRepo{}, repo, logger)
	return svc, repo, logger
}

func transitionEvent(t event.Type, to, actor string) *event.Event {
	return event.NewEvent(t, "req-1", map[string]interface{}{
		event.PayloadWorkflowID: "wf-adm",
		event.PayloadToStatus:   to,
		event.PayloadActorID:    actor,
		event.PayloadProtocol:   "20240501-0001",
		event.PayloadCompanyID:  "C1",
		event.PayloadSolicitant: "u-sol",
	})
}

func TestNotificationService_CreatedNotifiesCompanyManagers(t *testing.T) {
	svc, repo, _ := newTestNotificationService(t)

	err := svc.HandleEvent(context.Background(), transitionEvent(event.TypeRequestCreated, "SENT_TO_MANAGEMENT", "u-sol"))
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	got := repo.recipients()
	if len(got) != 1 || got[0] != "u-mgr" {
		t.Errorf("recipients = %v, want [u-mgr]", got)
	}
	if repo.created[0].Link != "/requests/req-1" {
		t.Errorf("link = %s", repo.created[0].Link)
	}
}

func TestNotificationService_HRStepIsNotCompanyFiltered(t *testing.T) {
	svc, repo, _ := newTestNotificationService(t)

	err := svc.HandleEvent(context.Background(), transitionEvent(event.TypeStatusChanged, "APPROVED", "u-mgr"))
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	got := repo.recipients()
	want := []string{"u-rh", "u-rh2", "u-sol"}
	if len(got) != len(want) {
		t.Fatalf("recipients = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recipients = %v, want %v", got, want)
		}
	}
}

func TestNotificationService_SkipsActor(t *testing.T) {
	svc, repo, _ := newTestNotificationService(t)

	err := svc.HandleEvent(context.Background(), transitionEvent(event.TypeStatusChanged, "APPROVED", "u-rh"))
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	for _, r := range repo.recipients() {
		if r == "u-rh" {
			t.Error("actor must not be notified")
		}
	}
}

func TestNotificationService_TerminalStepNotifiesOnlySolicitant(t *testing.T) {
	svc, repo, _ := newTestNotificationService(t)

	err := svc.HandleEvent(context.Background(), transitionEvent(event.TypeStatusChanged, "HIRED", "u-rh"))
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	got := repo.recipients()
	if len(got) != 1 || got[0] != "u-sol" {
		t.Errorf("recipients = %v, want [u-sol]", got)
	}
}

func TestNotificationService_CancellationRequestedNotifiesManagers(t *testing.T) {
	svc, repo, _ := newTestNotificationService(t)

	// CANCELLATION_REQUESTED has no next step here, so the solicitant also gets the status notice
	err := svc.HandleEvent(context.Background(), transitionEvent(event.TypeCancellationRequested, entity.StepCancellationRequested, "u-sol"))
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	got := repo.recipients()
	if len(got) != 2 || got[0] != "u-mgr" || got[1] != "u-sol" {
		t.Errorf("recipients = %v, want [u-mgr u-sol]", got)
	}
}

func TestNotificationService_CancellationResolvedTellsSolicitantOnce(t *testing.T) {
	svc, repo, _ := newTestNotificationService(t)

	evt := transitionEvent(event.TypeCancellationResolved, "APPROVED", "u-mgr")
	evt.Payload[event.PayloadApproved] = false
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	solicitantCount := 0
	for _, n := range repo.created {
		if n.UserID == "u-sol" {
			solicitantCount++
			if n.Title != "Cancellation of request 20240501-0001 resolved" {
				t.Errorf("unexpected title %q", n.Title)
			}
		}
	}
	if solicitantCount != 1 {
		t.Errorf("solicitant notified %d times, want 1", solicitantCount)
	}
}

func TestNotificationService_FailuresAreSwallowed(t *testing.T) {
	svc, repo, logger := newTestNotificationService(t)
	repo.createFunc = func(ctx context.Context, n *entity.Notification) error {
		return errors.New("db locked")
	}

	err := svc.HandleEvent(context.Background(), transitionEvent(event.TypeStatusChanged, "APPROVED", "u-mgr"))
	if err != nil {
		t.Fatalf("HandleEvent() must not fail, got %v", err)
	}
	if logger.errors == 0 {
		t.Error("expected failures to be logged")
	}
}

func TestNotificationService_UnknownWorkflowIsLogged(t *testing.T) {
	logger := &mockLogger{}
	repo := &mockNotificationRepo{}
	svc := NewNotificationService(&graphStore{err: errors.New("gone")}, &mockUserRepo{}, &mockReferenceRepo{}, repo, logger)

	if err := svc.HandleEvent(context.Background(), transitionEvent(event.TypeStatusChanged, "APPROVED", "u-mgr")); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if logger.errors != 1 || len(repo.created) != 0 {
		t.Errorf("errors = %d, created = %d", logger.errors, len(repo.created))
	}
}

func TestNotificationService_CarriesCorrelationID(t *testing.T) {
	svc, repo, _ := newTestNotificationService(t)

	evt := event.NewEventWithCorrelation(event.TypeStatusChanged, "req-1", transitionEvent(event.TypeStatusChanged, "APPROVED", "u-mgr").Payload, "http-42")
	if err := svc.HandleEvent(context.Background(), evt); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	if len(repo.created) == 0 {
		t.Fatal("no notification stored")
	}
	for _, n := range repo.created {
		if got := n.Data["correlation_id"]; got != "http-42" {
			t.Errorf("notification for %s has correlation_id %q, want http-42", n.UserID, got)
		}
	}
}
