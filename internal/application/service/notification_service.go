package service

import (
	"context"
	"fmt"

	"github.com/garyjia/hr-requests/internal/application/dispatcher"
	"github.com/garyjia/hr-requests/internal/application/port"
	"github.com/garyjia/hr-requests/internal/application/workflow"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NotificationService turns request lifecycle events into inbox notifications
type NotificationService interface {
	// Register subscribes the service to every request lifecycle event
	Register(d dispatcher.Dispatcher)

	// HandleEvent notifies the users concerned by evt. It is a dispatcher.Handler.
	HandleEvent(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	definitions      workflow.DefinitionStore
	userRepo         port.UserRepository
	referenceRepo    port.ReferenceRepository
	notificationRepo port.NotificationRepository
	logger           Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	definitions workflow.DefinitionStore,
	userRepo port.UserRepository,
	referenceRepo port.ReferenceRepository,
	notificationRepo port.NotificationRepository,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		definitions:      definitions,
		userRepo:         userRepo,
		referenceRepo:    referenceRepo,
		notificationRepo: notificationRepo,
		logger:           logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	for _, t := range event.LifecycleTypes {
		d.SubscribeNamed(t, "notification-service", s.HandleEvent)
	}
}

// transitionNotice is the request state a notification is built from
type transitionNotice struct {
	requestID    string
	protocol     string
	workflowID   string
	status       string
	companyID    string
	solicitantID string
	actorID      string
	correlation  string
}

func noticeFrom(evt *event.Event) transitionNotice {
	return transitionNotice{
		requestID:    evt.RequestID,
		protocol:     evt.GetPayloadString(event.PayloadProtocol),
		workflowID:   evt.GetPayloadString(event.PayloadWorkflowID),
		status:       evt.GetPayloadString(event.PayloadToStatus),
		companyID:    evt.GetPayloadString(event.PayloadCompanyID),
		solicitantID: evt.GetPayloadString(event.PayloadSolicitant),
		actorID:      evt.GetPayloadString(event.PayloadActorID),
		correlation:  evt.CorrelationID,
	}
}

func (n transitionNotice) link() string {
	return "/requests/" + n.requestID
}

// HandleEvent never fails the caller: delivery problems are logged and swallowed
func (s *notificationServiceImpl) HandleEvent(ctx context.Context, evt *event.Event) error {
	notice := noticeFrom(evt)

	switch evt.Type {
	case event.TypeCancellationRequested:
		s.notifyManagers(ctx, notice)
	case event.TypeCancellationResolved:
		s.notifyCancellationDecision(ctx, notice, evt.GetPayloadBool(event.PayloadApproved))
	}

	s.notifyTransition(ctx, notice, evt.Type == event.TypeCancellationResolved)
	return nil
}

// notifyTransition tells the role responsible for the first next step that action is needed,
// and tells the solicitant the status changed
func (s *notificationServiceImpl) notifyTransition(ctx context.Context, n transitionNotice, solicitantAlreadyTold bool) {
	g, err := s.definitions.Graph(ctx, n.workflowID)
	if err != nil {
		s.logger.Error("Failed to load workflow for notification", "request_id", n.requestID, "error", err)
		return
	}

	next := g.Next(n.status)
	if len(next) == 0 {
		if !solicitantAlreadyTold {
			s.send(ctx, n.solicitantID,
				fmt.Sprintf("Your request %s was updated", n.protocol),
				fmt.Sprintf("The status of your request %s is now %q.", n.protocol, n.status),
				n)
		}
		return
	}

	if !solicitantAlreadyTold && n.solicitantID != n.actorID {
		s.send(ctx, n.solicitantID,
			fmt.Sprintf("Your request %s was updated", n.protocol),
			fmt.Sprintf("The status of your request %s is now %q.", n.protocol, n.status),
			n)
	}

	step := next[0]
	role := step.Role()
	companyFilter := ""
	if role.RequiresScope() {
		companyFilter = n.companyID
	}

	recipients, err := s.userRepo.ListActiveByRole(ctx, role, companyFilter)
	if err != nil {
		s.logger.Error("Failed to list recipients", "request_id", n.requestID, "role", role, "error", err)
		return
	}

	for _, u := range recipients {
		if u.ID == n.actorID {
			continue
		}
		s.send(ctx, u.ID,
			fmt.Sprintf("Action needed: request %s", n.protocol),
			fmt.Sprintf("Request %s awaits action from %s at step %q.", n.protocol, role, step.Name()),
			n)
	}
}

// notifyManagers asks the company's managers to decide a cancellation
func (s *notificationServiceImpl) notifyManagers(ctx context.Context, n transitionNotice) {
	companyName := n.companyID
	if company, err := s.referenceRepo.GetCompany(ctx, n.companyID); err == nil && company != nil {
		companyName = company.TradeName
	}

	managers, err := s.userRepo.ListActiveByRole(ctx, entity.RoleManagement, n.companyID)
	if err != nil {
		s.logger.Error("Failed to list managers", "request_id", n.requestID, "error", err)
		return
	}

	for _, m := range managers {
		s.send(ctx, m.ID,
			fmt.Sprintf("Cancellation requested: request %s", n.protocol),
			fmt.Sprintf("%s asked to cancel request %s. Your decision is required.", companyName, n.protocol),
			n)
	}
}

func (s *notificationServiceImpl) notifyCancellationDecision(ctx context.Context, n transitionNotice, approved bool) {
	decision := "denied"
	if approved {
		decision = "approved"
	}
	s.send(ctx, n.solicitantID,
		fmt.Sprintf("Cancellation of request %s resolved", n.protocol),
		fmt.Sprintf("Management %s your cancellation request. Request %s is now %q.", decision, n.protocol, n.status),
		n)
}

func (s *notificationServiceImpl) send(ctx context.Context, userID, title, message string, n transitionNotice) {
	if userID == "" {
		return
	}

	notification := &entity.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Link:    n.link(),
		Data: map[string]string{
			"request_id": n.requestID,
			"protocol":   n.protocol,
			"status":     n.status,
		},
	}
	if n.correlation != "" {
		notification.Data["correlation_id"] = n.correlation
	}

	if err := s.notificationRepo.Create(ctx, notification); err != nil {
		s.logger.Error("Failed to store notification", "user_id", userID, "request_id", n.requestID, "error", err)
		return
	}

	s.logger.Info("Notification queued", "notification_id", notification.ID, "user_id", userID, "request_id", n.requestID)
}
