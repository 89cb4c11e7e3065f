package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/assignment"
	"github.com/spec-kit/helpdesk-service/internal/audit"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/history"
	"github.com/spec-kit/helpdesk-service/internal/lifecycle"
	"github.com/spec-kit/helpdesk-service/internal/notify"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	"github.com/spec-kit/helpdesk-service/internal/workload"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	service       *TicketService
	notifications *repository.MemoryNotificationRepository
	historyStore  *repository.MemoryTicketHistoryRepository
	auditStore    *repository.MemoryAuditLogRepository
	tickets       *repository.MemoryTicketRepository
	technicians   *repository.MemoryTechnicianRepository
	users         *repository.MemoryUserRepository
	clock         *clock
}

func newHarness(t *testing.T, autoAssign bool) *harness {
	t.Helper()
	logger := zap.NewNop()
	tickets := repository.NewMemoryTicketRepository()
	technicians := repository.NewMemoryTechnicianRepository()
	users := repository.NewMemoryUserRepository()
	notifications := repository.NewMemoryNotificationRepository()
	historyStore := repository.NewMemoryTicketHistoryRepository()
	auditStore := repository.NewMemoryAuditLogRepository()
	sequences := repository.NewMemoryTicketSequenceRepository()

	clk := &clock{now: time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC)}

	policy := sla.DefaultPolicy()
	machine := lifecycle.NewMachine(policy)
	tracker := workload.NewTracker(tickets, nil, 10, logger)
	engine := assignment.NewEngine(technicians, tracker, nil, config.AlgorithmLoadBalanced, logger)

	effects := NewEffectRunner(
		history.NewRecorder(historyStore),
		notify.NewDispatcher(notifications, users, logger),
		audit.NewWriter(auditStore, logger),
		nil,
		logger,
	)

	svc := NewTicketService(TicketDependencies{
		TicketRepo:     tickets,
		TechnicianRepo: technicians,
		UserRepo:       users,
		SequenceRepo:   sequences,
		HistoryRepo:    historyStore,
		Machine:        machine,
		Engine:         engine,
		Tracker:        tracker,
		Effects:        effects,
		AutoAssign:     autoAssign,
		Logger:         logger,
		Now:            clk.Now,
	})

	return &harness{
		service:       svc,
		notifications: notifications,
		historyStore:  historyStore,
		auditStore:    auditStore,
		tickets:       tickets,
		technicians:   technicians,
		users:         users,
		clock:         clk,
	}
}

func (h *harness) addUser(t *testing.T, id string, role domain.UserRole) {
	t.Helper()
	require.NoError(t, h.users.Create(context.Background(), &domain.User{
		ID:     id,
		Name:   id,
		Email:  id + "@example.test",
		Role:   role,
		Status: domain.UserStatusActive,
	}))
}

func (h *harness) addTechnician(t *testing.T, id string, maxConcurrent int) {
	t.Helper()
	require.NoError(t, h.technicians.Create(context.Background(), &domain.Technician{
		ID:                   id,
		Name:                 id,
		Email:                id + "@example.test",
		SkillLevel:           3,
		MaxConcurrentTickets: maxConcurrent,
		Active:               true,
		Available:            true,
	}))
}

func (h *harness) notificationsFor(kind domain.RecipientKind, id string) []domain.Notification {
	var out []domain.Notification
	for _, n := range h.notifications.All() {
		if n.RecipientKind == kind && n.RecipientID == id {
			out = append(out, n)
		}
	}
	return out
}

var (
	userActor  = domain.Actor{Kind: domain.ActorKindUser, ID: "user-1"}
	adminActor = domain.Actor{Kind: domain.ActorKindAdmin, ID: "admin-1"}
	techActor  = domain.Actor{Kind: domain.ActorKindTechnician, ID: "tech-1"}
)

func createTicket(t *testing.T, h *harness, priority domain.TicketPriority) *domain.Ticket {
	t.Helper()
	ticket, err := h.service.CreateTicket(context.Background(), CreateTicketInput{
		OwnerID:       "user-1",
		ApplicationID: "app-1",
		CategoryID:    "cat-1",
		Title:         "cannot log in",
		Description:   "error after password reset",
		Priority:      priority,
		Actor:         userActor,
	})
	require.NoError(t, err)
	return ticket
}

func TestCreateUrgentTicketAutoAssignsAndStampsSLA(t *testing.T) {
	h := newHarness(t, true)
	h.addUser(t, "user-1", domain.UserRoleRequester)
	h.addUser(t, "admin-1", domain.UserRoleAdminHelpdesk)
	h.addTechnician(t, "tech-1", 5)

	t0 := h.clock.Now()
	ticket := createTicket(t, h, domain.TicketPriorityUrgent)

	assert.Equal(t, "TKT-20250107-0001", ticket.TicketNumber)
	assert.Equal(t, t0.Add(8*time.Hour), ticket.DueDate)
	assert.Equal(t, domain.TicketStatusAssigned, ticket.Status)
	require.NotNil(t, ticket.TechnicianID)
	assert.Equal(t, "tech-1", *ticket.TechnicianID)

	load, capacity, _, err := h.service.TechnicianWorkload(context.Background(), "tech-1")
	require.NoError(t, err)
	assert.Equal(t, 1, load)
	assert.Equal(t, 5, capacity)

	// Owner hears about creation and assignment; the technician about the
	// assignment; the admin roster about the creation.
	assert.NotEmpty(t, h.notificationsFor(domain.RecipientUser, "user-1"))
	assert.NotEmpty(t, h.notificationsFor(domain.RecipientTechnician, "tech-1"))
	assert.NotEmpty(t, h.notificationsFor(domain.RecipientAdmin, "admin-1"))

	entries, err := h.service.ListHistory(context.Background(), ticket.ID, 50, 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, domain.HistoryActionCreated, entries[0].Action)

	auditEntries, err := h.auditStore.ListByEntity(context.Background(), "ticket", ticket.ID, 100, 0)
	require.NoError(t, err)
	require.Len(t, auditEntries, 1)
	assert.Equal(t, domain.AuditActionCreated, auditEntries[0].Action)
}

func TestTicketNumbersIncrementWithinDay(t *testing.T) {
	h := newHarness(t, false)
	h.addUser(t, "user-1", domain.UserRoleRequester)

	first := createTicket(t, h, domain.TicketPriorityMedium)
	second := createTicket(t, h, domain.TicketPriorityMedium)
	assert.Equal(t, "TKT-20250107-0001", first.TicketNumber)
	assert.Equal(t, "TKT-20250107-0002", second.TicketNumber)

	h.clock.Advance(24 * time.Hour)
	third := createTicket(t, h, domain.TicketPriorityMedium)
	assert.Equal(t, "TKT-20250108-0001", third.TicketNumber)
}

func TestLateResolutionEmitsBreachNotifications(t *testing.T) {
	h := newHarness(t, true)
	h.addUser(t, "user-1", domain.UserRoleRequester)
	h.addUser(t, "admin-1", domain.UserRoleAdminHelpdesk)
	h.addTechnician(t, "tech-1", 5)

	ticket := createTicket(t, h, domain.TicketPriorityUrgent)

	inProgress := domain.TicketStatusInProgress
	_, err := h.service.Transition(context.Background(), ticket.ID, TransitionInput{
		NewStatus: &inProgress,
		Actor:     techActor,
	})
	require.NoError(t, err)

	// Two hours past the 8 hour urgent budget.
	h.clock.Advance(10 * time.Hour)
	resolved := domain.TicketStatusResolved
	updated, err := h.service.Transition(context.Background(), ticket.ID, TransitionInput{
		NewStatus: &resolved,
		Actor:     techActor,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, updated.Status)
	assert.True(t, h.service.IsOverdue(updated))

	var breachToAdmin bool
	for _, n := range h.notificationsFor(domain.RecipientAdmin, "admin-1") {
		if n.Type == domain.NotificationSLABreach {
			breachToAdmin = true
			assert.Equal(t, domain.TicketPriorityUrgent, n.Priority)
		}
	}
	assert.True(t, breachToAdmin, "admin must be notified about the breach")
}

func TestExhaustedPoolLeavesTicketOpenWithoutError(t *testing.T) {
	h := newHarness(t, true)
	h.addUser(t, "user-1", domain.UserRoleRequester)
	h.addUser(t, "admin-1", domain.UserRoleAdminHelpdesk)
	h.addTechnician(t, "tech-1", 1)

	first := createTicket(t, h, domain.TicketPriorityMedium)
	assert.Equal(t, domain.TicketStatusAssigned, first.Status)

	// The only technician is now full; the next ticket stays open.
	second := createTicket(t, h, domain.TicketPriorityMedium)
	assert.Equal(t, domain.TicketStatusOpen, second.Status)
	assert.Nil(t, second.TechnicianID)

	var failureToAdmin bool
	for _, n := range h.notificationsFor(domain.RecipientAdmin, "admin-1") {
		if n.Type == domain.NotificationAssignmentFailed {
			failureToAdmin = true
		}
	}
	assert.True(t, failureToAdmin, "assignment failure must reach the admin roster")
}

func TestManualAssignmentRespectsCapacity(t *testing.T) {
	h := newHarness(t, false)
	h.addUser(t, "user-1", domain.UserRoleRequester)
	h.addTechnician(t, "tech-1", 1)

	first := createTicket(t, h, domain.TicketPriorityMedium)
	second := createTicket(t, h, domain.TicketPriorityMedium)

	assigned := domain.TicketStatusAssigned
	techID := "tech-1"
	_, err := h.service.Transition(context.Background(), first.ID, TransitionInput{
		NewStatus:    &assigned,
		TechnicianID: &techID,
		Actor:        adminActor,
	})
	require.NoError(t, err)

	_, err = h.service.Transition(context.Background(), second.ID, TransitionInput{
		NewStatus:    &assigned,
		TechnicianID: &techID,
		Actor:        adminActor,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

func TestSelfReassignmentDoesNotConsumeCapacity(t *testing.T) {
	h := newHarness(t, false)
	h.addUser(t, "user-1", domain.UserRoleRequester)
	h.addTechnician(t, "tech-1", 1)

	ticket := createTicket(t, h, domain.TicketPriorityMedium)
	assigned := domain.TicketStatusAssigned
	techID := "tech-1"

	_, err := h.service.Transition(context.Background(), ticket.ID, TransitionInput{
		NewStatus:    &assigned,
		TechnicianID: &techID,
		Actor:        adminActor,
	})
	require.NoError(t, err)

	// tech-1 is at capacity, yet re-assigning the same ticket to the same
	// technician must succeed as a no-op.
	updated, err := h.service.Transition(context.Background(), ticket.ID, TransitionInput{
		NewStatus:    &assigned,
		TechnicianID: &techID,
		Actor:        adminActor,
	})
	require.NoError(t, err)
	assert.Equal(t, "tech-1", *updated.TechnicianID)

	load, _, _, err := h.service.TechnicianWorkload(context.Background(), "tech-1")
	require.NoError(t, err)
	assert.Equal(t, 1, load)
}

func TestRatingUpdatesTechnicianAggregate(t *testing.T) {
	h := newHarness(t, true)
	h.addUser(t, "user-1", domain.UserRoleRequester)
	h.addTechnician(t, "tech-1", 5)

	ticket := createTicket(t, h, domain.TicketPriorityMedium)

	inProgress := domain.TicketStatusInProgress
	_, err := h.service.Transition(context.Background(), ticket.ID, TransitionInput{NewStatus: &inProgress, Actor: techActor})
	require.NoError(t, err)
	resolved := domain.TicketStatusResolved
	_, err = h.service.Transition(context.Background(), ticket.ID, TransitionInput{NewStatus: &resolved, Actor: techActor})
	require.NoError(t, err)

	rated, err := h.service.SetRating(context.Background(), ticket.ID, 4, "solid work", userActor)
	require.NoError(t, err)
	require.NotNil(t, rated.UserRating)
	assert.Equal(t, 4, *rated.UserRating)

	technician, err := h.technicians.GetByID(context.Background(), "tech-1")
	require.NoError(t, err)
	assert.Equal(t, 1, technician.RatingCount)
	assert.InDelta(t, 4.0, technician.RatingAverage, 0.001)

	// Rating twice is rejected.
	_, err = h.service.SetRating(context.Background(), ticket.ID, 5, "", userActor)
	assert.True(t, apperrors.IsValidation(err))
}

func TestDeleteBlockedWhileActiveThenAllowed(t *testing.T) {
	h := newHarness(t, true)
	h.addUser(t, "user-1", domain.UserRoleRequester)
	h.addUser(t, "admin-1", domain.UserRoleAdminHelpdesk)
	h.addTechnician(t, "tech-1", 5)

	ticket := createTicket(t, h, domain.TicketPriorityMedium)

	err := h.service.DeleteTicket(context.Background(), ticket.ID, adminActor)
	require.Error(t, err)
	assert.True(t, apperrors.IsHasActiveDependents(err))

	inProgress := domain.TicketStatusInProgress
	_, err = h.service.Transition(context.Background(), ticket.ID, TransitionInput{NewStatus: &inProgress, Actor: techActor})
	require.NoError(t, err)
	resolved := domain.TicketStatusResolved
	_, err = h.service.Transition(context.Background(), ticket.ID, TransitionInput{NewStatus: &resolved, Actor: techActor})
	require.NoError(t, err)
	closed := domain.TicketStatusClosed
	_, err = h.service.Transition(context.Background(), ticket.ID, TransitionInput{NewStatus: &closed, Actor: techActor})
	require.NoError(t, err)

	require.NoError(t, h.service.DeleteTicket(context.Background(), ticket.ID, adminActor))

	_, err = h.service.GetTicket(context.Background(), ticket.ID)
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))

	// Workload is released and the deletion is audited from the snapshot.
	load, _, _, err := h.service.TechnicianWorkload(context.Background(), "tech-1")
	require.NoError(t, err)
	assert.Equal(t, 0, load)

	auditEntries, err := h.auditStore.ListByEntity(context.Background(), "ticket", ticket.ID, 100, 0)
	require.NoError(t, err)
	var deleted bool
	for _, entry := range auditEntries {
		if entry.Action == domain.AuditActionDeleted {
			deleted = true
		}
	}
	assert.True(t, deleted)
}

func TestEscalationKeepsStatusAndNotifiesAdmins(t *testing.T) {
	h := newHarness(t, true)
	h.addUser(t, "user-1", domain.UserRoleRequester)
	h.addUser(t, "admin-1", domain.UserRoleAdminHelpdesk)
	h.addTechnician(t, "tech-1", 5)

	ticket := createTicket(t, h, domain.TicketPriorityMedium)

	updated, err := h.service.Transition(context.Background(), ticket.ID, TransitionInput{
		Escalate:         true,
		EscalationReason: "no movement for a week",
		Actor:            userActor,
	})
	require.NoError(t, err)
	assert.True(t, updated.IsEscalated)
	assert.Equal(t, domain.TicketStatusAssigned, updated.Status)

	var escalationToAdmin bool
	for _, n := range h.notificationsFor(domain.RecipientAdmin, "admin-1") {
		if n.Type == domain.NotificationTicketEscalated {
			escalationToAdmin = true
			assert.Equal(t, domain.TicketPriorityUrgent, n.Priority)
		}
	}
	assert.True(t, escalationToAdmin)

	auditEntries, err := h.auditStore.ListByEntity(context.Background(), "ticket", ticket.ID, 100, 0)
	require.NoError(t, err)
	var escalationAudited bool
	for _, entry := range auditEntries {
		if entry.Action == domain.AuditActionEscalated {
			escalationAudited = true
		}
	}
	assert.True(t, escalationAudited)
}

func TestInvalidTransitionLeavesNoTrace(t *testing.T) {
	h := newHarness(t, false)
	h.addUser(t, "user-1", domain.UserRoleRequester)

	ticket := createTicket(t, h, domain.TicketPriorityMedium)
	before, err := h.service.ListHistory(context.Background(), ticket.ID, 50, 0)
	require.NoError(t, err)

	closed := domain.TicketStatusClosed
	_, err = h.service.Transition(context.Background(), ticket.ID, TransitionInput{NewStatus: &closed, Actor: adminActor})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	// The ticket and its timeline are untouched.
	current, err := h.service.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, current.Status)

	after, err := h.service.ListHistory(context.Background(), ticket.ID, 50, 0)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestCreateRejectsUnknownOrSuspendedOwner(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.service.CreateTicket(context.Background(), CreateTicketInput{
		OwnerID: "ghost",
		Title:   "x",
		Actor:   userActor,
	})
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))

	require.NoError(t, h.users.Create(context.Background(), &domain.User{
		ID:     "user-2",
		Name:   "user-2",
		Email:  "user-2@example.test",
		Role:   domain.UserRoleRequester,
		Status: domain.UserStatusSuspended,
	}))
	_, err = h.service.CreateTicket(context.Background(), CreateTicketInput{
		OwnerID: "user-2",
		Title:   "x",
		Actor:   userActor,
	})
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}

func TestNotificationMarkReadOnlyOnce(t *testing.T) {
	h := newHarness(t, false)
	h.addUser(t, "user-1", domain.UserRoleRequester)

	createTicket(t, h, domain.TicketPriorityMedium)
	owned := h.notificationsFor(domain.RecipientUser, "user-1")
	require.NotEmpty(t, owned)

	svc := NewNotificationService(h.notifications)
	require.NoError(t, svc.MarkRead(context.Background(), owned[0].ID))

	err := svc.MarkRead(context.Background(), owned[0].ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "CONFLICT"))
}
