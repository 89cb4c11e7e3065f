package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

var testActor = domain.Actor{Kind: domain.ActorKindAdmin, ID: "admin-1"}

func newTestMachine() *Machine {
	return NewMachine(sla.DefaultPolicy())
}

func newTicket(t *testing.T, m *Machine, priority domain.TicketPriority, createdAt time.Time) domain.Ticket {
	t.Helper()
	ticket, evts, err := m.Create(CreateInput{
		OwnerID:      "user-1",
		Title:        "printer on fire",
		Priority:     priority,
		TicketNumber: FormatTicketNumber(createdAt, 1),
		Actor:        testActor,
		Now:          createdAt,
	})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	ticket.ID = "ticket-1"
	return ticket
}

func statusPtr(s domain.TicketStatus) *domain.TicketStatus    { return &s }
func priorityPtr(p domain.TicketPriority) *domain.TicketPriority { return &p }
func strPtr(s string) *string                                  { return &s }

func TestCreateStampsDueDateFromPriority(t *testing.T) {
	m := newTestMachine()
	createdAt := time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC)

	ticket := newTicket(t, m, domain.TicketPriorityUrgent, createdAt)

	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, createdAt.Add(8*time.Hour), ticket.DueDate)
	assert.Equal(t, "TKT-20250107-0001", ticket.TicketNumber)
}

func TestCreateDefaultsToMediumPriority(t *testing.T) {
	m := newTestMachine()
	createdAt := time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC)

	ticket, _, err := m.Create(CreateInput{
		OwnerID:      "user-1",
		Title:        "slow login",
		TicketNumber: FormatTicketNumber(createdAt, 2),
		Actor:        testActor,
		Now:          createdAt,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Equal(t, createdAt.Add(48*time.Hour), ticket.DueDate)
}

func TestCreateRequiresOwnerAndTitle(t *testing.T) {
	m := newTestMachine()
	now := time.Now()

	_, _, err := m.Create(CreateInput{Title: "x", TicketNumber: "TKT-1", Now: now})
	assert.True(t, apperrors.IsValidation(err))

	_, _, err = m.Create(CreateInput{OwnerID: "u", TicketNumber: "TKT-1", Now: now})
	assert.True(t, apperrors.IsValidation(err))
}

func TestFormatTicketNumber(t *testing.T) {
	day := time.Date(2025, 3, 9, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "TKT-20250309-0042", FormatTicketNumber(day, 42))
}

func TestAssignmentEmitsAssignedEvent(t *testing.T) {
	m := newTestMachine()
	ticket := newTicket(t, m, domain.TicketPriorityMedium, time.Now())

	next, evts, err := m.Apply(ticket, TransitionCommand{
		NewStatus:    statusPtr(domain.TicketStatusAssigned),
		TechnicianID: strPtr("tech-1"),
		Actor:        testActor,
		Now:          time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, events.EventTicketAssigned, evts[0].Type)
	assert.Equal(t, domain.TicketStatusAssigned, next.Status)
	require.NotNil(t, next.TechnicianID)
	assert.Equal(t, "tech-1", *next.TechnicianID)
}

func TestReassignmentEmitsUnassignedThenAssigned(t *testing.T) {
	m := newTestMachine()
	ticket := newTicket(t, m, domain.TicketPriorityMedium, time.Now())
	ticket.Status = domain.TicketStatusAssigned
	ticket.TechnicianID = strPtr("tech-1")

	next, evts, err := m.Apply(ticket, TransitionCommand{
		NewStatus:    statusPtr(domain.TicketStatusAssigned),
		TechnicianID: strPtr("tech-2"),
		Actor:        testActor,
		Now:          time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, events.EventTicketUnassigned, evts[0].Type)
	assert.Equal(t, events.EventTicketAssigned, evts[1].Type)
	assert.Equal(t, "tech-2", *next.TechnicianID)
}

func TestSelfReassignmentIsNoOp(t *testing.T) {
	m := newTestMachine()
	ticket := newTicket(t, m, domain.TicketPriorityMedium, time.Now())
	ticket.Status = domain.TicketStatusAssigned
	ticket.TechnicianID = strPtr("tech-1")

	next, evts, err := m.Apply(ticket, TransitionCommand{
		NewStatus:    statusPtr(domain.TicketStatusAssigned),
		TechnicianID: strPtr("tech-1"),
		Actor:        testActor,
		Now:          time.Now(),
	})
	require.NoError(t, err)
	assert.Empty(t, evts)
	assert.Equal(t, ticket.Status, next.Status)
}

func TestInvalidTransitionRejectedWithoutChange(t *testing.T) {
	m := newTestMachine()
	ticket := newTicket(t, m, domain.TicketPriorityMedium, time.Now())

	next, evts, err := m.Apply(ticket, TransitionCommand{
		NewStatus: statusPtr(domain.TicketStatusResolved),
		Actor:     testActor,
		Now:       time.Now(),
	})
	assert.True(t, apperrors.IsValidation(err))
	assert.Empty(t, evts)
	assert.Equal(t, ticket, next)
}

func TestFirstResponseStampedOnce(t *testing.T) {
	m := newTestMachine()
	ticket := newTicket(t, m, domain.TicketPriorityMedium, time.Now())
	ticket.Status = domain.TicketStatusAssigned
	ticket.TechnicianID = strPtr("tech-1")

	t1 := time.Now()
	next, evts, err := m.Apply(ticket, TransitionCommand{
		NewStatus: statusPtr(domain.TicketStatusInProgress),
		Actor:     testActor,
		Now:       t1,
	})
	require.NoError(t, err)
	require.NotNil(t, next.FirstResponseAt)
	assert.Equal(t, t1, *next.FirstResponseAt)
	require.Len(t, evts, 2)
	assert.Equal(t, events.EventStatusChanged, evts[0].Type)
	assert.Equal(t, events.EventFirstResponse, evts[1].Type)

	// A later trip back through in_progress must not move the stamp.
	next.Status = domain.TicketStatusWaitingUser
	t2 := t1.Add(time.Hour)
	again, evts, err := m.Apply(next, TransitionCommand{
		NewStatus: statusPtr(domain.TicketStatusInProgress),
		Actor:     testActor,
		Now:       t2,
	})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, t1, *again.FirstResponseAt)
}

func TestResolveWithinBudgetEmitsNoBreach(t *testing.T) {
	m := newTestMachine()
	createdAt := time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC)
	ticket := newTicket(t, m, domain.TicketPriorityUrgent, createdAt)
	ticket.Status = domain.TicketStatusInProgress

	next, evts, err := m.Apply(ticket, TransitionCommand{
		NewStatus: statusPtr(domain.TicketStatusResolved),
		Actor:     testActor,
		Now:       createdAt.Add(4 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, events.EventTicketResolved, evts[0].Type)
	payload := evts[0].Payload.(events.ResolvedPayload)
	assert.False(t, payload.SLABreached)
	require.NotNil(t, next.ResolvedAt)
}

func TestResolvePastDueDateEmitsSLABreach(t *testing.T) {
	m := newTestMachine()
	createdAt := time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC)
	ticket := newTicket(t, m, domain.TicketPriorityUrgent, createdAt)
	ticket.Status = domain.TicketStatusInProgress

	_, evts, err := m.Apply(ticket, TransitionCommand{
		NewStatus: statusPtr(domain.TicketStatusResolved),
		Actor:     testActor,
		Now:       createdAt.Add(10 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, events.EventTicketResolved, evts[0].Type)
	assert.Equal(t, events.EventSLABreach, evts[1].Type)
	assert.Equal(t, events.SeverityCritical, evts[1].Severity)
	breach := evts[1].Payload.(events.SLABreachPayload)
	assert.Equal(t, 2*time.Hour, breach.OverdueBy)
}

func TestReopenClearsResolvedAt(t *testing.T) {
	m := newTestMachine()
	ticket := newTicket(t, m, domain.TicketPriorityMedium, time.Now())
	ticket.Status = domain.TicketStatusResolved
	resolvedAt := time.Now()
	ticket.ResolvedAt = &resolvedAt
	ticket.FirstResponseAt = &resolvedAt

	next, _, err := m.Apply(ticket, TransitionCommand{
		NewStatus: statusPtr(domain.TicketStatusInProgress),
		Actor:     testActor,
		Now:       time.Now(),
	})
	require.NoError(t, err)
	assert.Nil(t, next.ResolvedAt)
	assert.Equal(t, domain.TicketStatusInProgress, next.Status)
}

func TestCloseRequiresResolvedAt(t *testing.T) {
	m := newTestMachine()
	ticket := newTicket(t, m, domain.TicketPriorityMedium, time.Now())
	ticket.Status = domain.TicketStatusResolved

	_, _, err := m.Apply(ticket, TransitionCommand{
		NewStatus: statusPtr(domain.TicketStatusClosed),
		Actor:     testActor,
		Now:       time.Now(),
	})
	assert.True(t, apperrors.IsValidation(err))

	resolvedAt := time.Now()
	ticket.ResolvedAt = &resolvedAt
	next, evts, err := m.Apply(ticket, TransitionCommand{
		NewStatus: statusPtr(domain.TicketStatusClosed),
		Actor:     testActor,
		Now:       time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, events.EventTicketClosed, evts[0].Type)
	require.NotNil(t, next.ClosedAt)
}

func TestClosedIsTerminal(t *testing.T) {
	m := newTestMachine()
	ticket := newTicket(t, m, domain.TicketPriorityMedium, time.Now())
	ticket.Status = domain.TicketStatusClosed

	for _, target := range []domain.TicketStatus{
		domain.TicketStatusOpen, domain.TicketStatusAssigned, domain.TicketStatusInProgress,
		domain.TicketStatusWaitingUser, domain.TicketStatusWaitingAdmin, domain.TicketStatusResolved,
	} {
		_, _, err := m.Apply(ticket, TransitionCommand{
			NewStatus: statusPtr(target),
			Actor:     testActor,
			Now:       time.Now(),
		})
		assert.Truef(t, apperrors.IsValidation(err), "closed -> %s must be rejected", target)
	}
}

func TestEscalationIsOrthogonalToStatus(t *testing.T) {
	m := newTestMachine()
	ticket := newTicket(t, m, domain.TicketPriorityMedium, time.Now())
	ticket.Status = domain.TicketStatusInProgress

	next, evts, err := m.Apply(ticket, TransitionCommand{
		Escalate:         true,
		EscalationReason: "no response in two days",
		Actor:            testActor,
		Now:              time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, events.EventTicketEscalated, evts[0].Type)
	assert.True(t, next.IsEscalated)
	assert.Equal(t, domain.TicketStatusInProgress, next.Status)

	// A second escalation is rejected.
	_, _, err = m.Apply(next, TransitionCommand{
		Escalate:         true,
		EscalationReason: "still nothing",
		Actor:            testActor,
		Now:              time.Now(),
	})
	assert.True(t, apperrors.IsValidation(err))
}

func TestEscalationRequiresActiveStatusAndReason(t *testing.T) {
	m := newTestMachine()
	ticket := newTicket(t, m, domain.TicketPriorityMedium, time.Now())

	_, _, err := m.Apply(ticket, TransitionCommand{Escalate: true, Actor: testActor, Now: time.Now()})
	assert.True(t, apperrors.IsValidation(err))

	ticket.Status = domain.TicketStatusResolved
	_, _, err = m.Apply(ticket, TransitionCommand{
		Escalate:         true,
		EscalationReason: "too slow",
		Actor:            testActor,
		Now:              time.Now(),
	})
	assert.True(t, apperrors.IsValidation(err))
}

func TestPriorityChangeRecomputesDerivedDueDate(t *testing.T) {
	m := newTestMachine()
	createdAt := time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC)
	ticket := newTicket(t, m, domain.TicketPriorityLow, createdAt)

	next, evts, err := m.Apply(ticket, TransitionCommand{
		NewPriority: priorityPtr(domain.TicketPriorityUrgent),
		Actor:       testActor,
		Now:         createdAt.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, events.EventPriorityChanged, evts[0].Type)
	assert.Equal(t, createdAt.Add(8*time.Hour), next.DueDate)
}

func TestPriorityChangeKeepsOverriddenDueDate(t *testing.T) {
	m := newTestMachine()
	createdAt := time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC)
	ticket := newTicket(t, m, domain.TicketPriorityLow, createdAt)
	override := createdAt.Add(300 * time.Hour)
	ticket.DueDate = override

	next, _, err := m.Apply(ticket, TransitionCommand{
		NewPriority: priorityPtr(domain.TicketPriorityUrgent),
		Actor:       testActor,
		Now:         createdAt.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, override, next.DueDate)
}

func TestSetRatingOnlyOnceAndOnlyWhenResolvedOrClosed(t *testing.T) {
	m := newTestMachine()
	ticket := newTicket(t, m, domain.TicketPriorityMedium, time.Now())
	userActor := domain.Actor{Kind: domain.ActorKindUser, ID: "user-1"}

	_, _, err := m.SetRating(ticket, 5, "", userActor, time.Now())
	assert.True(t, apperrors.IsValidation(err))

	ticket.Status = domain.TicketStatusResolved
	_, _, err = m.SetRating(ticket, 0, "", userActor, time.Now())
	assert.True(t, apperrors.IsValidation(err))
	_, _, err = m.SetRating(ticket, 6, "", userActor, time.Now())
	assert.True(t, apperrors.IsValidation(err))

	rated, evts, err := m.SetRating(ticket, 4, "quick fix", userActor, time.Now())
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, events.EventTicketRated, evts[0].Type)
	require.NotNil(t, rated.UserRating)
	assert.Equal(t, 4, *rated.UserRating)

	_, _, err = m.SetRating(rated, 2, "changed my mind", userActor, time.Now())
	assert.True(t, apperrors.IsValidation(err))
}

func TestDeleteBlockedWhileActive(t *testing.T) {
	m := newTestMachine()
	ticket := newTicket(t, m, domain.TicketPriorityMedium, time.Now())

	for _, status := range []domain.TicketStatus{
		domain.TicketStatusOpen, domain.TicketStatusAssigned, domain.TicketStatusInProgress,
		domain.TicketStatusWaitingUser, domain.TicketStatusWaitingAdmin,
	} {
		ticket.Status = status
		_, err := m.Delete(ticket, testActor, time.Now())
		assert.Truef(t, apperrors.IsHasActiveDependents(err), "delete in %s must be blocked", status)
	}

	for _, status := range []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusClosed} {
		ticket.Status = status
		evts, err := m.Delete(ticket, testActor, time.Now())
		require.NoError(t, err)
		require.Len(t, evts, 1)
		assert.Equal(t, events.EventTicketDeleted, evts[0].Type)
	}
}

// ticketProjection folds the event log into a snapshot. Replaying the
// events a transition produced must land on the same state the machine
// returned.
type ticketProjection struct {
	ticketNumber string
	status       domain.TicketStatus
	priority     domain.TicketPriority
	dueDate      time.Time
	technicianID *string
	resolvedAt   *time.Time
	closedAt     *time.Time
	escalated    bool
}

func (p *ticketProjection) apply(event events.Event) {
	switch payload := event.Payload.(type) {
	case events.TicketCreatedPayload:
		p.ticketNumber = payload.TicketNumber
		p.status = domain.TicketStatusOpen
		p.priority = payload.Priority
		p.dueDate = payload.DueDate
	case events.TicketAssignedPayload:
		technicianID := payload.TechnicianID
		p.technicianID = &technicianID
	case events.TicketUnassignedPayload:
		p.technicianID = nil
	case events.StatusChangedPayload:
		p.status = payload.NewStatus
	case events.PriorityChangedPayload:
		p.priority = payload.NewPriority
		if payload.NewDueDate != nil {
			p.dueDate = *payload.NewDueDate
		}
	case events.EscalatedPayload:
		p.escalated = true
	case events.ResolvedPayload:
		resolvedAt := payload.ResolvedAt
		p.resolvedAt = &resolvedAt
	case events.ClosedPayload:
		closedAt := payload.ClosedAt
		p.closedAt = &closedAt
	}
}

func TestReplayingEventLogReproducesFinalState(t *testing.T) {
	m := newTestMachine()
	createdAt := time.Date(2025, 1, 7, 9, 0, 0, 0, time.UTC)

	ticket, log, err := m.Create(CreateInput{
		OwnerID:      "user-1",
		Title:        "printer on fire",
		Priority:     domain.TicketPriorityHigh,
		TicketNumber: FormatTicketNumber(createdAt, 7),
		Actor:        testActor,
		Now:          createdAt,
	})
	require.NoError(t, err)
	ticket.ID = "ticket-1"

	steps := []TransitionCommand{
		{NewStatus: statusPtr(domain.TicketStatusAssigned), TechnicianID: strPtr("tech-1"), Actor: testActor, Now: createdAt.Add(time.Hour)},
		{NewPriority: priorityPtr(domain.TicketPriorityUrgent), Actor: testActor, Now: createdAt.Add(2 * time.Hour)},
		{Escalate: true, EscalationReason: "minister is asking", Actor: testActor, Now: createdAt.Add(3 * time.Hour)},
		{NewStatus: statusPtr(domain.TicketStatusInProgress), Actor: testActor, Now: createdAt.Add(4 * time.Hour)},
		{NewStatus: statusPtr(domain.TicketStatusResolved), Actor: testActor, Now: createdAt.Add(5 * time.Hour)},
		{NewStatus: statusPtr(domain.TicketStatusClosed), Actor: testActor, Now: createdAt.Add(6 * time.Hour)},
	}
	for _, cmd := range steps {
		next, evts, err := m.Apply(ticket, cmd)
		require.NoError(t, err)
		ticket = next
		log = append(log, evts...)
	}

	projection := &ticketProjection{}
	for _, event := range log {
		projection.apply(event)
	}

	assert.Equal(t, ticket.TicketNumber, projection.ticketNumber)
	assert.Equal(t, ticket.Status, projection.status)
	assert.Equal(t, ticket.Priority, projection.priority)
	assert.Equal(t, ticket.DueDate, projection.dueDate)
	require.NotNil(t, projection.technicianID)
	assert.Equal(t, *ticket.TechnicianID, *projection.technicianID)
	require.NotNil(t, projection.resolvedAt)
	assert.Equal(t, *ticket.ResolvedAt, *projection.resolvedAt)
	require.NotNil(t, projection.closedAt)
	assert.Equal(t, *ticket.ClosedAt, *projection.closedAt)
	assert.Equal(t, ticket.IsEscalated, projection.escalated)
}
