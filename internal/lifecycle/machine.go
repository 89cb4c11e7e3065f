// Package lifecycle owns the ticket state machine. Transitions are pure:
// they take the previous ticket snapshot plus a command and return the next
// snapshot with an ordered list of lifecycle events. No I/O happens here;
// the service layer persists the ticket and runs the event consumers.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Machine validates and applies ticket transitions.
type Machine struct {
	policy *sla.Policy
}

// NewMachine constructs the state machine with the given SLA policy.
func NewMachine(policy *sla.Policy) *Machine {
	return &Machine{policy: policy}
}

// CreateInput describes a new ticket before numbering and SLA stamping.
type CreateInput struct {
	OwnerID       string
	ApplicationID string
	CategoryID    string
	Title         string
	Description   string
	Priority      domain.TicketPriority
	TicketNumber  string
	DueDate       time.Time
	Actor         domain.Actor
	Now           time.Time
}

// TransitionCommand describes one requested mutation of an existing ticket.
// Exactly the fields relevant to the requested change are set.
type TransitionCommand struct {
	NewStatus        *domain.TicketStatus
	TechnicianID     *string
	NewPriority      *domain.TicketPriority
	Escalate         bool
	EscalationReason string
	Comment          string
	Actor            domain.Actor
	Now              time.Time
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:         {domain.TicketStatusAssigned, domain.TicketStatusInProgress},
	domain.TicketStatusAssigned:     {domain.TicketStatusAssigned, domain.TicketStatusInProgress, domain.TicketStatusWaitingUser, domain.TicketStatusWaitingAdmin, domain.TicketStatusResolved},
	domain.TicketStatusInProgress:   {domain.TicketStatusAssigned, domain.TicketStatusWaitingUser, domain.TicketStatusWaitingAdmin, domain.TicketStatusResolved},
	domain.TicketStatusWaitingUser:  {domain.TicketStatusInProgress, domain.TicketStatusResolved},
	domain.TicketStatusWaitingAdmin: {domain.TicketStatusInProgress, domain.TicketStatusResolved},
	domain.TicketStatusResolved:     {domain.TicketStatusInProgress, domain.TicketStatusClosed},
	domain.TicketStatusClosed:       {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Create builds the initial ticket snapshot. The ticket number is generated
// by the caller (it needs the per-day sequence); the due date comes from the
// SLA policy unless an explicit one was supplied.
func (m *Machine) Create(input CreateInput) (domain.Ticket, []events.Event, error) {
	if strings.TrimSpace(input.OwnerID) == "" {
		return domain.Ticket{}, nil, apperrors.NewValidationError("owner is required", nil)
	}
	if strings.TrimSpace(input.Title) == "" {
		return domain.Ticket{}, nil, apperrors.NewValidationError("title is required", nil)
	}
	if strings.TrimSpace(input.TicketNumber) == "" {
		return domain.Ticket{}, nil, apperrors.NewValidationError("ticket number is required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return domain.Ticket{}, nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	dueDate := input.DueDate
	if dueDate.IsZero() {
		dueDate = m.policy.DueDate(priority, input.Now)
	}

	ticket := domain.Ticket{
		TicketNumber:  input.TicketNumber,
		OwnerID:       input.OwnerID,
		ApplicationID: input.ApplicationID,
		CategoryID:    input.CategoryID,
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		Status:        domain.TicketStatusOpen,
		Priority:      priority,
		DueDate:       dueDate,
		CreatedAt:     input.Now,
		UpdatedAt:     input.Now,
	}

	evts := []events.Event{newEvent(events.EventTicketCreated, "", input.Actor, events.SeverityInfo, input.Now, events.TicketCreatedPayload{
		TicketNumber:  ticket.TicketNumber,
		ApplicationID: ticket.ApplicationID,
		CategoryID:    ticket.CategoryID,
		Priority:      ticket.Priority,
		Title:         ticket.Title,
		DueDate:       ticket.DueDate,
	})}
	return ticket, evts, nil
}

// Apply validates cmd against prev and returns the next snapshot plus the
// ordered event list. prev is never mutated; a failed validation returns
// prev's state untouched and no events.
func (m *Machine) Apply(prev domain.Ticket, cmd TransitionCommand) (domain.Ticket, []events.Event, error) {
	next := prev
	var out []events.Event

	if cmd.NewPriority != nil && *cmd.NewPriority != prev.Priority {
		evts, err := m.applyPriorityChange(&next, prev, cmd)
		if err != nil {
			return prev, nil, err
		}
		out = append(out, evts...)
	}

	if cmd.Escalate {
		evts, err := applyEscalation(&next, cmd)
		if err != nil {
			return prev, nil, err
		}
		out = append(out, evts...)
	}

	if cmd.NewStatus != nil {
		evts, err := m.applyStatusChange(&next, prev, cmd)
		if err != nil {
			return prev, nil, err
		}
		out = append(out, evts...)
	}

	if len(out) > 0 {
		next.UpdatedAt = cmd.Now
	}
	return next, out, nil
}

func (m *Machine) applyPriorityChange(next *domain.Ticket, prev domain.Ticket, cmd TransitionCommand) ([]events.Event, error) {
	newPriority := *cmd.NewPriority
	if !newPriority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": newPriority})
	}
	if prev.Status.IsTerminal() {
		return nil, apperrors.NewValidationError("cannot change priority of a closed ticket", nil)
	}
	next.Priority = newPriority

	// The due date only follows the priority while it is still the derived
	// one; an explicitly overridden due date is left alone.
	var newDue *time.Time
	if prev.DueDate.Equal(m.policy.DueDate(prev.Priority, prev.CreatedAt)) {
		due := m.policy.DueDate(newPriority, prev.CreatedAt)
		next.DueDate = due
		newDue = &due
	}

	return []events.Event{newEvent(events.EventPriorityChanged, prev.ID, cmd.Actor, events.SeverityInfo, cmd.Now, events.PriorityChangedPayload{
		OldPriority: prev.Priority,
		NewPriority: newPriority,
		NewDueDate:  newDue,
	})}, nil
}

func applyEscalation(next *domain.Ticket, cmd TransitionCommand) ([]events.Event, error) {
	if !next.Status.IsActive() {
		return nil, apperrors.NewValidationError("only active tickets can be escalated", map[string]any{"status": next.Status})
	}
	if next.IsEscalated {
		return nil, apperrors.NewValidationError("ticket already escalated", nil)
	}
	reason := strings.TrimSpace(cmd.EscalationReason)
	if reason == "" {
		return nil, apperrors.NewValidationError("escalation reason is required", nil)
	}
	next.IsEscalated = true
	next.EscalationReason = reason
	return []events.Event{newEvent(events.EventTicketEscalated, next.ID, cmd.Actor, events.SeverityCritical, cmd.Now, events.EscalatedPayload{
		Reason: reason,
	})}, nil
}

func (m *Machine) applyStatusChange(next *domain.Ticket, prev domain.Ticket, cmd TransitionCommand) ([]events.Event, error) {
	newStatus := *cmd.NewStatus
	if !isValidTransition(next.Status, newStatus) {
		return nil, apperrors.NewValidationError("invalid status transition", map[string]any{
			"from": next.Status,
			"to":   newStatus,
		})
	}

	switch newStatus {
	case domain.TicketStatusAssigned:
		return m.applyAssignment(next, cmd)
	case domain.TicketStatusInProgress:
		return applyInProgress(next, cmd)
	case domain.TicketStatusResolved:
		return m.applyResolved(next, cmd)
	case domain.TicketStatusClosed:
		return applyClosed(next, cmd)
	default:
		old := next.Status
		next.Status = newStatus
		return []events.Event{statusChangedEvent(next.ID, old, newStatus, cmd)}, nil
	}
}

func (m *Machine) applyAssignment(next *domain.Ticket, cmd TransitionCommand) ([]events.Event, error) {
	if cmd.TechnicianID == nil || strings.TrimSpace(*cmd.TechnicianID) == "" {
		return nil, apperrors.NewValidationError("assignment requires a technician", nil)
	}
	technicianID := *cmd.TechnicianID

	// Reassigning the same technician is a no-op: no workload delta, no
	// events, status unchanged.
	if next.TechnicianID != nil && *next.TechnicianID == technicianID {
		return nil, nil
	}

	previous := next.TechnicianID
	next.TechnicianID = &technicianID
	next.Status = domain.TicketStatusAssigned

	var out []events.Event
	if previous != nil {
		out = append(out, newEvent(events.EventTicketUnassigned, next.ID, cmd.Actor, events.SeverityInfo, cmd.Now, events.TicketUnassignedPayload{
			TechnicianID: *previous,
		}))
	}
	out = append(out, newEvent(events.EventTicketAssigned, next.ID, cmd.Actor, events.SeverityInfo, cmd.Now, events.TicketAssignedPayload{
		TechnicianID:         technicianID,
		PreviousTechnicianID: previous,
	}))
	return out, nil
}

func applyInProgress(next *domain.Ticket, cmd TransitionCommand) ([]events.Event, error) {
	old := next.Status
	next.Status = domain.TicketStatusInProgress
	if old == domain.TicketStatusResolved {
		// Reopened for rework; the earlier resolution no longer stands.
		next.ResolvedAt = nil
	}
	out := []events.Event{statusChangedEvent(next.ID, old, next.Status, cmd)}
	if next.FirstResponseAt == nil {
		now := cmd.Now
		next.FirstResponseAt = &now
		out = append(out, newEvent(events.EventFirstResponse, next.ID, cmd.Actor, events.SeverityInfo, cmd.Now, events.FirstResponsePayload{
			FirstResponseAt: now,
		}))
	}
	return out, nil
}

func (m *Machine) applyResolved(next *domain.Ticket, cmd TransitionCommand) ([]events.Event, error) {
	old := next.Status
	next.Status = domain.TicketStatusResolved
	resolvedAt := cmd.Now
	if next.ResolvedAt != nil {
		resolvedAt = *next.ResolvedAt
	} else {
		next.ResolvedAt = &resolvedAt
	}

	breached := m.policy.IsBreached(next.DueDate, resolvedAt)
	out := []events.Event{newEvent(events.EventTicketResolved, next.ID, cmd.Actor, events.SeverityInfo, cmd.Now, events.ResolvedPayload{
		OldStatus:          old,
		ResolvedAt:         resolvedAt,
		ResolutionDuration: resolvedAt.Sub(next.CreatedAt),
		SLABreached:        breached,
	})}
	if breached {
		out = append(out, newEvent(events.EventSLABreach, next.ID, cmd.Actor, events.SeverityCritical, cmd.Now, events.SLABreachPayload{
			DueDate:    next.DueDate,
			ResolvedAt: resolvedAt,
			OverdueBy:  resolvedAt.Sub(next.DueDate),
		}))
	}
	return out, nil
}

func applyClosed(next *domain.Ticket, cmd TransitionCommand) ([]events.Event, error) {
	if next.ResolvedAt == nil {
		return nil, apperrors.NewValidationError("ticket must be resolved before closing", nil)
	}
	old := next.Status
	next.Status = domain.TicketStatusClosed
	closedAt := cmd.Now
	next.ClosedAt = &closedAt
	return []events.Event{newEvent(events.EventTicketClosed, next.ID, cmd.Actor, events.SeverityInfo, cmd.Now, events.ClosedPayload{
		OldStatus:    old,
		ClosedAt:     closedAt,
		TechnicianID: next.TechnicianID,
	})}, nil
}

// SetRating records the one-time user rating on a resolved or closed ticket.
func (m *Machine) SetRating(prev domain.Ticket, rating int, feedback string, actor domain.Actor, now time.Time) (domain.Ticket, []events.Event, error) {
	if rating < 1 || rating > 5 {
		return prev, nil, apperrors.NewValidationError("rating must be between 1 and 5", map[string]any{"rating": rating})
	}
	if prev.Status != domain.TicketStatusResolved && prev.Status != domain.TicketStatusClosed {
		return prev, nil, apperrors.NewValidationError("rating requires a resolved or closed ticket", map[string]any{"status": prev.Status})
	}
	if prev.UserRating != nil {
		return prev, nil, apperrors.NewValidationError("ticket already rated", nil)
	}
	next := prev
	next.UserRating = &rating
	next.UserFeedback = strings.TrimSpace(feedback)
	next.UpdatedAt = now

	evts := []events.Event{newEvent(events.EventTicketRated, prev.ID, actor, events.SeverityInfo, now, events.RatedPayload{
		Rating:   rating,
		Feedback: next.UserFeedback,
	})}
	return next, evts, nil
}

// Delete validates removal of a ticket. Deletion is only legal once no
// active status holds; otherwise it fails and must not be retried.
func (m *Machine) Delete(prev domain.Ticket, actor domain.Actor, now time.Time) ([]events.Event, error) {
	if prev.Status.IsActive() {
		return nil, apperrors.NewHasActiveDependents("ticket", map[string]any{
			"ticket_id": prev.ID,
			"status":    prev.Status,
		})
	}
	return []events.Event{newEvent(events.EventTicketDeleted, prev.ID, actor, events.SeverityWarning, now, events.TicketDeletedPayload{
		TicketNumber: prev.TicketNumber,
		LastStatus:   prev.Status,
	})}, nil
}

func statusChangedEvent(ticketID string, old, new domain.TicketStatus, cmd TransitionCommand) events.Event {
	return newEvent(events.EventStatusChanged, ticketID, cmd.Actor, events.SeverityInfo, cmd.Now, events.StatusChangedPayload{
		OldStatus: old,
		NewStatus: new,
		Comment:   cmd.Comment,
	})
}

func newEvent(eventType events.EventType, ticketID string, actor domain.Actor, severity events.Severity, now time.Time, payload any) events.Event {
	return events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Severity:  severity,
		Timestamp: now,
		Payload:   payload,
	}
}

// FormatTicketNumber renders the external ticket number for a given day and
// per-day sequence value, e.g. TKT-20250107-0042.
func FormatTicketNumber(day time.Time, seq int64) string {
	return fmt.Sprintf("TKT-%s-%04d", day.Format("20060102"), seq)
}
