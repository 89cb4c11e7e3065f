package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/assignment"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/lifecycle"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/workload"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

const lockStripes = 64

// TicketService is the single mutation entry point for tickets. No other
// component writes ticket status or assignment fields.
type TicketService struct {
	tickets     repository.TicketRepository
	technicians repository.TechnicianRepository
	users       repository.UserRepository
	sequences   repository.TicketSequenceRepository
	history     repository.TicketHistoryRepository
	machine     *lifecycle.Machine
	engine      *assignment.Engine
	tracker     *workload.Tracker
	effects     *EffectRunner
	autoAssign  bool
	logger      *zap.Logger
	now         func() time.Time

	// Striped per-technician locks serialize the capacity check and the
	// assignment write so two concurrent requests cannot both pass the
	// check and over-assign past capacity.
	locks [lockStripes]sync.Mutex
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	TechnicianRepo repository.TechnicianRepository
	UserRepo       repository.UserRepository
	SequenceRepo   repository.TicketSequenceRepository
	HistoryRepo    repository.TicketHistoryRepository
	Machine        *lifecycle.Machine
	Engine         *assignment.Engine
	Tracker        *workload.Tracker
	Effects        *EffectRunner
	AutoAssign     bool
	Logger         *zap.Logger
	Now            func() time.Time
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		technicians: deps.TechnicianRepo,
		users:       deps.UserRepo,
		sequences:   deps.SequenceRepo,
		history:     deps.HistoryRepo,
		machine:     deps.Machine,
		engine:      deps.Engine,
		tracker:     deps.Tracker,
		effects:     deps.Effects,
		autoAssign:  deps.AutoAssign,
		logger:      deps.Logger,
		now:         now,
	}
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	OwnerID       string
	ApplicationID string
	CategoryID    string
	Title         string
	Description   string
	Priority      domain.TicketPriority
	Actor         domain.Actor
}

// TransitionInput describes one requested ticket mutation.
type TransitionInput struct {
	NewStatus        *domain.TicketStatus
	TechnicianID     *string
	NewPriority      *domain.TicketPriority
	Escalate         bool
	EscalationReason string
	Comment          string
	Actor            domain.Actor
}

// CreateTicket numbers, stamps and persists a new ticket, runs the creation
// effects and, when enabled, attempts auto-assignment. An exhausted
// technician pool is not an error: the ticket stays open and unassigned.
func (s *TicketService) CreateTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	owner, err := s.users.GetByID(ctx, input.OwnerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("owner", map[string]any{"user_id": input.OwnerID})
		}
		return nil, apperrors.MapError(err)
	}
	if owner.Status != domain.UserStatusActive {
		return nil, apperrors.NewConflict("owner suspended", map[string]any{"user_id": owner.ID})
	}

	now := s.now()
	seq, err := s.sequences.Next(ctx, now)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	ticket, evts, err := s.machine.Create(lifecycle.CreateInput{
		OwnerID:       input.OwnerID,
		ApplicationID: input.ApplicationID,
		CategoryID:    input.CategoryID,
		Title:         input.Title,
		Description:   input.Description,
		Priority:      input.Priority,
		TicketNumber:  lifecycle.FormatTicketNumber(now, seq),
		Actor:         input.Actor,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	if err := s.tickets.Create(ctx, &ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	stampTicketID(evts, ticket.ID)
	s.effects.Run(ctx, ticket, evts)

	if s.autoAssign {
		assigned, err := s.autoAssignTicket(ctx, &ticket, input.Actor)
		if err != nil {
			return nil, err
		}
		ticket = *assigned
	}
	return &ticket, nil
}

// Transition applies one mutation through the state machine and runs the
// resulting effects. Validation failures reject the whole call before any
// write; readers never observe a partially applied ticket.
func (s *TicketService) Transition(ctx context.Context, ticketID string, input TransitionInput) (*domain.Ticket, error) {
	prev, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	cmd := lifecycle.TransitionCommand{
		NewStatus:        input.NewStatus,
		TechnicianID:     input.TechnicianID,
		NewPriority:      input.NewPriority,
		Escalate:         input.Escalate,
		EscalationReason: input.EscalationReason,
		Comment:          input.Comment,
		Actor:            input.Actor,
		Now:              s.now(),
	}

	if input.NewStatus != nil && *input.NewStatus == domain.TicketStatusAssigned && input.TechnicianID != nil {
		return s.transitionWithAssignment(ctx, prev, cmd)
	}
	return s.applyAndPersist(ctx, prev, cmd)
}

// transitionWithAssignment serializes the capacity check and the write on
// the target technician's lock stripe.
func (s *TicketService) transitionWithAssignment(ctx context.Context, prev *domain.Ticket, cmd lifecycle.TransitionCommand) (*domain.Ticket, error) {
	technicianID := *cmd.TechnicianID

	technician, err := s.technicians.GetByID(ctx, technicianID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("technician", map[string]any{"technician_id": technicianID})
		}
		return nil, apperrors.MapError(err)
	}
	if !technician.Eligible() {
		return nil, apperrors.NewConflict("technician not available", map[string]any{"technician_id": technicianID})
	}

	// Self-reassignment is a no-op and must not consume capacity.
	if prev.TechnicianID != nil && *prev.TechnicianID == technicianID {
		return s.applyAndPersist(ctx, prev, cmd)
	}

	lock := s.lockFor(technicianID)
	lock.Lock()
	defer lock.Unlock()

	hasCapacity, err := s.tracker.HasCapacity(ctx, technician)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !hasCapacity {
		return nil, apperrors.NewConflict("technician at capacity", map[string]any{"technician_id": technicianID})
	}
	return s.applyAndPersist(ctx, prev, cmd)
}

func (s *TicketService) applyAndPersist(ctx context.Context, prev *domain.Ticket, cmd lifecycle.TransitionCommand) (*domain.Ticket, error) {
	next, evts, err := s.machine.Apply(*prev, cmd)
	if err != nil {
		return nil, err
	}
	if len(evts) == 0 {
		return prev, nil
	}

	if err := s.tickets.Update(ctx, &next); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.refreshWorkloads(ctx, prev, &next)
	s.recomputePerformance(ctx, &next, evts)
	s.effects.Run(ctx, next, evts)
	return &next, nil
}

// SetRating records the one-time user rating and refreshes the technician's
// rating aggregate.
func (s *TicketService) SetRating(ctx context.Context, ticketID string, rating int, feedback string, actor domain.Actor) (*domain.Ticket, error) {
	prev, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	next, evts, err := s.machine.SetRating(*prev, rating, feedback, actor, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.tickets.Update(ctx, &next); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.recomputePerformance(ctx, &next, evts)
	s.effects.Run(ctx, next, evts)
	return &next, nil
}

// DeleteTicket removes a ticket once no active status holds. The failure is
// surfaced as HasActiveDependents and must not be retried automatically.
func (s *TicketService) DeleteTicket(ctx context.Context, ticketID string, actor domain.Actor) error {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return err
	}

	evts, err := s.machine.Delete(*ticket, actor, s.now())
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, ticketID); err != nil {
		return apperrors.MapError(err)
	}
	if ticket.TechnicianID != nil {
		s.tracker.Refresh(ctx, *ticket.TechnicianID)
	}
	s.effects.Run(ctx, *ticket, evts)
	return nil
}

// autoAssignTicket asks the engine for a technician and applies the
// assignment under that technician's lock, re-checking capacity inside the
// critical section. No capacity anywhere leaves the ticket open and emits
// assignment_failed instead of failing the creation.
func (s *TicketService) autoAssignTicket(ctx context.Context, ticket *domain.Ticket, actor domain.Actor) (*domain.Ticket, error) {
	technician, err := s.engine.SelectTechnician(ctx, ticket)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if technician == nil {
		return ticket, s.recordAssignmentFailure(ctx, ticket, "no technician with capacity")
	}

	lock := s.lockFor(technician.ID)
	lock.Lock()
	defer lock.Unlock()

	// The pool may have changed between selection and locking.
	hasCapacity, err := s.tracker.HasCapacity(ctx, technician)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !hasCapacity {
		return ticket, s.recordAssignmentFailure(ctx, ticket, "selected technician reached capacity")
	}

	status := domain.TicketStatusAssigned
	return s.applyAndPersist(ctx, ticket, lifecycle.TransitionCommand{
		NewStatus:    &status,
		TechnicianID: &technician.ID,
		Actor:        domain.SystemActor(),
		Now:          s.now(),
	})
}

func (s *TicketService) recordAssignmentFailure(ctx context.Context, ticket *domain.Ticket, reason string) error {
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventAssignmentFailed,
		TicketID:  ticket.ID,
		Actor:     domain.SystemActor(),
		Severity:  events.SeverityWarning,
		Timestamp: s.now(),
		Payload: events.AssignmentFailedPayload{
			Algorithm: s.engine.Algorithm(),
			Reason:    reason,
		},
	}
	s.logger.Warn("auto-assignment failed",
		zap.String("ticket_id", ticket.ID),
		zap.String("reason", reason))
	s.effects.Run(ctx, *ticket, []events.Event{event})
	return nil
}

// refreshWorkloads updates the cached load of every technician whose queue
// changed in this transition.
func (s *TicketService) refreshWorkloads(ctx context.Context, prev, next *domain.Ticket) {
	seen := map[string]struct{}{}
	for _, id := range []*string{prev.TechnicianID, next.TechnicianID} {
		if id == nil {
			continue
		}
		if _, done := seen[*id]; done {
			continue
		}
		seen[*id] = struct{}{}
		s.tracker.Refresh(ctx, *id)
	}
}

// recomputePerformance refreshes technician aggregates after resolved and
// rated events.
func (s *TicketService) recomputePerformance(ctx context.Context, ticket *domain.Ticket, evts []events.Event) {
	if ticket.TechnicianID == nil {
		return
	}
	for _, event := range evts {
		switch event.Type {
		case events.EventTicketResolved:
			s.tracker.Refresh(ctx, *ticket.TechnicianID)
		case events.EventTicketRated:
			if payload, ok := event.Payload.(events.RatedPayload); ok {
				s.applyRating(ctx, *ticket.TechnicianID, payload.Rating)
			}
		}
	}
}

func (s *TicketService) applyRating(ctx context.Context, technicianID string, rating int) {
	technician, err := s.technicians.GetByID(ctx, technicianID)
	if err != nil {
		s.logger.Warn("rating recompute skipped", zap.String("technician_id", technicianID), zap.Error(err))
		return
	}
	total := technician.RatingAverage*float64(technician.RatingCount) + float64(rating)
	technician.RatingCount++
	technician.RatingAverage = total / float64(technician.RatingCount)
	if err := s.technicians.Update(ctx, technician); err != nil {
		s.logger.Warn("rating recompute failed", zap.String("technician_id", technicianID), zap.Error(err))
	}
}

// GetTicket fetches one ticket.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.getTicket(ctx, ticketID)
}

// ListHistory returns the timeline for a ticket, oldest first.
func (s *TicketService) ListHistory(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	if _, err := s.getTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

// ListTickets returns tickets matching the filter.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// IsOverdue reports whether the ticket has passed its due date without
// resolution, or was resolved past it.
func (s *TicketService) IsOverdue(ticket *domain.Ticket) bool {
	at := s.now()
	if ticket.ResolvedAt != nil {
		at = *ticket.ResolvedAt
	}
	return at.After(ticket.DueDate)
}

// TechnicianWorkload reports load, capacity and utilization for display.
func (s *TicketService) TechnicianWorkload(ctx context.Context, technicianID string) (load, capacity int, utilization float64, err error) {
	technician, err := s.technicians.GetByID(ctx, technicianID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, 0, apperrors.NewNotFound("technician", map[string]any{"technician_id": technicianID})
		}
		return 0, 0, 0, apperrors.MapError(err)
	}
	load, err = s.tracker.CurrentLoad(ctx, technicianID)
	if err != nil {
		return 0, 0, 0, apperrors.MapError(err)
	}
	capacity = s.tracker.Capacity(technician)
	utilization = float64(load) / float64(capacity) * 100
	return load, capacity, utilization, nil
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) lockFor(technicianID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(technicianID))
	return &s.locks[h.Sum32()%lockStripes]
}

func stampTicketID(evts []events.Event, ticketID string) {
	for i := range evts {
		if evts[i].TicketID == "" {
			evts[i].TicketID = ticketID
		}
	}
}
