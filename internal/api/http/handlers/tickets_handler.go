package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// TicketsHandler exposes the ticket lifecycle over HTTP.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ApplicationID == "" || req.Title == "" {
		return apperrors.NewValidationError("application_id and title required", nil)
	}

	ticket, err := h.service.CreateTicket(c.Context(), service.CreateTicketInput{
		OwnerID:       principal.User.ID,
		ApplicationID: req.ApplicationID,
		CategoryID:    req.CategoryID,
		Title:         req.Title,
		Description:   req.Description,
		Priority:      req.Priority,
		Actor:         principal.Actor,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": h.ticketDetail(ticket)})
}

// ListTickets GET /tickets. Requesters see their own tickets; technicians
// their queue; admins everything.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	filter := parseTicketQuery(c)
	switch principal.Actor.Kind {
	case domain.ActorKindUser:
		ownerID := principal.Actor.ID
		filter.OwnerID = &ownerID
	case domain.ActorKindTechnician:
		technicianID := principal.Actor.ID
		filter.TechnicianID = &technicianID
	}

	tickets, err := h.service.ListTickets(c.Context(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, h.ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	if err := h.authorizeRead(principal, ticket); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.ticketDetail(ticket)})
}

// Transition POST /tickets/:id/transition.
func (h *TicketsHandler) Transition(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == nil && req.Priority == nil && !req.Escalate {
		return apperrors.NewValidationError("nothing to change", nil)
	}

	ticket, err := h.service.Transition(c.Context(), c.Params("id"), service.TransitionInput{
		NewStatus:        req.Status,
		TechnicianID:     req.TechnicianID,
		NewPriority:      req.Priority,
		Escalate:         req.Escalate,
		EscalationReason: req.EscalationReason,
		Comment:          req.Comment,
		Actor:            principal.Actor,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.ticketDetail(ticket)})
}

// Rate POST /tickets/:id/rating.
func (h *TicketsHandler) Rate(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.RatingRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	if ticket.OwnerID != principal.User.ID {
		return apperrors.NewForbidden("only the owner may rate a ticket")
	}

	rated, err := h.service.SetRating(c.Context(), ticket.ID, req.Rating, req.Feedback, principal.Actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.ticketDetail(rated)})
}

// Delete DELETE /tickets/:id.
func (h *TicketsHandler) Delete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.service.DeleteTicket(c.Context(), c.Params("id"), principal.Actor); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := h.service.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	if err := h.authorizeRead(principal, ticket); err != nil {
		return err
	}

	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	entries, err := h.service.ListHistory(c.Context(), ticket.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.HistoryEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, historyEntry(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Workload GET /technicians/:id/workload.
func (h *TicketsHandler) Workload(c *fiber.Ctx) error {
	technicianID := c.Params("id")
	load, capacity, utilization, err := h.service.TechnicianWorkload(c.Context(), technicianID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.WorkloadResponse{
		TechnicianID: technicianID,
		CurrentLoad:  load,
		Capacity:     capacity,
		Utilization:  utilization,
	}})
}

// authorizeRead lets the owner, the assigned technician and admins read a
// ticket.
func (h *TicketsHandler) authorizeRead(principal *auth.Principal, ticket *domain.Ticket) error {
	switch principal.Actor.Kind {
	case domain.ActorKindAdmin:
		return nil
	case domain.ActorKindUser:
		if ticket.OwnerID == principal.Actor.ID {
			return nil
		}
	case domain.ActorKindTechnician:
		if ticket.TechnicianID != nil && *ticket.TechnicianID == principal.Actor.ID {
			return nil
		}
	}
	return apperrors.NewForbidden("not allowed to view this ticket")
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	if appID := c.Query("application_id"); appID != "" {
		filter.ApplicationID = &appID
	}
	if c.Query("escalated") == "true" {
		filter.EscalatedOnly = true
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func (h *TicketsHandler) ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:            ticket.ID,
		TicketNumber:  ticket.TicketNumber,
		ApplicationID: ticket.ApplicationID,
		CategoryID:    ticket.CategoryID,
		TechnicianID:  ticket.TechnicianID,
		Title:         ticket.Title,
		Status:        ticket.Status,
		Priority:      ticket.Priority,
		DueDate:       ticket.DueDate,
		IsEscalated:   ticket.IsEscalated,
		IsOverdue:     h.service.IsOverdue(ticket),
		CreatedAt:     ticket.CreatedAt,
		UpdatedAt:     ticket.UpdatedAt,
	}
}

func (h *TicketsHandler) ticketDetail(ticket *domain.Ticket) dto.TicketDetailResponse {
	return dto.TicketDetailResponse{
		ID:               ticket.ID,
		TicketNumber:     ticket.TicketNumber,
		OwnerID:          ticket.OwnerID,
		ApplicationID:    ticket.ApplicationID,
		CategoryID:       ticket.CategoryID,
		TechnicianID:     ticket.TechnicianID,
		Title:            ticket.Title,
		Description:      ticket.Description,
		Status:           ticket.Status,
		Priority:         ticket.Priority,
		DueDate:          ticket.DueDate,
		FirstResponseAt:  ticket.FirstResponseAt,
		ResolvedAt:       ticket.ResolvedAt,
		ClosedAt:         ticket.ClosedAt,
		IsEscalated:      ticket.IsEscalated,
		EscalationReason: ticket.EscalationReason,
		IsOverdue:        h.service.IsOverdue(ticket),
		UserRating:       ticket.UserRating,
		UserFeedback:     ticket.UserFeedback,
		CreatedAt:        ticket.CreatedAt,
		UpdatedAt:        ticket.UpdatedAt,
	}
}

func historyEntry(entry *domain.TicketHistory) dto.HistoryEntryResponse {
	return dto.HistoryEntryResponse{
		ID:          entry.ID,
		Action:      entry.Action,
		Field:       entry.Field,
		OldValue:    entry.OldValue,
		NewValue:    entry.NewValue,
		ActorKind:   entry.ActorKind,
		ActorID:     entry.ActorID,
		Description: entry.Description,
		Severity:    entry.Severity,
		CreatedAt:   entry.CreatedAt,
	}
}
