// Package sla computes due dates and breach status from priority budgets.
//
// Due dates use naive wall-clock arithmetic: createdAt + budget(priority).
// Working-hours settings elsewhere in the deployment do not participate in
// the formula.
package sla

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Default resolution budgets, used when configuration is missing or invalid.
const (
	DefaultUrgentHours = 8
	DefaultHighHours   = 24
	DefaultMediumHours = 48
	DefaultLowHours    = 120
)

// Policy maps ticket priority to a resolution-time budget.
type Policy struct {
	budgets map[domain.TicketPriority]time.Duration
}

// NewPolicy builds a policy from config, falling back to defaults whenever a
// budget is unset or would break the urgent<high<medium<low ordering.
func NewPolicy(cfg config.SLAConfig) *Policy {
	urgent := hoursOr(cfg.UrgentHours, DefaultUrgentHours)
	high := hoursOr(cfg.HighHours, DefaultHighHours)
	medium := hoursOr(cfg.MediumHours, DefaultMediumHours)
	low := hoursOr(cfg.LowHours, DefaultLowHours)

	if !(urgent < high && high < medium && medium < low) {
		urgent = DefaultUrgentHours * time.Hour
		high = DefaultHighHours * time.Hour
		medium = DefaultMediumHours * time.Hour
		low = DefaultLowHours * time.Hour
	}

	return &Policy{budgets: map[domain.TicketPriority]time.Duration{
		domain.TicketPriorityUrgent: urgent,
		domain.TicketPriorityHigh:   high,
		domain.TicketPriorityMedium: medium,
		domain.TicketPriorityLow:    low,
	}}
}

// DefaultPolicy returns a policy with the documented default budgets.
func DefaultPolicy() *Policy {
	return NewPolicy(config.SLAConfig{})
}

// Budget returns the resolution budget for a priority. Unknown priorities
// get the medium budget.
func (p *Policy) Budget(priority domain.TicketPriority) time.Duration {
	if budget, ok := p.budgets[priority]; ok {
		return budget
	}
	return p.budgets[domain.TicketPriorityMedium]
}

// DueDate computes createdAt + budget(priority).
func (p *Policy) DueDate(priority domain.TicketPriority, createdAt time.Time) time.Time {
	return createdAt.Add(p.Budget(priority))
}

// IsBreached reports whether the resolution moment (or "now" for unresolved
// tickets) falls past the due date.
func (p *Policy) IsBreached(dueDate, at time.Time) bool {
	return at.After(dueDate)
}

func hoursOr(hours, fallback int) time.Duration {
	if hours <= 0 {
		return time.Duration(fallback) * time.Hour
	}
	return time.Duration(hours) * time.Hour
}
