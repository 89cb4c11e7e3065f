package domain

import "time"

// Technician models a helpdesk operator who works assigned tickets.
type Technician struct {
	ID                   string
	Name                 string
	Email                string
	PasswordHash         string
	SkillLevel           int
	ApplicationIDs       []string
	MaxConcurrentTickets int
	Active               bool
	Available            bool
	RatingAverage        float64
	RatingCount          int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Eligible reports whether the technician may receive new assignments at all.
// Capacity is checked separately by the workload tracker.
func (t *Technician) Eligible() bool {
	return t.Active && t.Available
}

// SupportsApplication reports whether the technician covers the application.
// An empty skill list means the technician covers everything.
func (t *Technician) SupportsApplication(applicationID string) bool {
	if len(t.ApplicationIDs) == 0 {
		return true
	}
	for _, id := range t.ApplicationIDs {
		if id == applicationID {
			return true
		}
	}
	return false
}
