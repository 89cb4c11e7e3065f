package workload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

func seedTicket(t *testing.T, repo *repository.MemoryTicketRepository, technicianID string, status domain.TicketStatus) {
	t.Helper()
	ticket := &domain.Ticket{
		TicketNumber: "TKT-20250107-0001",
		OwnerID:      "user-1",
		Title:        "t",
		Status:       status,
		Priority:     domain.TicketPriorityMedium,
	}
	if technicianID != "" {
		ticket.TechnicianID = &technicianID
	}
	require.NoError(t, repo.Create(context.Background(), ticket))
}

func TestCurrentLoadCountsEverythingButClosed(t *testing.T) {
	repo := repository.NewMemoryTicketRepository()
	tracker := NewTracker(repo, nil, 10, zap.NewNop())

	seedTicket(t, repo, "tech-1", domain.TicketStatusAssigned)
	seedTicket(t, repo, "tech-1", domain.TicketStatusInProgress)
	seedTicket(t, repo, "tech-1", domain.TicketStatusWaitingUser)
	seedTicket(t, repo, "tech-1", domain.TicketStatusWaitingAdmin)
	// Resolved still counts; the requester may bounce it back.
	seedTicket(t, repo, "tech-1", domain.TicketStatusResolved)
	// Closed and other technicians do not.
	seedTicket(t, repo, "tech-1", domain.TicketStatusClosed)
	seedTicket(t, repo, "tech-2", domain.TicketStatusAssigned)
	seedTicket(t, repo, "", domain.TicketStatusOpen)

	load, err := tracker.CurrentLoad(context.Background(), "tech-1")
	require.NoError(t, err)
	assert.Equal(t, 5, load)
}

func TestCapacityFallsBackToDefault(t *testing.T) {
	tracker := NewTracker(repository.NewMemoryTicketRepository(), nil, 7, zap.NewNop())

	assert.Equal(t, 3, tracker.Capacity(&domain.Technician{MaxConcurrentTickets: 3}))
	assert.Equal(t, 7, tracker.Capacity(&domain.Technician{}))
}

func TestHasCapacity(t *testing.T) {
	repo := repository.NewMemoryTicketRepository()
	tracker := NewTracker(repo, nil, 10, zap.NewNop())
	technician := &domain.Technician{ID: "tech-1", MaxConcurrentTickets: 2}

	ok, err := tracker.HasCapacity(context.Background(), technician)
	require.NoError(t, err)
	assert.True(t, ok)

	seedTicket(t, repo, "tech-1", domain.TicketStatusAssigned)
	seedTicket(t, repo, "tech-1", domain.TicketStatusResolved)

	ok, err = tracker.HasCapacity(context.Background(), technician)
	require.NoError(t, err)
	assert.False(t, ok)
}

type mapScoreCache struct {
	loads map[string]int
}

func (c *mapScoreCache) SetLoad(_ context.Context, technicianID string, load int) error {
	c.loads[technicianID] = load
	return nil
}

func (c *mapScoreCache) GetLoad(_ context.Context, technicianID string) (int, bool, error) {
	load, ok := c.loads[technicianID]
	return load, ok, nil
}

func TestRefreshWritesRecomputedLoadToCache(t *testing.T) {
	repo := repository.NewMemoryTicketRepository()
	cache := &mapScoreCache{loads: map[string]int{"tech-1": 99}}
	tracker := NewTracker(repo, cache, 10, zap.NewNop())

	seedTicket(t, repo, "tech-1", domain.TicketStatusAssigned)
	tracker.Refresh(context.Background(), "tech-1")

	assert.Equal(t, 1, cache.loads["tech-1"])
}
