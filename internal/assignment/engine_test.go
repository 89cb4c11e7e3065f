package assignment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/workload"
)

type fixture struct {
	tickets     *repository.MemoryTicketRepository
	technicians *repository.MemoryTechnicianRepository
	tracker     *workload.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tickets := repository.NewMemoryTicketRepository()
	technicians := repository.NewMemoryTechnicianRepository()
	return &fixture{
		tickets:     tickets,
		technicians: technicians,
		tracker:     workload.NewTracker(tickets, nil, 10, zap.NewNop()),
	}
}

func (f *fixture) addTechnician(t *testing.T, id string, skill, maxConcurrent int, apps ...string) {
	t.Helper()
	require.NoError(t, f.technicians.Create(context.Background(), &domain.Technician{
		ID:                   id,
		Name:                 id,
		Email:                id + "@example.test",
		SkillLevel:           skill,
		ApplicationIDs:       apps,
		MaxConcurrentTickets: maxConcurrent,
		Active:               true,
		Available:            true,
	}))
}

func (f *fixture) assign(t *testing.T, technicianID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.tickets.Create(context.Background(), &domain.Ticket{
			TicketNumber: "TKT",
			OwnerID:      "user-1",
			Title:        "t",
			Status:       domain.TicketStatusAssigned,
			Priority:     domain.TicketPriorityMedium,
			TechnicianID: &technicianID,
		}))
	}
}

func TestLoadBalancedPicksLowestLoad(t *testing.T) {
	f := newFixture(t)
	f.addTechnician(t, "tech-a", 1, 10)
	f.addTechnician(t, "tech-b", 1, 10)
	f.assign(t, "tech-a", 3)
	f.assign(t, "tech-b", 1)

	engine := NewEngine(f.technicians, f.tracker, nil, config.AlgorithmLoadBalanced, zap.NewNop())
	chosen, err := engine.SelectTechnician(context.Background(), &domain.Ticket{ApplicationID: "app-1"})
	require.NoError(t, err)
	require.NotNil(t, chosen)
	assert.Equal(t, "tech-b", chosen.ID)
}

func TestLoadBalancedTieBreaksBySkillThenID(t *testing.T) {
	f := newFixture(t)
	f.addTechnician(t, "tech-c", 2, 10)
	f.addTechnician(t, "tech-a", 5, 10)
	f.addTechnician(t, "tech-b", 5, 10)

	engine := NewEngine(f.technicians, f.tracker, nil, config.AlgorithmLoadBalanced, zap.NewNop())
	chosen, err := engine.SelectTechnician(context.Background(), &domain.Ticket{ApplicationID: "app-1"})
	require.NoError(t, err)
	require.NotNil(t, chosen)
	// Equal load everywhere: highest skill wins, lowest id breaks the rest.
	assert.Equal(t, "tech-a", chosen.ID)
}

func TestSelectSkipsTechniciansAtCapacity(t *testing.T) {
	f := newFixture(t)
	f.addTechnician(t, "tech-a", 5, 1)
	f.addTechnician(t, "tech-b", 1, 10)
	f.assign(t, "tech-a", 1)

	engine := NewEngine(f.technicians, f.tracker, nil, config.AlgorithmLoadBalanced, zap.NewNop())
	chosen, err := engine.SelectTechnician(context.Background(), &domain.Ticket{ApplicationID: "app-1"})
	require.NoError(t, err)
	require.NotNil(t, chosen)
	assert.Equal(t, "tech-b", chosen.ID)
}

func TestSelectFiltersByApplicationSkill(t *testing.T) {
	f := newFixture(t)
	f.addTechnician(t, "tech-a", 5, 10, "app-crm")
	f.addTechnician(t, "tech-b", 1, 10, "app-billing")

	engine := NewEngine(f.technicians, f.tracker, nil, config.AlgorithmLoadBalanced, zap.NewNop())
	chosen, err := engine.SelectTechnician(context.Background(), &domain.Ticket{ApplicationID: "app-billing"})
	require.NoError(t, err)
	require.NotNil(t, chosen)
	assert.Equal(t, "tech-b", chosen.ID)
}

func TestEmptySkillListCoversEveryApplication(t *testing.T) {
	f := newFixture(t)
	f.addTechnician(t, "tech-generalist", 1, 10)

	engine := NewEngine(f.technicians, f.tracker, nil, config.AlgorithmLoadBalanced, zap.NewNop())
	chosen, err := engine.SelectTechnician(context.Background(), &domain.Ticket{ApplicationID: "app-anything"})
	require.NoError(t, err)
	require.NotNil(t, chosen)
	assert.Equal(t, "tech-generalist", chosen.ID)
}

func TestSelectReturnsNilWhenPoolExhausted(t *testing.T) {
	f := newFixture(t)
	f.addTechnician(t, "tech-a", 1, 1)
	f.assign(t, "tech-a", 1)

	engine := NewEngine(f.technicians, f.tracker, nil, config.AlgorithmLoadBalanced, zap.NewNop())
	chosen, err := engine.SelectTechnician(context.Background(), &domain.Ticket{ApplicationID: "app-1"})
	require.NoError(t, err)
	assert.Nil(t, chosen)
}

func TestRoundRobinAdvancesAndWraps(t *testing.T) {
	f := newFixture(t)
	f.addTechnician(t, "tech-a", 1, 10)
	f.addTechnician(t, "tech-b", 1, 10)
	f.addTechnician(t, "tech-c", 1, 10)

	engine := NewEngine(f.technicians, f.tracker, NewMemoryCursor(), config.AlgorithmRoundRobin, zap.NewNop())
	ticket := &domain.Ticket{ApplicationID: "app-1"}

	var got []string
	for i := 0; i < 4; i++ {
		chosen, err := engine.SelectTechnician(context.Background(), ticket)
		require.NoError(t, err)
		require.NotNil(t, chosen)
		got = append(got, chosen.ID)
	}
	assert.Equal(t, []string{"tech-a", "tech-b", "tech-c", "tech-a"}, got)
}

func TestRoundRobinSkipsFullTechnician(t *testing.T) {
	f := newFixture(t)
	f.addTechnician(t, "tech-a", 1, 10)
	f.addTechnician(t, "tech-b", 1, 1)
	f.addTechnician(t, "tech-c", 1, 10)
	f.assign(t, "tech-b", 1)

	engine := NewEngine(f.technicians, f.tracker, NewMemoryCursor(), config.AlgorithmRoundRobin, zap.NewNop())
	ticket := &domain.Ticket{ApplicationID: "app-1"}

	first, err := engine.SelectTechnician(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, "tech-a", first.ID)

	second, err := engine.SelectTechnician(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, "tech-c", second.ID)
}

func TestUnknownAlgorithmDefaultsToLoadBalanced(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(f.technicians, f.tracker, nil, "fancy_new_thing", zap.NewNop())
	assert.Equal(t, config.AlgorithmLoadBalanced, engine.Algorithm())
}
