// Package assignment selects technicians for tickets. The engine only
// returns a decision; the service layer performs the actual mutation
// atomically with workload accounting.
package assignment

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/workload"
)

// Engine picks a technician using the configured algorithm.
type Engine struct {
	technicians repository.TechnicianRepository
	tracker     *workload.Tracker
	cursor      Cursor
	algorithm   string
	logger      *zap.Logger
}

// NewEngine constructs the engine. cursor is only consulted for round_robin.
func NewEngine(technicians repository.TechnicianRepository, tracker *workload.Tracker, cursor Cursor, algorithm string, logger *zap.Logger) *Engine {
	if algorithm != config.AlgorithmRoundRobin {
		algorithm = config.AlgorithmLoadBalanced
	}
	if cursor == nil {
		cursor = NewMemoryCursor()
	}
	return &Engine{
		technicians: technicians,
		tracker:     tracker,
		cursor:      cursor,
		algorithm:   algorithm,
		logger:      logger,
	}
}

// Algorithm returns the active algorithm name.
func (e *Engine) Algorithm() string {
	return e.algorithm
}

type candidate struct {
	technician domain.Technician
	load       int
}

// SelectTechnician returns the chosen technician, or nil when no eligible
// technician has capacity. A nil result is not an error: the caller leaves
// the ticket unassigned and emits assignment_failed.
func (e *Engine) SelectTechnician(ctx context.Context, ticket *domain.Ticket) (*domain.Technician, error) {
	active, available := true, true
	pool, err := e.technicians.List(ctx, repository.TechnicianFilter{
		ApplicationID: &ticket.ApplicationID,
		Active:        &active,
		Available:     &available,
		Limit:         1000,
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(pool))
	for _, technician := range pool {
		load, err := e.tracker.CurrentLoad(ctx, technician.ID)
		if err != nil {
			return nil, err
		}
		if load >= e.tracker.Capacity(&technician) {
			continue
		}
		candidates = append(candidates, candidate{technician: technician, load: load})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	switch e.algorithm {
	case config.AlgorithmRoundRobin:
		return e.pickRoundRobin(ctx, candidates)
	default:
		return pickLoadBalanced(candidates), nil
	}
}

// pickLoadBalanced chooses the lowest load; ties go to the higher skill
// level, then the lowest technician id, so the decision is reproducible.
func pickLoadBalanced(candidates []candidate) *domain.Technician {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].load != candidates[j].load {
			return candidates[i].load < candidates[j].load
		}
		if candidates[i].technician.SkillLevel != candidates[j].technician.SkillLevel {
			return candidates[i].technician.SkillLevel > candidates[j].technician.SkillLevel
		}
		return candidates[i].technician.ID < candidates[j].technician.ID
	})
	chosen := candidates[0].technician
	return &chosen
}

// pickRoundRobin walks the candidate list in id order, starting after the
// last assigned technician and wrapping at the end.
func (e *Engine) pickRoundRobin(ctx context.Context, candidates []candidate) (*domain.Technician, error) {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].technician.ID < candidates[j].technician.ID
	})

	last, err := e.cursor.Last(ctx)
	if err != nil {
		e.logger.Warn("round robin cursor read failed, starting from the top", zap.Error(err))
		last = ""
	}

	chosen := candidates[0].technician
	for _, c := range candidates {
		if c.technician.ID > last {
			chosen = c.technician
			break
		}
	}

	if err := e.cursor.Set(ctx, chosen.ID); err != nil {
		e.logger.Warn("round robin cursor write failed", zap.String("technician_id", chosen.ID), zap.Error(err))
	}
	return &chosen, nil
}
