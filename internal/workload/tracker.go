// Package workload maintains per-technician load views. Load is always
// recomputed from ticket rows; Redis only holds a display score so the
// cache can never drift into assignment decisions.
package workload

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// Tracker answers capacity questions for technicians. A ticket counts toward
// load while its status is anything but closed; resolved tickets still count
// because the technician may have to act on requester feedback.
type Tracker struct {
	tickets              repository.TicketRepository
	cache                ScoreCache
	defaultMaxConcurrent int
	logger               *zap.Logger
}

// NewTracker constructs the tracker. cache may be nil.
func NewTracker(tickets repository.TicketRepository, cache ScoreCache, defaultMaxConcurrent int, logger *zap.Logger) *Tracker {
	if defaultMaxConcurrent <= 0 {
		defaultMaxConcurrent = 10
	}
	return &Tracker{
		tickets:              tickets,
		cache:                cache,
		defaultMaxConcurrent: defaultMaxConcurrent,
		logger:               logger,
	}
}

// CurrentLoad counts non-closed tickets assigned to the technician.
func (t *Tracker) CurrentLoad(ctx context.Context, technicianID string) (int, error) {
	return t.tickets.CountOpenByTechnician(ctx, technicianID)
}

// Capacity returns the technician's configured ceiling, or the deployment
// default when unset.
func (t *Tracker) Capacity(technician *domain.Technician) int {
	if technician.MaxConcurrentTickets > 0 {
		return technician.MaxConcurrentTickets
	}
	return t.defaultMaxConcurrent
}

// HasCapacity reports whether the technician can take one more ticket.
func (t *Tracker) HasCapacity(ctx context.Context, technician *domain.Technician) (bool, error) {
	load, err := t.CurrentLoad(ctx, technician.ID)
	if err != nil {
		return false, err
	}
	return load < t.Capacity(technician), nil
}

// UtilizationPercent returns load relative to capacity, 0..100 and beyond
// when over-assigned.
func (t *Tracker) UtilizationPercent(ctx context.Context, technician *domain.Technician) (float64, error) {
	load, err := t.CurrentLoad(ctx, technician.ID)
	if err != nil {
		return 0, err
	}
	return float64(load) / float64(t.Capacity(technician)) * 100, nil
}

// Refresh recomputes the technician's load and stores the score in the
// cache. Called after every assignment-affecting transition; cache failures
// are logged, never propagated.
func (t *Tracker) Refresh(ctx context.Context, technicianID string) {
	load, err := t.CurrentLoad(ctx, technicianID)
	if err != nil {
		t.logger.Warn("workload refresh failed", zap.String("technician_id", technicianID), zap.Error(err))
		return
	}
	if t.cache == nil {
		return
	}
	if err := t.cache.SetLoad(ctx, technicianID, load); err != nil {
		t.logger.Warn("workload cache write failed", zap.String("technician_id", technicianID), zap.Error(err))
	}
}

// ScoreCache stores the cached workload score.
type ScoreCache interface {
	SetLoad(ctx context.Context, technicianID string, load int) error
	GetLoad(ctx context.Context, technicianID string) (int, bool, error)
}

const scoreTTL = 24 * time.Hour

type redisScoreCache struct {
	client *redis.Client
}

// NewRedisScoreCache builds a cache on top of go-redis.
func NewRedisScoreCache(client *redis.Client) ScoreCache {
	return &redisScoreCache{client: client}
}

func scoreKey(technicianID string) string {
	return fmt.Sprintf("workload:technician:%s", technicianID)
}

func (c *redisScoreCache) SetLoad(ctx context.Context, technicianID string, load int) error {
	return c.client.Set(ctx, scoreKey(technicianID), load, scoreTTL).Err()
}

func (c *redisScoreCache) GetLoad(ctx context.Context, technicianID string) (int, bool, error) {
	val, err := c.client.Get(ctx, scoreKey(technicianID)).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}
