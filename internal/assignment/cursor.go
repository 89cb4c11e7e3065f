package assignment

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cursor remembers the last technician picked by round_robin.
type Cursor interface {
	Last(ctx context.Context) (string, error)
	Set(ctx context.Context, technicianID string) error
}

const (
	cursorKey = "assignment:round_robin:last"
	cursorTTL = 7 * 24 * time.Hour
)

type redisCursor struct {
	client *redis.Client
}

// NewRedisCursor persists the cursor in Redis so rotation survives restarts.
func NewRedisCursor(client *redis.Client) Cursor {
	return &redisCursor{client: client}
}

func (c *redisCursor) Last(ctx context.Context) (string, error) {
	val, err := c.client.Get(ctx, cursorKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *redisCursor) Set(ctx context.Context, technicianID string) error {
	return c.client.Set(ctx, cursorKey, technicianID, cursorTTL).Err()
}

type memoryCursor struct {
	mu   sync.Mutex
	last string
}

// NewMemoryCursor keeps the cursor in process memory.
func NewMemoryCursor() Cursor {
	return &memoryCursor{}
}

func (c *memoryCursor) Last(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, nil
}

func (c *memoryCursor) Set(_ context.Context, technicianID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = technicianID
	return nil
}
