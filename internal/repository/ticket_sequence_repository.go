package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TicketSequenceRepository hands out per-day sequence values for ticket
// numbering. Next is atomic at the data layer so concurrent creations never
// share a number.
type TicketSequenceRepository interface {
	Next(ctx context.Context, day time.Time) (int64, error)
}

type ticketSequenceRepository struct {
	pool *pgxpool.Pool
}

// NewTicketSequenceRepository builds repository.
func NewTicketSequenceRepository(pool *pgxpool.Pool) TicketSequenceRepository {
	return &ticketSequenceRepository{pool: pool}
}

func (r *ticketSequenceRepository) Next(ctx context.Context, day time.Time) (int64, error) {
	const query = `
        INSERT INTO ticket_sequences (day, counter) VALUES ($1, 1)
        ON CONFLICT (day) DO UPDATE SET counter = ticket_sequences.counter + 1
        RETURNING counter`
	var counter int64
	if err := r.pool.QueryRow(ctx, query, day.Format("2006-01-02")).Scan(&counter); err != nil {
		return 0, err
	}
	return counter, nil
}
