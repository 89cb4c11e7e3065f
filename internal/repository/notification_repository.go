package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// NotificationRepository stores in-app notifications. Rows are written once;
// only sent_at and read_at change afterwards.
type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
	MarkSent(ctx context.Context, id string) error
	MarkRead(ctx context.Context, id string) error
	ListByRecipient(ctx context.Context, kind domain.RecipientKind, recipientID string, limit, offset int) ([]domain.Notification, error)
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds the repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, notification *domain.Notification) error {
	const query = `
        INSERT INTO notifications (type, recipient_kind, recipient_id, ticket_id, actor_kind, actor_id,
            title, message, priority, payload, sent_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		notification.Type,
		notification.RecipientKind,
		notification.RecipientID,
		notification.TicketID,
		notification.ActorKind,
		notification.ActorID,
		notification.Title,
		notification.Message,
		notification.Priority,
		notification.Payload,
		notification.SentAt,
	).Scan(&notification.ID, &notification.CreatedAt)
}

func (r *notificationRepository) MarkSent(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE notifications SET sent_at=NOW() WHERE id=$1 AND sent_at IS NULL`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE notifications SET read_at=NOW() WHERE id=$1 AND read_at IS NULL`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, kind domain.RecipientKind, recipientID string, limit, offset int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, type, recipient_kind, recipient_id, ticket_id, actor_kind, actor_id,
               title, message, priority, payload, sent_at, read_at, created_at
        FROM notifications WHERE recipient_kind=$1 AND recipient_id=$2
        ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, kind, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(
			&n.ID,
			&n.Type,
			&n.RecipientKind,
			&n.RecipientID,
			&n.TicketID,
			&n.ActorKind,
			&n.ActorID,
			&n.Title,
			&n.Message,
			&n.Priority,
			&n.Payload,
			&n.SentAt,
			&n.ReadAt,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}
