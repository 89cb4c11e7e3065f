package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// NotificationService exposes the read/ack side of notifications. Writes
// happen only through the notification dispatcher.
type NotificationService struct {
	notifications repository.NotificationRepository
}

// NewNotificationService constructs the service.
func NewNotificationService(notifications repository.NotificationRepository) *NotificationService {
	return &NotificationService{notifications: notifications}
}

// ListForRecipient returns notifications for one recipient, newest first.
func (s *NotificationService) ListForRecipient(ctx context.Context, kind domain.RecipientKind, recipientID string, limit, offset int) ([]domain.Notification, error) {
	list, err := s.notifications.ListByRecipient(ctx, kind, recipientID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// MarkRead stamps read_at once; a second call is a conflict.
func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	if err := s.notifications.MarkRead(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewConflict("notification missing or already read", map[string]any{"notification_id": id})
		}
		return apperrors.MapError(err)
	}
	return nil
}
