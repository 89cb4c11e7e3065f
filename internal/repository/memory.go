package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// In-memory repository implementations. They back the service when no
// POSTGRES_DSN is configured and every package-level test.

// MemoryTicketRepository keeps tickets in a map.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
}

// NewMemoryTicketRepository builds an empty store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{tickets: make(map[string]domain.Ticket)}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := time.Now()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *MemoryTicketRepository) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = time.Now()
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *MemoryTicketRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.tickets, id)
	return nil
}

func (r *MemoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := ticket
	return &copied, nil
}

func (r *MemoryTicketRepository) GetByTicketNumber(_ context.Context, number string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ticket := range r.tickets {
		if ticket.TicketNumber == number {
			copied := ticket
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemoryTicketRepository) ListWithFilter(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if !matchesFilter(ticket, filter) {
			continue
		}
		result = append(result, ticket)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return paginate(result, filter.Limit, filter.Offset), nil
}

func (r *MemoryTicketRepository) CountOpenByTechnician(_ context.Context, technicianID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, ticket := range r.tickets {
		if ticket.TechnicianID != nil && *ticket.TechnicianID == technicianID && ticket.Status != domain.TicketStatusClosed {
			count++
		}
	}
	return count, nil
}

func matchesFilter(ticket domain.Ticket, filter TicketFilter) bool {
	if filter.OwnerID != nil && ticket.OwnerID != *filter.OwnerID {
		return false
	}
	if filter.TechnicianID != nil && (ticket.TechnicianID == nil || *ticket.TechnicianID != *filter.TechnicianID) {
		return false
	}
	if filter.ApplicationID != nil && ticket.ApplicationID != *filter.ApplicationID {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
		return false
	}
	if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, ticket.Priority) {
		return false
	}
	if filter.EscalatedOnly && !ticket.IsEscalated {
		return false
	}
	if filter.CreatedFrom != nil && ticket.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedTo != nil && ticket.CreatedAt.After(*filter.CreatedTo) {
		return false
	}
	return true
}

func containsStatus(list []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, priority domain.TicketPriority) bool {
	for _, p := range list {
		if p == priority {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// MemoryTechnicianRepository keeps technicians in a map.
type MemoryTechnicianRepository struct {
	mu          sync.RWMutex
	technicians map[string]domain.Technician
}

// NewMemoryTechnicianRepository builds an empty store.
func NewMemoryTechnicianRepository() *MemoryTechnicianRepository {
	return &MemoryTechnicianRepository{technicians: make(map[string]domain.Technician)}
}

func (r *MemoryTechnicianRepository) Create(_ context.Context, technician *domain.Technician) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if technician.ID == "" {
		technician.ID = uuid.NewString()
	}
	now := time.Now()
	if technician.CreatedAt.IsZero() {
		technician.CreatedAt = now
	}
	technician.UpdatedAt = now
	r.technicians[technician.ID] = *technician
	return nil
}

func (r *MemoryTechnicianRepository) Update(_ context.Context, technician *domain.Technician) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.technicians[technician.ID]; !ok {
		return pgx.ErrNoRows
	}
	technician.UpdatedAt = time.Now()
	r.technicians[technician.ID] = *technician
	return nil
}

func (r *MemoryTechnicianRepository) GetByID(_ context.Context, id string) (*domain.Technician, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	technician, ok := r.technicians[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := technician
	return &copied, nil
}

func (r *MemoryTechnicianRepository) GetByEmail(_ context.Context, email string) (*domain.Technician, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, technician := range r.technicians {
		if strings.EqualFold(technician.Email, email) {
			copied := technician
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemoryTechnicianRepository) List(_ context.Context, filter TechnicianFilter) ([]domain.Technician, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Technician
	for _, technician := range r.technicians {
		if filter.ApplicationID != nil && !technician.SupportsApplication(*filter.ApplicationID) {
			continue
		}
		if filter.Active != nil && technician.Active != *filter.Active {
			continue
		}
		if filter.Available != nil && technician.Available != *filter.Available {
			continue
		}
		result = append(result, technician)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return paginate(result, filter.Limit, filter.Offset), nil
}

// MemoryUserRepository keeps users in a map.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewMemoryUserRepository builds an empty store.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]domain.User)}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := user
	return &copied, nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			copied := user
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemoryUserRepository) ListActiveAdmins(_ context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.User
	for _, user := range r.users {
		if user.IsAdmin() && user.Status == domain.UserStatusActive {
			result = append(result, user)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// MemoryNotificationRepository keeps notifications in a slice.
type MemoryNotificationRepository struct {
	mu            sync.RWMutex
	notifications []domain.Notification
}

// NewMemoryNotificationRepository builds an empty store.
func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{}
}

func (r *MemoryNotificationRepository) Create(_ context.Context, notification *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now()
	}
	r.notifications = append(r.notifications, *notification)
	return nil
}

func (r *MemoryNotificationRepository) MarkSent(_ context.Context, id string) error {
	return r.stamp(id, func(n *domain.Notification) bool {
		if n.SentAt != nil {
			return false
		}
		now := time.Now()
		n.SentAt = &now
		return true
	})
}

func (r *MemoryNotificationRepository) MarkRead(_ context.Context, id string) error {
	return r.stamp(id, func(n *domain.Notification) bool {
		if n.ReadAt != nil {
			return false
		}
		now := time.Now()
		n.ReadAt = &now
		return true
	})
}

func (r *MemoryNotificationRepository) stamp(id string, apply func(*domain.Notification) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.notifications {
		if r.notifications[i].ID == id {
			if !apply(&r.notifications[i]) {
				return pgx.ErrNoRows
			}
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *MemoryNotificationRepository) ListByRecipient(_ context.Context, kind domain.RecipientKind, recipientID string, limit, offset int) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Notification
	for _, n := range r.notifications {
		if n.RecipientKind == kind && n.RecipientID == recipientID {
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return paginate(result, limit, offset), nil
}

// All returns every stored notification, oldest first. Test helper.
func (r *MemoryNotificationRepository) All() []domain.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Notification{}, r.notifications...)
}

// MemoryTicketHistoryRepository keeps history entries in a slice.
type MemoryTicketHistoryRepository struct {
	mu      sync.RWMutex
	entries []domain.TicketHistory
}

// NewMemoryTicketHistoryRepository builds an empty store.
func NewMemoryTicketHistoryRepository() *MemoryTicketHistoryRepository {
	return &MemoryTicketHistoryRepository{}
}

func (r *MemoryTicketHistoryRepository) Create(_ context.Context, history *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now()
	}
	r.entries = append(r.entries, *history)
	return nil
}

func (r *MemoryTicketHistoryRepository) ListByTicket(_ context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.TicketHistory
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return paginate(result, limit, offset), nil
}

// MemoryAuditLogRepository enforces the idempotency key in memory.
type MemoryAuditLogRepository struct {
	mu      sync.RWMutex
	entries []domain.AuditLog
	keys    map[string]struct{}
}

// NewMemoryAuditLogRepository builds an empty store.
func NewMemoryAuditLogRepository() *MemoryAuditLogRepository {
	return &MemoryAuditLogRepository{keys: make(map[string]struct{})}
}

func (r *MemoryAuditLogRepository) Create(_ context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.keys[entry.IdempotencyKey]; exists {
		return ErrDuplicateAuditEntry
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.keys[entry.IdempotencyKey] = struct{}{}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *MemoryAuditLogRepository) ListByEntity(_ context.Context, entityType, entityID string, limit, offset int) ([]domain.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.AuditLog
	for _, entry := range r.entries {
		if entry.EntityType == entityType && entry.EntityID == entityID {
			result = append(result, entry)
		}
	}
	return paginate(result, limit, offset), nil
}

// MemoryTicketSequenceRepository numbers tickets per day.
type MemoryTicketSequenceRepository struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewMemoryTicketSequenceRepository builds an empty store.
func NewMemoryTicketSequenceRepository() *MemoryTicketSequenceRepository {
	return &MemoryTicketSequenceRepository{counters: make(map[string]int64)}
}

func (r *MemoryTicketSequenceRepository) Next(_ context.Context, day time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := day.Format("2006-01-02")
	r.counters[key]++
	return r.counters[key], nil
}
