package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"marketplace-service/internal/domain"
	"marketplace-service/internal/realtime"
	"marketplace-service/internal/repository"

	"golang.org/x/sync/errgroup"
)

const (
	EventNotification      = "notification"
	EventOrderStatusUpdate = "order-status-update"
	EventPaymentSuccess    = "payment-success"

	defaultPageSize = 20
	maxPageSize     = 100
	fanoutLimit     = 8
)

// NotificationService persists notifications and pushes them to live connections. The row
// is the source of truth; a push that reaches nobody is only logged.
type NotificationService struct {
	repo     repository.NotificationRepository
	registry realtime.Registry
}

func NewNotificationService(repo repository.NotificationRepository, registry realtime.Registry) *NotificationService {
	return &NotificationService{repo: repo, registry: registry}
}

type NotificationPage struct {
	Items      []domain.Notification `json:"notifications"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	Limit      int                   `json:"limit"`
	TotalPages int                   `json:"totalPages"`
}

func (s *NotificationService) Notify(ctx context.Context, userID uint64, typ domain.NotificationType, title, message string, relatedID *uint64) (*domain.Notification, error) {
	n := &domain.Notification{
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		RelatedID: relatedID,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		log.Printf("notify user %d: insert failed: %v", userID, err)
		return nil, err
	}

	if !s.Push(userID, EventNotification, n) {
		log.Printf("notify user %d: stored notification %d, user offline", userID, n.ID)
	}
	return n, nil
}

// NotifyMany sends one notification per draft, at most one per recipient. Recipients are
// independent: a failed insert for one does not stop the others and is reported in the
// joined error.
func (s *NotificationService) NotifyMany(ctx context.Context, drafts []domain.Notification) ([]domain.Notification, error) {
	seen := make(map[uint64]struct{}, len(drafts))
	unique := make([]domain.Notification, 0, len(drafts))
	for _, d := range drafts {
		if _, ok := seen[d.UserID]; ok {
			continue
		}
		seen[d.UserID] = struct{}{}
		unique = append(unique, d)
	}

	created := make([]*domain.Notification, len(unique))
	errs := make([]error, len(unique))

	var g errgroup.Group
	g.SetLimit(fanoutLimit)
	for i, d := range unique {
		g.Go(func() error {
			n, err := s.Notify(ctx, d.UserID, d.Type, d.Title, d.Message, d.RelatedID)
			if err != nil {
				errs[i] = fmt.Errorf("user %d: %w", d.UserID, err)
				return nil
			}
			created[i] = n
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.Notification, 0, len(unique))
	for _, n := range created {
		if n != nil {
			out = append(out, *n)
		}
	}
	return out, errors.Join(errs...)
}

// Push forwards an event to the user's live connections without persisting anything.
func (s *NotificationService) Push(userID uint64, event string, payload any) bool {
	if s.registry == nil {
		return false
	}
	return s.registry.Send(userID, event, payload)
}

func (s *NotificationService) List(ctx context.Context, userID uint64, page, limit int) (*NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	items, total, err := s.repo.ListByUser(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return &NotificationPage{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint64) (*domain.Notification, error) {
	n, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if n.IsRead {
		return n, nil
	}
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return nil, err
	}
	n.IsRead = true
	return n, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint64) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *NotificationService) Delete(ctx context.Context, userID, id uint64) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *NotificationService) owned(ctx context.Context, userID, id uint64) (*domain.Notification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, ErrNotificationNotFound
	}
	if n.UserID != userID {
		return nil, ErrForbidden
	}
	return n, nil
}
