package notification

import (
	"context"

	"github.com/lifedrop/lifedrop-api/internal/model"
	"github.com/lifedrop/lifedrop-api/internal/store"
)

// Service is a user's notification inbox.
type Service interface {
	List(ctx context.Context, userID string, unreadOnly bool) []model.Notification
	UnreadCount(ctx context.Context, userID string) int
	MarkRead(ctx context.Context, userID, notificationID string) (*model.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

type service struct {
	store *store.Store
}

func NewService(st *store.Store) Service {
	return &service{store: st}
}

// List returns the user's notifications, newest first.
func (s *service) List(ctx context.Context, userID string, unreadOnly bool) []model.Notification {
	all := s.store.NotificationsFor(userID)
	if !unreadOnly {
		return all
	}
	unread := make([]model.Notification, 0, len(all))
	for _, n := range all {
		if !n.Read {
			unread = append(unread, n)
		}
	}
	return unread
}

func (s *service) UnreadCount(ctx context.Context, userID string) int {
	return s.store.UnreadCount(userID)
}

// MarkRead reports store.ErrNotFound for notifications owned by someone else.
func (s *service) MarkRead(ctx context.Context, userID, notificationID string) (*model.Notification, error) {
	return s.store.MarkNotificationRead(ctx, notificationID, userID)
}

// MarkAllRead flips every unread notification of the user in one write.
func (s *service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	marked := 0
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		for _, n := range s.unread(tx, userID) {
			n.Read = true
			tx.UpdateNotification(n)
			marked++
		}
		return nil
	})
	return marked, err
}

func (s *service) unread(tx *store.Tx, userID string) []model.Notification {
	return tx.Notifications(func(n model.Notification) bool {
		return n.UserID == userID && !n.Read
	})
}
