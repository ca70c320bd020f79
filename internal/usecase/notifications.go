package usecase

import (
	"context"

	"github.com/example/face-attendance/internal/notify"
)

// NotificationStore reads and updates in-app notifications.
type NotificationStore interface {
	ListNotifications(ctx context.Context, to notify.Recipient) ([]*notify.Notification, error)
	MarkNotificationRead(ctx context.Context, to notify.Recipient, id string) error
}

// Inbox is a recipient's notifications with the unread count.
type Inbox struct {
	Notifications []*notify.Notification `json:"notifications"`
	UnreadCount   int                    `json:"unreadCount"`
}

// NotificationUseCase serves the in-app inbox.
type NotificationUseCase struct {
	store NotificationStore
}

// NewNotificationUseCase builds the use case.
func NewNotificationUseCase(store NotificationStore) *NotificationUseCase {
	return &NotificationUseCase{store: store}
}

// Inbox returns the recipient's notifications, newest first.
func (uc *NotificationUseCase) Inbox(ctx context.Context, to notify.Recipient) (*Inbox, error) {
	list, err := uc.store.ListNotifications(ctx, to)
	if err != nil {
		return nil, err
	}
	inbox := &Inbox{Notifications: list}
	if inbox.Notifications == nil {
		inbox.Notifications = []*notify.Notification{}
	}
	for _, n := range list {
		if !n.Read {
			inbox.UnreadCount++
		}
	}
	return inbox, nil
}

// MarkRead flags one of the recipient's notifications as read.
func (uc *NotificationUseCase) MarkRead(ctx context.Context, to notify.Recipient, id string) error {
	return uc.store.MarkNotificationRead(ctx, to, id)
}
