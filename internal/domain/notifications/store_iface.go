package notifications

import "context"

type StoreAPI interface {
	InsertNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, userID string, limit, offset int) ([]Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	// MarkRead reports found=false when the notification does not belong
	// to userID.
	MarkRead(ctx context.Context, userID, notificationID string) (found bool, err error)
}
