package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kpiflow/internal/domain/apperr"
	"kpiflow/internal/domain/auth"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// UserDirectory resolves a recipient's email address.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (auth.User, error)
}

var ErrNotificationNotFound = apperr.New(apperr.KindNotFound, "notification_not_found", "notification not found")

type Service struct {
	store       StoreAPI
	users       UserDirectory
	Mailer      Mailer
	EmailOn     bool
	DefaultFrom string
	now         func() time.Time
}

func New(store StoreAPI, users UserDirectory, mailer Mailer) *Service {
	return &Service{store: store, users: users, Mailer: mailer, DefaultFrom: "no-reply@example.com", now: time.Now}
}

// Create stores an in-app notification and, when email is on, mails the
// recipient. Mail failures are logged and never fail the call.
func (s *Service) Create(ctx context.Context, userID, ntype, title, body string) error {
	if userID == "" {
		return nil
	}
	if err := s.store.InsertNotification(ctx, Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      ntype,
		Title:     title,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		return apperr.Storage("insert notification", err)
	}

	if s.Mailer == nil || !s.EmailOn || s.users == nil {
		return nil
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		slog.Warn("notification email lookup failed", "userId", userID, "err", err)
		return nil
	}
	if user.Email == "" {
		return nil
	}
	if err := s.Mailer.Send(ctx, s.DefaultFrom, user.Email, title, body); err != nil {
		slog.Warn("notification email send failed", "userId", userID, "err", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, actor auth.Actor, limit, offset int) ([]Notification, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	out, err := s.store.ListNotifications(ctx, actor.UserID, limit, offset)
	if err != nil {
		return nil, apperr.Storage("list notifications", err)
	}
	return out, nil
}

func (s *Service) Unread(ctx context.Context, actor auth.Actor) (int, error) {
	n, err := s.store.CountUnread(ctx, actor.UserID)
	if err != nil {
		return 0, apperr.Storage("count notifications", err)
	}
	return n, nil
}

func (s *Service) MarkRead(ctx context.Context, actor auth.Actor, notificationID string) error {
	found, err := s.store.MarkRead(ctx, actor.UserID, notificationID)
	if err != nil {
		return apperr.Storage("mark notification read", err)
	}
	if !found {
		return ErrNotificationNotFound
	}
	return nil
}
