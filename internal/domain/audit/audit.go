package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"kpiflow/internal/domain/apperr"
	"kpiflow/internal/domain/auth"
)

type Event struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	ActorRole  auth.Role       `json:"actorRole"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	IP         string          `json:"ip"`
	CreatedAt  time.Time       `json:"createdAt"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	ActorUser  string
}

type StoreAPI interface {
	InsertEvent(ctx context.Context, evt Event) error
	ListEvents(ctx context.Context, filter Filter, limit, offset int) ([]Event, error)
}

var ErrAuditForbidden = apperr.New(apperr.KindForbidden, "audit_forbidden", "only hr and admins read the audit log")

type Service struct {
	store StoreAPI
	now   func() time.Time
}

func New(store StoreAPI) *Service {
	return &Service{store: store, now: time.Now}
}

// Entry describes one mutating action. Before and After are marshalled
// as JSON when non-nil.
type Entry struct {
	Actor      auth.Actor
	Action     string
	EntityType string
	EntityID   string
	RequestID  string
	IP         string
	Before     any
	After      any
}

func (s *Service) Record(ctx context.Context, e Entry) error {
	evt := Event{
		ID:         uuid.NewString(),
		ActorID:    e.Actor.UserID,
		ActorRole:  e.Actor.Role,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		RequestID:  e.RequestID,
		IP:         e.IP,
		CreatedAt:  s.now().UTC(),
	}
	var err error
	if evt.Before, err = marshal(e.Before); err != nil {
		return err
	}
	if evt.After, err = marshal(e.After); err != nil {
		return err
	}
	if err := s.store.InsertEvent(ctx, evt); err != nil {
		return apperr.Storage("insert audit event", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, actor auth.Actor, filter Filter, limit, offset int) ([]Event, error) {
	if !actor.IsAny(auth.RoleHR, auth.RoleAdmin) {
		return nil, ErrAuditForbidden
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	events, err := s.store.ListEvents(ctx, filter, limit, offset)
	if err != nil {
		return nil, apperr.Storage("list audit events", err)
	}
	return events, nil
}

func marshal(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
