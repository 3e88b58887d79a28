package shared

import (
	"context"
	"log/slog"
	"net/http"

	"kpiflow/internal/domain/apperr"
	"kpiflow/internal/domain/audit"
	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/notifications"
	"kpiflow/internal/platform/events"
	"kpiflow/internal/platform/metrics"
	"kpiflow/internal/requestctx"
	"kpiflow/internal/transport/http/api"
)

// Effects bundles the side channels a handler touches after a successful
// mutation. None of them can fail the request: errors are logged.
// Every field may be nil.
type Effects struct {
	Audit   *audit.Service
	Notify  *notifications.Service
	Events  events.Publisher
	Metrics *metrics.Collector
}

func (e *Effects) Record(r *http.Request, actor auth.Actor, action, entityType, entityID string, before, after any) {
	if e == nil || e.Audit == nil {
		return
	}
	ctx := r.Context()
	if err := e.Audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  requestctx.GetRequestID(ctx),
		IP:         requestctx.GetClientIP(ctx),
		Before:     before,
		After:      after,
	}); err != nil {
		slog.Warn("audit record failed", "action", action, "entityId", entityID, "err", err)
	}
}

func (e *Effects) Notification(ctx context.Context, userID, ntype, title, body string) {
	if e == nil || e.Notify == nil || userID == "" {
		return
	}
	if err := e.Notify.Create(ctx, userID, ntype, title, body); err != nil {
		slog.Warn("notification create failed", "userId", userID, "type", ntype, "err", err)
	}
}

func (e *Effects) Publish(ctx context.Context, evt events.Event) {
	if e == nil {
		return
	}
	if e.Metrics != nil {
		e.Metrics.RecordEvent(evt.Type)
	}
	if e.Events == nil {
		return
	}
	if err := e.Events.Publish(ctx, evt); err != nil {
		slog.Warn("event publish failed", "type", evt.Type, "aggregateId", evt.AggregateID, "err", err)
	}
}

// Fail counts the error code and writes the envelope.
func (e *Effects) Fail(w http.ResponseWriter, r *http.Request, err error) {
	if e != nil && e.Metrics != nil {
		code := apperr.CodeOf(err)
		if code == "" {
			code = "internal_error"
		}
		e.Metrics.RecordError(code)
	}
	api.FailError(w, err, requestctx.GetRequestID(r.Context()))
}
