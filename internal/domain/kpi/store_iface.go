package kpi

import (
	"context"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/settings"
)

type StoreAPI interface {
	ListKPIs(ctx context.Context, filter Filter) ([]KPI, error)
	GetKPI(ctx context.Context, id string) (KPI, error)
	CreateKPI(ctx context.Context, k KPI) (KPI, error)
	UpdateKPI(ctx context.Context, k KPI) error
	DeleteKPI(ctx context.Context, id string) error
	AddProgressUpdate(ctx context.Context, update ProgressUpdate) (ProgressUpdate, error)
	ListProgressUpdates(ctx context.Context, kpiID string) ([]ProgressUpdate, error)
	AddComment(ctx context.Context, comment Comment) (Comment, error)
	ListComments(ctx context.Context, kpiID string) ([]Comment, error)
}

// LockChecker answers whether a final review exists for key. It is asked
// on every mutating call.
type LockChecker interface {
	IsLocked(ctx context.Context, key period.Key) (bool, error)
}

type ConfigSource interface {
	Get(ctx context.Context) (settings.Config, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, id string) (auth.User, error)
}
