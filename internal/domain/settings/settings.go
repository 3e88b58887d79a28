// Package settings holds the process-wide system configuration record:
// the active period, score blend weights and the global lock.
package settings

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"kpiflow/internal/domain/apperr"
	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/scoring"
)

type Config struct {
	ActiveYear        int            `json:"activeYear"`
	ActiveQuarter     period.Quarter `json:"activeQuarter"`
	KPIWeight         int            `json:"kpiWeight"`
	FeedbackWeight    int            `json:"feedbackWeight"`
	AllowManagerEdits bool           `json:"allowManagerEdits"`
	SystemLocked      bool           `json:"systemLocked"`
	UpdatedBy         string         `json:"updatedBy,omitempty"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

func Default(now time.Time) Config {
	return Config{
		ActiveYear:        now.Year(),
		ActiveQuarter:     period.Q4,
		KPIWeight:         scoring.DefaultKPIWeight,
		FeedbackWeight:    scoring.DefaultFeedbackWeight,
		AllowManagerEdits: true,
		SystemLocked:      false,
	}
}

var (
	ErrWeightsInvalid = apperr.New(apperr.KindValidation, "weights_invalid", "kpi and feedback weights must be between 0 and 100 and sum to 100")
	ErrAdminOnly      = apperr.New(apperr.KindForbidden, "admin_only", "only admins may change system settings")
)

func (c Config) Validate() error {
	if c.KPIWeight < 0 || c.KPIWeight > 100 || c.FeedbackWeight < 0 || c.KPIWeight+c.FeedbackWeight != 100 {
		return ErrWeightsInvalid
	}
	if !c.ActiveQuarter.Valid() {
		return period.ErrInvalidQuarter
	}
	if c.ActiveYear < 2000 || c.ActiveYear > 2100 {
		return apperr.New(apperr.KindValidation, "invalid_year", "active year must be between 2000 and 2100")
	}
	return nil
}

type StoreAPI interface {
	// Get reports found=false when no record has been saved yet.
	Get(ctx context.Context) (cfg Config, found bool, err error)
	Save(ctx context.Context, cfg Config) error
}

type Service struct {
	store    StoreAPI
	defaults Config
	group    singleflight.Group
	now      func() time.Time
}

func NewService(store StoreAPI, defaults Config) *Service {
	return &Service{store: store, defaults: defaults, now: time.Now}
}

// Get reads the record from the store on every call. Concurrent callers
// share one in-flight read, which is detached from the first caller's
// cancellation so the others do not inherit it.
func (s *Service) Get(ctx context.Context) (Config, error) {
	readCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do("system-config", func() (any, error) {
		cfg, found, err := s.store.Get(readCtx)
		if err != nil {
			return Config{}, err
		}
		if !found {
			return s.defaults, nil
		}
		return cfg, nil
	})
	if err != nil {
		return Config{}, apperr.Storage("read system config", err)
	}
	return v.(Config), nil
}

func (s *Service) SystemLocked(ctx context.Context) (bool, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return cfg.SystemLocked, nil
}

// Update carries the fields an admin wants to change. FeedbackWeight is
// always derived as 100 - KPIWeight.
type Update struct {
	ActiveYear        *int            `json:"activeYear"`
	ActiveQuarter     *period.Quarter `json:"activeQuarter"`
	KPIWeight         *int            `json:"kpiWeight"`
	AllowManagerEdits *bool           `json:"allowManagerEdits"`
	SystemLocked      *bool           `json:"systemLocked"`
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, in Update) (Config, error) {
	if actor.Role != auth.RoleAdmin {
		return Config{}, ErrAdminOnly
	}
	cfg, err := s.Get(ctx)
	if err != nil {
		return Config{}, err
	}
	if in.ActiveYear != nil {
		cfg.ActiveYear = *in.ActiveYear
	}
	if in.ActiveQuarter != nil {
		cfg.ActiveQuarter = *in.ActiveQuarter
	}
	if in.KPIWeight != nil {
		cfg.KPIWeight = *in.KPIWeight
		cfg.FeedbackWeight = 100 - *in.KPIWeight
	}
	if in.AllowManagerEdits != nil {
		cfg.AllowManagerEdits = *in.AllowManagerEdits
	}
	if in.SystemLocked != nil {
		cfg.SystemLocked = *in.SystemLocked
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.UpdatedBy = actor.UserID
	cfg.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, cfg); err != nil {
		return Config{}, apperr.Storage("save system config", err)
	}
	return cfg, nil
}

func (s *Service) SetLocked(ctx context.Context, actor auth.Actor, locked bool) (Config, error) {
	return s.Update(ctx, actor, Update{SystemLocked: &locked})
}
