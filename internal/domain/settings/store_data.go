package settings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kpiflow/internal/domain/period"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) Get(ctx context.Context) (Config, bool, error) {
	var cfg Config
	var quarter string
	err := s.DB.QueryRow(ctx, `
    SELECT active_year, active_quarter, kpi_weight, feedback_weight, allow_manager_edits, system_locked, COALESCE(updated_by::text, ''), updated_at
    FROM system_config
    WHERE id = 1
  `).Scan(&cfg.ActiveYear, &quarter, &cfg.KPIWeight, &cfg.FeedbackWeight, &cfg.AllowManagerEdits, &cfg.SystemLocked, &cfg.UpdatedBy, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, false, nil
	}
	if err != nil {
		return Config{}, false, err
	}
	cfg.ActiveQuarter = period.Quarter(quarter)
	return cfg, true, nil
}

func (s *Store) Save(ctx context.Context, cfg Config) error {
	var updatedBy any
	if cfg.UpdatedBy != "" {
		updatedBy = cfg.UpdatedBy
	}
	_, err := s.DB.Exec(ctx, `
    INSERT INTO system_config (id, active_year, active_quarter, kpi_weight, feedback_weight, allow_manager_edits, system_locked, updated_by, updated_at)
    VALUES (1, $1, $2, $3, $4, $5, $6, $7, now())
    ON CONFLICT (id) DO UPDATE SET
      active_year = EXCLUDED.active_year,
      active_quarter = EXCLUDED.active_quarter,
      kpi_weight = EXCLUDED.kpi_weight,
      feedback_weight = EXCLUDED.feedback_weight,
      allow_manager_edits = EXCLUDED.allow_manager_edits,
      system_locked = EXCLUDED.system_locked,
      updated_by = EXCLUDED.updated_by,
      updated_at = now()
  `, cfg.ActiveYear, string(cfg.ActiveQuarter), cfg.KPIWeight, cfg.FeedbackWeight, cfg.AllowManagerEdits, cfg.SystemLocked, updatedBy)
	return err
}
