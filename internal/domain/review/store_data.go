package review

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"kpiflow/internal/domain/period"
	"kpiflow/internal/domain/scoring"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const reviewColumns = `r.id, r.employee_id, r.employee_name, r.quarter, r.year, r.kpi_score, r.feedback_score, r.final_score,
  r.performance_category, r.applied_kpi_weight, r.applied_feedback_weight, r.weight_coverage, r.kpi_count,
  r.finalized_by, r.finalized_by_name, r.finalized_at`

func scanReview(row pgx.Row) (FinalReview, error) {
	var r FinalReview
	var quarter, category string
	err := row.Scan(&r.ID, &r.EmployeeID, &r.EmployeeName, &quarter, &r.Year, &r.KPIScore, &r.FeedbackScore, &r.FinalScore,
		&category, &r.AppliedKPIWeight, &r.AppliedFeedbackWeight, &r.WeightCoverage, &r.KPICount,
		&r.FinalizedBy, &r.FinalizedByName, &r.FinalizedAt)
	if err != nil {
		return FinalReview{}, err
	}
	r.Quarter = period.Quarter(quarter)
	r.Category = scoring.Category(category)
	return r, nil
}

func (s *Store) GetFinalReview(ctx context.Context, key period.Key) (FinalReview, error) {
	r, err := scanReview(s.DB.QueryRow(ctx, "SELECT "+reviewColumns+" FROM final_reviews r WHERE r.id = $1", key.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return FinalReview{}, ErrReviewNotFound
	}
	return r, err
}

func (s *Store) InsertFinalReview(ctx context.Context, r FinalReview) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO final_reviews (id, employee_id, employee_name, quarter, year, kpi_score, feedback_score, final_score,
      performance_category, applied_kpi_weight, applied_feedback_weight, weight_coverage, kpi_count,
      finalized_by, finalized_by_name, finalized_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
  `, r.ID, r.EmployeeID, r.EmployeeName, string(r.Quarter), r.Year, r.KPIScore, r.FeedbackScore, r.FinalScore,
		string(r.Category), r.AppliedKPIWeight, r.AppliedFeedbackWeight, r.WeightCoverage, r.KPICount,
		r.FinalizedBy, r.FinalizedByName, r.FinalizedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyFinalized
		}
		return err
	}
	return nil
}

func (s *Store) FinalReviewExists(ctx context.Context, key period.Key) (bool, error) {
	var exists bool
	if err := s.DB.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM final_reviews WHERE id = $1)", key.String()).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) ListFinalReviews(ctx context.Context, filter Filter) ([]FinalReview, error) {
	query := "SELECT " + reviewColumns + " FROM final_reviews r"
	args := []any{}
	where := ""
	add := func(clause string, value any) {
		args = append(args, value)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += clause + " = $" + strconv.Itoa(len(args))
	}
	if filter.ManagerID != "" {
		query += " JOIN users u ON u.id = r.employee_id"
		add("u.manager_id", filter.ManagerID)
	}
	if filter.EmployeeID != "" {
		add("r.employee_id", filter.EmployeeID)
	}
	if filter.Quarter != "" && filter.Quarter != period.All {
		add("r.quarter", string(filter.Quarter))
	}
	if filter.Year != 0 {
		add("r.year", filter.Year)
	}
	if filter.Category != "" {
		add("r.performance_category", string(filter.Category))
	}
	query += where + " ORDER BY r.finalized_at DESC"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []FinalReview
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}
