package reward

import (
	"context"
	"strconv"

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

func (s *Store) InsertReward(ctx context.Context, r Reward) (Reward, error) {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO rewards (id, employee_id, employee_name, reward_type, performance_category, final_score, quarter, year, note, decided_by, decided_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
  `, r.ID, r.EmployeeID, r.EmployeeName, string(r.Type), string(r.Category), r.FinalScore, string(r.Quarter), r.Year, r.Note, r.DecidedBy, r.DecidedAt)
	if err != nil {
		return Reward{}, err
	}
	return r, nil
}

func (s *Store) ListRewards(ctx context.Context, filter Filter) ([]Reward, error) {
	query := `SELECT id, employee_id, employee_name, reward_type, performance_category, final_score, quarter, year, note, decided_by, decided_at
    FROM rewards WHERE 1=1`
	args := []any{}
	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		query += " AND employee_id = $" + strconv.Itoa(len(args))
	}
	if filter.Quarter != "" && filter.Quarter != period.All {
		args = append(args, string(filter.Quarter))
		query += " AND quarter = $" + strconv.Itoa(len(args))
	}
	if filter.Year != 0 {
		args = append(args, filter.Year)
		query += " AND year = $" + strconv.Itoa(len(args))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += " AND reward_type = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY decided_at DESC"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reward
	for rows.Next() {
		var r Reward
		var rtype, category, quarter string
		if err := rows.Scan(&r.ID, &r.EmployeeID, &r.EmployeeName, &rtype, &category, &r.FinalScore, &quarter, &r.Year, &r.Note, &r.DecidedBy, &r.DecidedAt); err != nil {
			return nil, err
		}
		r.Type = Type(rtype)
		r.Category = scoring.Category(category)
		r.Quarter = period.Quarter(quarter)
		out = append(out, r)
	}
	return out, rows.Err()
}
