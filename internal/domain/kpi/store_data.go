package kpi

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kpiflow/internal/domain/auth"
	"kpiflow/internal/domain/period"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const kpiColumns = `k.id, k.owner_id, k.owner_name, k.title, k.description, k.rubric, k.target_value, k.current_value, k.unit, k.weight,
  k.quarter, k.year, k.status, k.evidence_url, k.evidence_name, k.evidence_raw_text, k.created_by, k.created_at, k.updated_at, k.last_updated_at`

func scanKPI(row pgx.Row) (KPI, error) {
	var k KPI
	var quarter, status string
	err := row.Scan(&k.ID, &k.OwnerID, &k.OwnerName, &k.Title, &k.Description, &k.Rubric, &k.TargetValue, &k.CurrentValue, &k.Unit, &k.Weight,
		&quarter, &k.Year, &status, &k.EvidenceURL, &k.EvidenceName, &k.EvidenceRawText, &k.CreatedBy, &k.CreatedAt, &k.UpdatedAt, &k.LastUpdatedAt)
	if err != nil {
		return KPI{}, err
	}
	k.Quarter = period.Quarter(quarter)
	k.Status = Status(status)
	return k, nil
}

func (s *Store) ListKPIs(ctx context.Context, filter Filter) ([]KPI, error) {
	query := "SELECT " + kpiColumns + " FROM kpis k"
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
		query += " JOIN users u ON u.id = k.owner_id"
		add("u.manager_id", filter.ManagerID)
	}
	if filter.OwnerID != "" {
		add("k.owner_id", filter.OwnerID)
	}
	if filter.Quarter != "" && filter.Quarter != period.All {
		add("k.quarter", string(filter.Quarter))
	}
	if filter.Year != 0 {
		add("k.year", filter.Year)
	}
	if filter.Status != "" {
		add("k.status", string(filter.Status))
	}
	query += where + " ORDER BY k.created_at DESC"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kpis []KPI
	for rows.Next() {
		k, err := scanKPI(rows)
		if err != nil {
			return nil, err
		}
		kpis = append(kpis, k)
	}
	return kpis, rows.Err()
}

func (s *Store) GetKPI(ctx context.Context, id string) (KPI, error) {
	k, err := scanKPI(s.DB.QueryRow(ctx, "SELECT "+kpiColumns+" FROM kpis k WHERE k.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return KPI{}, ErrKPINotFound
	}
	return k, err
}

func (s *Store) CreateKPI(ctx context.Context, k KPI) (KPI, error) {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO kpis (id, owner_id, owner_name, title, description, rubric, target_value, current_value, unit, weight,
      quarter, year, status, created_by, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
  `, k.ID, k.OwnerID, k.OwnerName, k.Title, k.Description, k.Rubric, k.TargetValue, k.CurrentValue, k.Unit, k.Weight,
		string(k.Quarter), k.Year, string(k.Status), k.CreatedBy, k.CreatedAt, k.UpdatedAt)
	if err != nil {
		return KPI{}, err
	}
	return k, nil
}

func (s *Store) UpdateKPI(ctx context.Context, k KPI) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE kpis SET
      title = $2, description = $3, rubric = $4, target_value = $5, current_value = $6, unit = $7, weight = $8,
      quarter = $9, year = $10, status = $11, evidence_url = $12, evidence_name = $13, evidence_raw_text = $14,
      updated_at = $15, last_updated_at = $16
    WHERE id = $1
  `, k.ID, k.Title, k.Description, k.Rubric, k.TargetValue, k.CurrentValue, k.Unit, k.Weight,
		string(k.Quarter), k.Year, string(k.Status), k.EvidenceURL, k.EvidenceName, k.EvidenceRawText,
		k.UpdatedAt, k.LastUpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrKPINotFound
	}
	return nil
}

func (s *Store) DeleteKPI(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM kpis WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrKPINotFound
	}
	return nil
}

func (s *Store) AddProgressUpdate(ctx context.Context, update ProgressUpdate) (ProgressUpdate, error) {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO progress_updates (id, kpi_id, user_id, new_value, created_at)
    VALUES ($1, $2, $3, $4, $5)
  `, update.ID, update.KPIID, update.UserID, update.NewValue, update.CreatedAt)
	return update, err
}

func (s *Store) ListProgressUpdates(ctx context.Context, kpiID string) ([]ProgressUpdate, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, kpi_id, user_id, new_value, created_at
    FROM progress_updates
    WHERE kpi_id = $1
    ORDER BY created_at DESC
  `, kpiID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []ProgressUpdate
	for rows.Next() {
		var u ProgressUpdate
		if err := rows.Scan(&u.ID, &u.KPIID, &u.UserID, &u.NewValue, &u.CreatedAt); err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

func (s *Store) AddComment(ctx context.Context, comment Comment) (Comment, error) {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO kpi_comments (id, kpi_id, user_id, user_name, user_role, message, tag, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
  `, comment.ID, comment.KPIID, comment.UserID, comment.UserName, string(comment.UserRole), comment.Message, string(comment.Tag), comment.CreatedAt)
	return comment, err
}

func (s *Store) ListComments(ctx context.Context, kpiID string) ([]Comment, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, kpi_id, user_id, user_name, user_role, message, tag, created_at
    FROM kpi_comments
    WHERE kpi_id = $1
    ORDER BY created_at ASC
  `, kpiID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		var role, tag string
		if err := rows.Scan(&c.ID, &c.KPIID, &c.UserID, &c.UserName, &role, &c.Message, &tag, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.UserRole = auth.Role(role)
		c.Tag = CommentTag(tag)
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
