package templates

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) ListTemplates(ctx context.Context) ([]Template, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, category_name, goals, created_by, created_at
    FROM kpi_templates
    ORDER BY category_name
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var t Template
		var goals []byte
		if err := rows.Scan(&t.ID, &t.CategoryName, &goals, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(goals, &t.Goals); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateTemplate(ctx context.Context, t Template) (Template, error) {
	goals, err := json.Marshal(t.Goals)
	if err != nil {
		return Template{}, err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO kpi_templates (id, category_name, goals, created_by, created_at)
    VALUES ($1,$2,$3,$4,$5)
  `, t.ID, t.CategoryName, goals, t.CreatedBy, t.CreatedAt)
	if err != nil {
		return Template{}, err
	}
	return t, nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM kpi_templates WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}
