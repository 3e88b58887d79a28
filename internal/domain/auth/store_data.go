package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const userColumns = `id, name, email, password_hash, role, COALESCE(manager_id::text, ''), job_title, mfa_secret_enc, latest_dev_plan, dev_plan_updated_at, training_completed, training_date, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	var role string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.ManagerID, &u.JobTitle, &u.MFASecretEnc, &u.LatestDevPlan, &u.DevPlanUpdatedAt, &u.TrainingCompleted, &u.TrainingDate, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	return scanUser(s.DB.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.DB.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE lower(email) = lower($1)", strings.TrimSpace(email)))
}

func (s *Store) ListUsers(ctx context.Context, filter UserFilter) ([]User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE 1=1"
	args := []any{}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		query += " AND role = $1"
	}
	if filter.ManagerID != "" {
		args = append(args, filter.ManagerID)
		query += " AND manager_id = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY name"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user User) (User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	err := s.DB.QueryRow(ctx, `
    INSERT INTO users (id, name, email, password_hash, role, manager_id, job_title, mfa_secret_enc)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    RETURNING created_at
  `, user.ID, user.Name, user.Email, user.PasswordHash, string(user.Role), nullIfEmpty(user.ManagerID), user.JobTitle, user.MFASecretEnc).Scan(&user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return user, nil
}

func (s *Store) UpdateDevPlan(ctx context.Context, userID, plan string, updatedAt *time.Time) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE users SET latest_dev_plan = $1, dev_plan_updated_at = $2 WHERE id = $3
  `, plan, updatedAt, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Store) SetTraining(ctx context.Context, userID string, completed bool, completedAt *time.Time) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE users SET training_completed = $1, training_date = $2 WHERE id = $3
  `, completed, completedAt, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
