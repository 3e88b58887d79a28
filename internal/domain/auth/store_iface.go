package auth

import (
	"context"
	"time"
)

type StoreAPI interface {
	GetUser(ctx context.Context, id string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	UpdateDevPlan(ctx context.Context, userID, plan string, updatedAt *time.Time) error
	SetTraining(ctx context.Context, userID string, completed bool, completedAt *time.Time) error
}
