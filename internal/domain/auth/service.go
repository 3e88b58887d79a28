package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"kpiflow/internal/domain/apperr"
)

// SecretDecrypter opens MFA secrets stored encrypted at rest.
type SecretDecrypter interface {
	DecryptString(value []byte) (string, error)
}

type Service struct {
	store    StoreAPI
	secret   string
	tokenTTL time.Duration
	crypto   SecretDecrypter
}

func NewService(store StoreAPI, secret string, tokenTTL time.Duration, crypto SecretDecrypter) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &Service{store: store, secret: secret, tokenTTL: tokenTTL, crypto: crypto}
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

func (s *Service) Login(ctx context.Context, email, password, mfaCode string) (LoginResult, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, apperr.Storage("find user", err)
	}
	if err := CheckPassword(user.PasswordHash, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if len(user.MFASecretEnc) > 0 {
		if strings.TrimSpace(mfaCode) == "" {
			return LoginResult{}, ErrMFARequired
		}
		secret := string(user.MFASecretEnc)
		if s.crypto != nil {
			decoded, err := s.crypto.DecryptString(user.MFASecretEnc)
			if err != nil {
				return LoginResult{}, ErrMFAInvalid
			}
			secret = decoded
		}
		if secret == "" || !totp.Validate(strings.TrimSpace(mfaCode), secret) {
			return LoginResult{}, ErrMFAInvalid
		}
	}

	expires := time.Now().Add(s.tokenTTL)
	token, err := GenerateToken(s.secret, Claims{UserID: user.ID, Name: user.Name, Role: user.Role}, s.tokenTTL)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: expires, User: user}, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return User{}, apperr.Storage("get user", err)
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, filter UserFilter) ([]User, error) {
	users, err := s.store.ListUsers(ctx, filter)
	if err != nil {
		return nil, apperr.Storage("list users", err)
	}
	return users, nil
}

// DirectReports lists the users whose recorded manager is managerID.
func (s *Service) DirectReports(ctx context.Context, managerID string) ([]User, error) {
	return s.ListUsers(ctx, UserFilter{ManagerID: managerID})
}

type NewUser struct {
	ID        string
	Name      string
	Email     string
	Password  string
	Role      Role
	ManagerID string
	JobTitle  string
}

func (s *Service) CreateUser(ctx context.Context, in NewUser) (User, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" {
		return User{}, apperr.New(apperr.KindValidation, "user_invalid", "name and email are required")
	}
	if _, err := ParseRole(string(in.Role)); err != nil {
		return User{}, apperr.New(apperr.KindValidation, "role_invalid", err.Error())
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	user, err := s.store.CreateUser(ctx, User{
		ID:           id,
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		Role:         in.Role,
		ManagerID:    in.ManagerID,
		JobTitle:     in.JobTitle,
	})
	if err != nil {
		return User{}, apperr.Storage("create user", err)
	}
	return user, nil
}

// SetTraining marks a manager as a certified rater or revokes it. The
// training date is stamped on completion and cleared on revocation.
func (s *Service) SetTraining(ctx context.Context, userID string, completed bool) (User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return User{}, apperr.Storage("get user", err)
	}
	if user.Role != RoleManager {
		return User{}, ErrNotARater.Withf("user %s has role %s", user.ID, user.Role)
	}
	var at *time.Time
	if completed {
		now := time.Now().UTC()
		at = &now
	}
	if err := s.store.SetTraining(ctx, userID, completed, at); err != nil {
		return User{}, apperr.Storage("set training", err)
	}
	user.TrainingCompleted = completed
	user.TrainingDate = at
	return user, nil
}
