package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"testquest-backend/internal/logger"
	"testquest-backend/internal/models"
	"testquest-backend/internal/session"
)

const bcryptCost = 12

// UserStore is the slice of repository.UserRepo the identity service needs.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

// IdentityService checks credentials and mints accounts against Postgres.
type IdentityService struct {
	users UserStore
	log   *logger.Logger
	cost  int
}

var _ session.IdentityStore = (*IdentityService)(nil)

func NewIdentityService(users UserStore, log *logger.Logger) *IdentityService {
	if log == nil {
		log = logger.Nop()
	}
	return &IdentityService{users: users, log: log, cost: bcryptCost}
}

func (s *IdentityService) FindByCredentials(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnauthorizedError{Message: "Invalid email or password"}
		}
		return nil, unavailable(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, &UnauthorizedError{Message: "Invalid email or password"}
	}
	return user, nil
}

func (s *IdentityService) Create(ctx context.Context, identity session.NewIdentity) (*models.User, error) {
	req := models.RegisterRequest{
		FullName: identity.FullName,
		Email:    identity.Email,
		Password: identity.Password,
	}
	fieldErrors := make(map[string]string)
	if verr := validateStruct(req); verr != nil {
		fieldErrors = verr.Fields
	}
	if _, bad := fieldErrors["password"]; !bad {
		if err := validatePassword(identity.Password); err != nil {
			fieldErrors["password"] = err.Error()
		}
	}
	if !identity.Role.Valid() {
		fieldErrors["role"] = "Invalid role"
	}
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Fields: fieldErrors}
	}

	_, err := s.users.GetByEmail(ctx, identity.Email)
	if err == nil {
		return nil, &ConflictError{Message: "Email already in use"}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, unavailable(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(identity.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        identity.Email,
		PasswordHash: string(hash),
		FullName:     identity.FullName,
		Role:         identity.Role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, &ConflictError{Message: "Email already in use"}
		}
		return nil, unavailable(err)
	}

	s.log.Info("account created", "user_id", user.ID, "role", user.Role)
	return user, nil
}

func (s *IdentityService) Update(ctx context.Context, user *models.User) error {
	if err := s.users.Update(ctx, user); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", session.ErrServiceUnavailable, err)
}
