package user

import (
	"context"
	defError "errors"
	"strings"

	"collaborative-ide/internal/errors"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const searchLimit = 10

type Service interface {
	Register(ctx context.Context, user *User) error
	Login(ctx context.Context, email, password string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	CheckTokenVersion(ctx context.Context, id string, version uint64) error
	Logout(ctx context.Context, id string) error
	DeactivateUser(ctx context.Context, id string) error
	SearchUsers(ctx context.Context, query string) ([]SafeUser, error)
}

type DefaultService struct {
	repository UserRepository
}

func NewService(repository UserRepository) Service {
	return &DefaultService{repository: repository}
}

func (s *DefaultService) Register(ctx context.Context, user *User) error {
	_, err := s.repository.FindByEmail(ctx, user.Email)
	if err != nil && !defError.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err == nil {
		return errors.Conflict("User already registered", nil)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return errors.UnprocessableEntity("Can't use this password", err)
	}
	user.PasswordHash = string(hashedPassword)
	user.IsActive = true

	return s.repository.Create(ctx, user)
}

func (s *DefaultService) Login(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repository.FindByEmail(ctx, email)
	if err != nil {
		return nil, errors.Unauthorized("Invalid credentials", err)
	}
	if !user.IsActive {
		return nil, errors.Unauthorized("User is not active", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.Unauthorized("Invalid credentials", err)
	}
	return user, nil
}

func (s *DefaultService) GetUserByID(ctx context.Context, id string) (*User, error) {
	user, err := s.repository.FindByID(ctx, id)
	if defError.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NotFound("User not found", err)
	}
	return user, err
}

// CheckTokenVersion rejects tokens of unknown or inactive users and tokens
// signed before the user's last logout.
func (s *DefaultService) CheckTokenVersion(ctx context.Context, id string, version uint64) error {
	user, err := s.repository.FindByID(ctx, id)
	if defError.Is(err, gorm.ErrRecordNotFound) {
		return errors.Unauthorized("Invalid User ID!", err)
	}
	if err != nil {
		return err
	}
	if !user.IsActive {
		return errors.Unauthorized("User is not active", nil)
	}
	if user.TokenVersion != version {
		return errors.Unauthorized("Invalid token version!", nil)
	}
	return nil
}

func (s *DefaultService) Logout(ctx context.Context, id string) error {
	return s.repository.IncrementTokenVersion(ctx, id)
}

func (s *DefaultService) DeactivateUser(ctx context.Context, id string) error {
	return s.repository.Deactivate(ctx, id)
}

func (s *DefaultService) SearchUsers(ctx context.Context, query string) ([]SafeUser, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SafeUser{}, nil
	}

	users, err := s.repository.Search(ctx, query, searchLimit)
	if err != nil {
		return nil, err
	}

	result := make([]SafeUser, 0, len(users))
	for i := range users {
		result = append(result, users[i].ToSafeUser())
	}
	return result, nil
}
