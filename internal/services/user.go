package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/reported-users/apiserver/internal/authz"
	"github.com/reported-users/apiserver/internal/store"
	"github.com/reported-users/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id string) error
}

// UserService encapsulates account use-cases: registration, credential
// checks and self-only account management.
type UserService struct {
	repo        UserRepository
	adminSecret string
}

func NewUserService(repo UserRepository, adminSecret string) *UserService {
	return &UserService{repo: repo, adminSecret: adminSecret}
}

// RegisterInput carries the registration payload.
type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	Phone       string
	Address     string
	AdminSecret string
}

// UpdateUserInput carries self-service account edits. A blank Password
// leaves the stored hash untouched.
type UpdateUserInput struct {
	Name     string
	Email    string
	Phone    string
	Address  string
	Password string
}

// Register creates an account. The admin role is granted only when the
// supplied secret exactly matches the configured deployment secret.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (types.User, error) {
	if _, err := s.repo.GetByEmail(ctx, input.Email); err == nil {
		return types.User{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}

	isAdmin := s.adminSecret != "" && input.AdminSecret == s.adminSecret

	user, err := s.repo.Create(ctx, types.User{
		ID:           uuid.NewString(),
		Name:         input.Name,
		Email:        input.Email,
		Phone:        input.Phone,
		Address:      input.Address,
		IsAdmin:      isAdmin,
		PasswordHash: string(hashed),
	})
	if err != nil {
		// The unique index closes the check-then-insert race; a loser
		// sees the same duplicate error as the pre-check.
		if errors.Is(err, store.ErrDuplicateEmail) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, err
	}
	return user, nil
}

// Authenticate verifies email and password. Every mismatch yields the
// same generic error.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Resolve turns a validated token subject into an actor, looking up
// the account's admin flag. A subject with no account is treated as
// unauthenticated.
func (s *UserService) Resolve(ctx context.Context, accountID string) (authz.Actor, error) {
	user, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return authz.Actor{}, ErrUnauthenticated
		}
		return authz.Actor{}, err
	}
	return authz.Actor{
		AccountID:     user.ID,
		Admin:         user.IsAdmin,
		Authenticated: true,
	}, nil
}

// GetSelf returns the actor's own account.
func (s *UserService) GetSelf(ctx context.Context, actor authz.Actor) (types.User, error) {
	return s.GetByID(ctx, actor, actor.AccountID)
}

// GetByID returns an account; accounts are self-only.
func (s *UserService) GetByID(ctx context.Context, actor authz.Actor, id string) (types.User, error) {
	if decision := authz.CanAccessAccount(actor, id); !decision.Allowed {
		return types.User{}, denyError(decision)
	}
	return s.repo.GetByID(ctx, id)
}

// Update edits the actor's own account. A nonblank password is
// re-hashed; a blank one leaves the stored hash untouched.
func (s *UserService) Update(ctx context.Context, actor authz.Actor, id string, input UpdateUserInput) (types.User, error) {
	if decision := authz.CanAccessAccount(actor, id); !decision.Allowed {
		return types.User{}, denyError(decision)
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}

	user.Name = input.Name
	user.Email = input.Email
	user.Phone = input.Phone
	user.Address = input.Address
	if strings.TrimSpace(input.Password) != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return types.User{}, err
		}
		user.PasswordHash = string(hashed)
	}

	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return types.User{}, ErrEmailTaken
		}
		return types.User{}, err
	}
	return updated, nil
}

// Delete removes the actor's own account. Accounts are hard-deleted,
// unlike reports.
func (s *UserService) Delete(ctx context.Context, actor authz.Actor, id string) error {
	if decision := authz.CanAccessAccount(actor, id); !decision.Allowed {
		return denyError(decision)
	}
	return s.repo.Delete(ctx, id)
}
