package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/placehub/apiserver/internal/auth"
	"github.com/placehub/apiserver/internal/store"
	"github.com/placehub/apiserver/types"
)

// Account lifecycle events published after successful writes.
const (
	EventChannel        = "account-events"
	EventRegistered     = "account.registered"
	EventProfileUpdated = "account.profile_updated"
	EventAvatarUpdated  = "account.avatar_updated"
	eventAttributeName  = "event"
)

// UserRepository defines persistence operations for accounts.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	GetByCredentials(ctx context.Context, email, password string) (types.User, error)
	UpdateProfile(ctx context.Context, id, name, about string) (types.User, error)
	UpdateAvatar(ctx context.Context, id, avatarURL string) (types.User, error)
}

// EventPublisher delivers account lifecycle events to a broker.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// RegisterParams carries the fields accepted at registration. Password is
// plaintext here and only here; it is hashed before it reaches the store.
type RegisterParams struct {
	Email     string
	Password  string
	Name      string
	About     string
	AvatarURL string
}

// UserService encapsulates account use-cases: registration, sign-in,
// profile reads and owner-only updates.
type UserService struct {
	repo      UserRepository
	tokens    *auth.TokenService
	publisher EventPublisher
}

// NewUserService constructs a UserService. publisher may be nil when no
// broker is configured.
func NewUserService(repo UserRepository, tokens *auth.TokenService, publisher EventPublisher) *UserService {
	return &UserService{
		repo:      repo,
		tokens:    tokens,
		publisher: publisher,
	}
}

// Register hashes the password and persists a new account. A duplicate
// email surfaces as store.ErrDuplicateEmail.
func (s *UserService) Register(ctx context.Context, params RegisterParams) (types.User, error) {
	hashed, err := auth.HashPassword(params.Password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Email:        params.Email,
		Name:         params.Name,
		About:        params.About,
		AvatarURL:    params.AvatarURL,
		PasswordHash: hashed,
	})
	if err != nil {
		return types.User{}, err
	}

	s.publishEvent(ctx, EventRegistered, user.ID)
	return user, nil
}

// Login verifies credentials and issues an identity token. A miss on
// either email or password yields auth.ErrInvalidCredentials; the two
// causes are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (types.User, string, error) {
	user, err := s.repo.GetByCredentials(ctx, email, password)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, "", auth.ErrInvalidCredentials
		}
		return types.User{}, "", err
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return types.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

// UpdateProfile mutates name and about on the caller's own record. The id
// always comes from verified request identity, never from the body.
func (s *UserService) UpdateProfile(ctx context.Context, id, name, about string) (types.User, error) {
	user, err := s.repo.UpdateProfile(ctx, id, name, about)
	if err != nil {
		return types.User{}, err
	}
	s.publishEvent(ctx, EventProfileUpdated, user.ID)
	return user, nil
}

// UpdateAvatar mutates the avatar URL on the caller's own record.
func (s *UserService) UpdateAvatar(ctx context.Context, id, avatarURL string) (types.User, error) {
	user, err := s.repo.UpdateAvatar(ctx, id, avatarURL)
	if err != nil {
		return types.User{}, err
	}
	s.publishEvent(ctx, EventAvatarUpdated, user.ID)
	return user, nil
}

// publishEvent emits a lifecycle event best-effort. Delivery failures are
// logged and never fail the request that triggered them.
func (s *UserService) publishEvent(ctx context.Context, event, accountID string) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{"id": accountID})
	if err != nil {
		return
	}
	attrs := map[string]string{eventAttributeName: event}
	if _, err := s.publisher.Publish(ctx, EventChannel, payload, attrs); err != nil {
		fmt.Fprintf(os.Stderr, "publish %s event: %v\n", event, err)
	}
}
