package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/placehub/apiserver/internal/auth"
	"github.com/placehub/apiserver/internal/store"
	"github.com/placehub/apiserver/types"
)

// memoryRepo is an in-memory UserRepository for service tests. It mirrors
// the store's contract: unique emails and credential-matched lookups.
type memoryRepo struct {
	mu    sync.Mutex
	seq   int
	users map[string]types.User
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[string]types.User)}
}

func (r *memoryRepo) GetByID(ctx context.Context, id string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memoryRepo) List(ctx context.Context) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := []types.User{}
	for _, user := range r.users {
		users = append(users, user)
	}
	return users, nil
}

func (r *memoryRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, store.ErrDuplicateEmail
		}
	}
	r.seq++
	user.ID = fmt.Sprintf("%024x", r.seq)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *memoryRepo) GetByCredentials(ctx context.Context, email, password string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			if !auth.CheckPassword(password, user.PasswordHash) {
				return types.User{}, store.ErrNotFound
			}
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memoryRepo) UpdateProfile(ctx context.Context, id, name, about string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.Name = name
	user.About = about
	user.UpdatedAt = time.Now()
	r.users[id] = user
	return user, nil
}

func (r *memoryRepo) UpdateAvatar(ctx context.Context, id, avatarURL string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.AvatarURL = avatarURL
	user.UpdatedAt = time.Now()
	r.users[id] = user
	return user, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, attrs[eventAttributeName])
	return "msg-id", nil
}

func registerParams(email string) RegisterParams {
	return RegisterParams{
		Email:     email,
		Password:  "hunter2",
		Name:      "Ann",
		About:     "Engineer",
		AvatarURL: "https://x.com/a.png",
	}
}

func TestRegister_HashesPassword(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo()
	svc := NewUserService(repo, auth.NewTokenService("secret"), nil)

	user, err := svc.Register(context.Background(), registerParams("a@b.com"))
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.ID == "" {
		t.Fatalf("expected generated id")
	}

	stored, err := repo.GetByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if stored.PasswordHash == "hunter2" {
		t.Fatalf("plaintext password persisted")
	}
	if !auth.CheckPassword("hunter2", stored.PasswordHash) {
		t.Fatalf("stored hash does not verify against original password")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo()
	svc := NewUserService(repo, auth.NewTokenService("secret"), nil)

	if _, err := svc.Register(context.Background(), registerParams("a@b.com")); err != nil {
		t.Fatalf("first Register error: %v", err)
	}
	_, err := svc.Register(context.Background(), registerParams("a@b.com"))
	if !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestLogin_IssuesVerifiableToken(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo()
	tokens := auth.NewTokenService("secret")
	svc := NewUserService(repo, tokens, nil)

	created, err := svc.Register(context.Background(), registerParams("a@b.com"))
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	user, token, err := svc.Login(context.Background(), "a@b.com", "hunter2")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("account mismatch: got %q want %q", user.ID, created.ID)
	}

	subject, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if subject != created.ID {
		t.Fatalf("token subject mismatch: got %q want %q", subject, created.ID)
	}
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo()
	svc := NewUserService(repo, auth.NewTokenService("secret"), nil)

	if _, err := svc.Register(context.Background(), registerParams("real@x.com")); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	_, _, unknownErr := svc.Login(context.Background(), "nonexistent@x.com", "x")
	_, _, wrongErr := svc.Login(context.Background(), "real@x.com", "wrongpass")

	if !errors.Is(unknownErr, auth.ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", unknownErr)
	}
	if !errors.Is(wrongErr, auth.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongErr)
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo()
	publisher := &recordingPublisher{}
	svc := NewUserService(repo, auth.NewTokenService("secret"), publisher)

	user, err := svc.Register(context.Background(), registerParams("a@b.com"))
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := svc.UpdateProfile(context.Background(), user.ID, "Bea", "Painter"); err != nil {
		t.Fatalf("UpdateProfile error: %v", err)
	}
	if _, err := svc.UpdateAvatar(context.Background(), user.ID, "https://x.com/b.png"); err != nil {
		t.Fatalf("UpdateAvatar error: %v", err)
	}

	want := []string{EventRegistered, EventProfileUpdated, EventAvatarUpdated}
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.events) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), publisher.events)
	}
	for i, event := range want {
		if publisher.events[i] != event {
			t.Fatalf("event %d: got %q want %q", i, publisher.events[i], event)
		}
	}
}

func TestUpdateProfile_MissingAccount(t *testing.T) {
	t.Parallel()

	svc := NewUserService(newMemoryRepo(), auth.NewTokenService("secret"), nil)

	_, err := svc.UpdateProfile(context.Background(), "000000000000000000000000", "Ann", "Engineer")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
