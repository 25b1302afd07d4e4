package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/placehub/apiserver/internal/auth"
	"github.com/placehub/apiserver/types"
)

const uniqueViolation = "23505"

// dummyPasswordHash is compared against when sign-in hits an unknown email,
// so the miss path costs the same bcrypt work as a real mismatch.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

const userColumns = "id, email, name, about, avatar_url, password_hash, created_at, updated_at"

// UserRepository handles persistence for accounts.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []types.User{}
	for rows.Next() {
		var user types.User
		if err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.Name,
			&user.About,
			&user.AvatarURL,
			&user.PasswordHash,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Create persists a new account under a freshly generated id. A unique
// email violation maps to ErrDuplicateEmail.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.ID = newAccountID()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, email, name, about, avatar_url, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Email,
		user.Name,
		user.About,
		user.AvatarURL,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, err
	}
	return user, nil
}

// GetByCredentials returns the account matching email only if password
// matches its stored hash. Unknown email and wrong password both return
// ErrNotFound after equivalent hash work.
func (r *UserRepository) GetByCredentials(ctx context.Context, email, password string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE lower(email) = lower($1)`
	user, err := r.scanOne(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			auth.CheckPassword(password, dummyPasswordHash)
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

// UpdateProfile sets name and about on the account and returns the
// post-update record.
func (r *UserRepository) UpdateProfile(ctx context.Context, id, name, about string) (types.User, error) {
	const query = `
		UPDATE users
		SET name = $1,
			about = $2,
			updated_at = $3
		WHERE id = $4
		RETURNING ` + userColumns
	return r.scanOne(r.db.QueryRowContext(ctx, query, name, about, time.Now(), id))
}

// UpdateAvatar sets the avatar URL on the account and returns the
// post-update record.
func (r *UserRepository) UpdateAvatar(ctx context.Context, id, avatarURL string) (types.User, error) {
	const query = `
		UPDATE users
		SET avatar_url = $1,
			updated_at = $2
		WHERE id = $3
		RETURNING ` + userColumns
	return r.scanOne(r.db.QueryRowContext(ctx, query, avatarURL, time.Now(), id))
}

func (r *UserRepository) scanOne(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.About,
		&user.AvatarURL,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	user.ID = strings.TrimSpace(user.ID)
	return user, nil
}

// newAccountID generates an opaque 24-character hex identifier.
func newAccountID() string {
	var buf [12]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf[:])
}
