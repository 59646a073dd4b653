package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// User is an account row.
type User struct {
	ID           uuid.UUID
	Email        string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Querier is the data access surface the auth service depends on.
type Querier interface {
	CreateUser(ctx context.Context, email, username, passwordHash string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
}

// Store implements Querier against PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a user store backed by the pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const uniqueViolation = "23505"

// CreateUser inserts a new account. Returns ErrEmailTaken when the email
// is already registered.
func (s *Store) CreateUser(ctx context.Context, email, username, passwordHash string) (User, error) {
	const query = `
		INSERT INTO users (email, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, username, password_hash, role, created_at`

	var u User
	err := s.pool.QueryRow(ctx, query, email, username, passwordHash).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// UserByEmail looks up an account by email. Returns ErrInvalidCredentials
// when no account exists, so lookup failures and password failures are
// indistinguishable to callers.
func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	const query = `
		SELECT id, email, username, password_hash, role, created_at
		FROM users
		WHERE email = $1`

	var u User
	err := s.pool.QueryRow(ctx, query, email).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}
