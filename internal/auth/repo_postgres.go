package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

// PostgresRepo stores users in the users table created by db.EnsureSchema.
type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(pool *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{pool: pool}
}

func (r *PostgresRepo) Create(ctx context.Context, user User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)`,
		user.ID, user.Username, strings.ToLower(user.Email), user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			if strings.Contains(pgErr.ConstraintName, "email") {
				return ErrEmailExists
			}
			return ErrUserExists
		}
		return fmt.Errorf("auth: create user: %w", err)
	}
	return nil
}

func (r *PostgresRepo) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	var user User

	err := r.pool.QueryRow(ctx,
		`SELECT id, username, COALESCE(email, ''), password_hash, created_at, updated_at
		 FROM users
		 WHERE lower(username) = lower($1) OR email = lower($1)`,
		identifier,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}

	return &user, nil
}

var _ UserRepo = (*PostgresRepo)(nil)
