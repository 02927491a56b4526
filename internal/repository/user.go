package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/focusms/server-go/internal/model"
)

// UserRepository resolves API tokens to user identities. Token issuance and
// account management belong to the external auth system; this is only the
// lookup surface the server needs.
type UserRepository interface {
	// FindByTokenHash returns the user owning an unexpired token, or nil.
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error)
	DeleteExpiredTokens(ctx context.Context) (int64, error)
}

type userDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type userRepo struct {
	db userDB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT u.id, u.email, u.created_at
		FROM users u
		JOIN user_tokens t ON t.user_id = u.id
		WHERE t.token_hash = $1
		AND t.expires_at > NOW()
	`, tokenHash)
	return rowOrNil(&user, err)
}

// rowOrNil maps sql.ErrNoRows to a nil row without error. Token lookups treat
// a missing row as "unauthenticated", not as a failure.
func rowOrNil[T any](row *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *userRepo) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM user_tokens WHERE expires_at <= NOW()
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
