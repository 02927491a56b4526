package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/focusms/server-go/internal/model"
)

// SessionRepository is the remote session store, scoped per user. The
// underlying database enforces per-user isolation; queries here always carry
// the owner's user id.
type SessionRepository interface {
	Create(ctx context.Context, session *model.FocusSession) error
	// Update applies a partial update. Unlike the local store, updating a
	// missing id surfaces the store's native error (sql.ErrNoRows).
	Update(ctx context.Context, userID, id string, upd model.SessionUpdate) error
	// ListByUser returns sessions most-recent-first. A zero since means no
	// window; limit 0 means no limit.
	ListByUser(ctx context.Context, userID string, since time.Time, limit int) ([]model.FocusSession, error)
	// BulkInsertIgnoreDuplicates inserts sessions with insert-only conflict
	// semantics on (user_id, created_at): colliding rows are skipped, never
	// overwritten. Returns the number of rows actually inserted.
	BulkInsertIgnoreDuplicates(ctx context.Context, userID string, sessions []model.FocusSession) (int64, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

// sessionDB is an interface satisfied by both *sqlx.DB and *sqlx.Tx
type sessionDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sessionRepo struct {
	db sessionDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) Create(ctx context.Context, session *model.FocusSession) error {
	if session.UserID == nil {
		return fmt.Errorf("remote session requires a user id")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO focus_sessions (
			id, user_id, started_at, ended_at, planned_minutes, outcome,
			blocker_text, result, next_step, interruptions_count, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		session.ID, session.UserID, session.StartedAt, session.EndedAt,
		session.PlannedMinutes, session.Outcome, session.BlockerText,
		session.Result, session.NextStep, session.InterruptionsCount,
		session.CreatedAt,
	)
	return err
}

func (r *sessionRepo) Update(ctx context.Context, userID, id string, upd model.SessionUpdate) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE focus_sessions SET
			ended_at = COALESCE($3, ended_at),
			result = COALESCE($4, result),
			next_step = COALESCE($5, next_step),
			interruptions_count = COALESCE($6, interruptions_count)
		WHERE id = $1 AND user_id = $2
	`, id, userID, upd.EndedAt, upd.Result, upd.NextStep, upd.InterruptionsCount)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *sessionRepo) ListByUser(ctx context.Context, userID string, since time.Time, limit int) ([]model.FocusSession, error) {
	query := `
		SELECT * FROM focus_sessions
		WHERE user_id = $1
	`
	args := []interface{}{userID}

	if !since.IsZero() {
		args = append(args, since)
		query += fmt.Sprintf(" AND started_at >= $%d", len(args))
	}

	query += " ORDER BY started_at DESC"

	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	sessions := []model.FocusSession{}
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) BulkInsertIgnoreDuplicates(ctx context.Context, userID string, sessions []model.FocusSession) (int64, error) {
	if len(sessions) == 0 {
		return 0, nil
	}

	// One statement for the whole batch; the conflict target makes retries
	// and double invocations idempotent.
	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO focus_sessions (
			user_id, started_at, ended_at, planned_minutes, outcome,
			blocker_text, result, next_step, interruptions_count, created_at
		) VALUES `)

	args := make([]interface{}, 0, len(sessions)*10)
	for i, s := range sessions {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 10
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10))
		args = append(args,
			userID, s.StartedAt, s.EndedAt, s.PlannedMinutes, s.Outcome,
			s.BlockerText, s.Result, s.NextStep, s.InterruptionsCount, s.CreatedAt,
		)
	}

	sb.WriteString(" ON CONFLICT (user_id, created_at) DO NOTHING")

	result, err := r.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *sessionRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM focus_sessions WHERE user_id = $1
	`, userID)
	return count, err
}
