package service

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/focusms/server-go/internal/database"
	apperrors "github.com/focusms/server-go/internal/errors"
	"github.com/focusms/server-go/internal/model"
	"github.com/focusms/server-go/internal/repository"
)

// MigrationResult reports what a migration attempt did. Migrated counts the
// records that passed validation; Inserted the rows the remote store actually
// took (lower on retry, since duplicates are skipped).
type MigrationResult struct {
	Migrated int   `json:"migrated"`
	Inserted int64 `json:"-"`
	Invalid  int   `json:"-"`
}

// NothingToMigrate reports that no valid record was found and no write was
// performed.
func (r *MigrationResult) NothingToMigrate() bool {
	return r.Migrated == 0
}

// MigrationService copies anonymous local history into the remote store when
// a user authenticates. The write is insert-only on (user_id, created_at), so
// retries and double invocations never duplicate rows. Clearing the local
// store is the caller's job, and only after this reports success.
type MigrationService struct {
	db       txRunner
	sessions repository.SessionRepository
}

// txRunner is the transactional surface of database.DB the service needs.
type txRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

func NewMigrationService(db *database.DB, sessions repository.SessionRepository) *MigrationService {
	s := &MigrationService{sessions: sessions}
	if db != nil {
		s.db = db
	}
	return s
}

// Migrate validates each candidate payload against the session schema and
// bulk-upserts the survivors for the given user. Invalid records are dropped
// silently; they only show in the overall count.
func (s *MigrationService) Migrate(ctx context.Context, userID string, payloads []json.RawMessage) (*MigrationResult, error) {
	if s.db == nil || s.sessions == nil {
		return nil, apperrors.StoreUnconfigured()
	}

	valid := make([]model.FocusSession, 0, len(payloads))
	invalid := 0

	for _, raw := range payloads {
		var session model.FocusSession
		if err := json.Unmarshal(raw, &session); err != nil {
			invalid++
			continue
		}
		if err := session.Validate(); err != nil {
			invalid++
			continue
		}
		valid = append(valid, session)
	}

	result := &MigrationResult{Migrated: len(valid), Invalid: invalid}

	if len(valid) == 0 {
		log.Info().Str("userId", userID).Int("candidates", len(payloads)).
			Msg("no valid sessions to migrate")
		return result, nil
	}

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		inserted, err := s.sessions.WithTx(tx).BulkInsertIgnoreDuplicates(ctx, userID, valid)
		if err != nil {
			return err
		}
		result.Inserted = inserted
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("migration failed")
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("userId", userID).
		Int("valid", len(valid)).
		Int("invalid", invalid).
		Int64("inserted", result.Inserted).
		Msg("local sessions migrated")

	return result, nil
}
