package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prperemyshlev/user-auth-service/pkg/database"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// postgresStore implements Store on top of database/sql and lib/pq.
type postgresStore struct {
	db   *sql.DB
	q    querier
	inTx bool
}

var _ Store = &postgresStore{}

// NewPostgresStore creates a Store backed by PostgreSQL.
func NewPostgresStore(db *database.Postgres) Store {
	return newPostgresStore(db.DB)
}

func newPostgresStore(db *sql.DB) *postgresStore {
	return &postgresStore{db: db, q: db}
}

func (s *postgresStore) Users() UserRepository {
	return &userRepository{q: s.q, forUpdate: s.inTx}
}

func (s *postgresStore) RefreshTokens() RefreshTokenRepository {
	return &refreshTokenRepository{q: s.q, forUpdate: s.inTx}
}

func (s *postgresStore) PasswordResets() PasswordResetRepository {
	return &passwordResetRepository{q: s.q, forUpdate: s.inTx}
}

// WithinTx runs fn inside a READ COMMITTED transaction. Nested calls reuse
// the outer transaction.
func (s *postgresStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&postgresStore{db: s.db, q: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("failed to rollback transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// lockClause returns the row-lock suffix for *ForUpdate reads. Outside a
// transaction a lock would be released immediately, so it is omitted.
func lockClause(inTx bool) string {
	if inTx {
		return " FOR UPDATE"
	}
	return ""
}
