// Package memory provides an in-process repository.Store used by tests and
// by STORE=memory local runs.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/user-auth-service/internal/domain"
	"github.com/prperemyshlev/user-auth-service/internal/repository"
)

type state struct {
	users         map[string]*domain.User
	emails        map[string]string
	refresh       map[string]*domain.RefreshToken
	refreshByHash map[string]string
	resets        map[string]*domain.PasswordResetToken
	resetsByHash  map[string]string
}

func newState() *state {
	return &state{
		users:         make(map[string]*domain.User),
		emails:        make(map[string]string),
		refresh:       make(map[string]*domain.RefreshToken),
		refreshByHash: make(map[string]string),
		resets:        make(map[string]*domain.PasswordResetToken),
		resetsByHash:  make(map[string]string),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v.Clone()
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	for k, v := range s.refresh {
		t := *v
		c.refresh[k] = &t
	}
	for k, v := range s.refreshByHash {
		c.refreshByHash[k] = v
	}
	for k, v := range s.resets {
		c.resets[k] = cloneReset(v)
	}
	for k, v := range s.resetsByHash {
		c.resetsByHash[k] = v
	}
	return c
}

// Store is a mutex-guarded repository.Store. A transaction holds the mutex
// for its whole duration and works on a copy of the state that replaces the
// committed state only when the callback succeeds.
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{state: newState()}
}

func (s *Store) Users() repository.UserRepository {
	return &userRepository{scope{store: s}}
}

func (s *Store) RefreshTokens() repository.RefreshTokenRepository {
	return &refreshTokenRepository{scope{store: s}}
}

func (s *Store) PasswordResets() repository.PasswordResetRepository {
	return &passwordResetRepository{scope{store: s}}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(&txStore{scope{store: s, tx: work}}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// txStore exposes repositories bound to an open transaction.
type txStore struct {
	sc scope
}

func (t *txStore) Users() repository.UserRepository {
	return &userRepository{t.sc}
}

func (t *txStore) RefreshTokens() repository.RefreshTokenRepository {
	return &refreshTokenRepository{t.sc}
}

func (t *txStore) PasswordResets() repository.PasswordResetRepository {
	return &passwordResetRepository{t.sc}
}

func (t *txStore) WithinTx(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(t)
}

func (t *txStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// scope runs a repository call either inside an open transaction, whose
// caller already holds the lock, or against the committed state.
type scope struct {
	store *Store
	tx    *state
}

func (sc scope) run(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sc.tx != nil {
		return fn(sc.tx)
	}
	sc.store.mu.Lock()
	defer sc.store.mu.Unlock()
	return fn(sc.store.state)
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newID() string {
	return uuid.New().String()
}

func stamp(t *time.Time) {
	if t.IsZero() {
		*t = time.Now().UTC()
	}
}

func cloneReset(t *domain.PasswordResetToken) *domain.PasswordResetToken {
	c := *t
	if t.UsedAt != nil {
		u := *t.UsedAt
		c.UsedAt = &u
	}
	return &c
}
