package repository

import (
	"context"
	"database/sql"

	"github.com/kalentivan/tg/internal/model"
)

// SessionStore is the unit-of-work surface the session service operates
// through. Defining it as an interface keeps the service testable with an
// in-memory fake while the production implementation (AuthStore) runs every
// write of one service call inside a single MySQL transaction.
type SessionStore interface {
	Begin(ctx context.Context) (SessionTx, error)
	UserByEmail(ctx context.Context, email string) (model.User, error)
	TokenRevoked(ctx context.Context, jti string) (bool, error)
}

// SessionTx groups the writes of one session operation. Commit makes them
// visible atomically; Rollback after Commit is a no-op, so callers can
// defer it unconditionally.
type SessionTx interface {
	CreateUser(ctx context.Context, u *model.User, password string, cost int) error
	StoreTokens(ctx context.Context, rows ...model.IssuedToken) error
	RevokeDeviceTokens(ctx context.Context, userID, deviceID string) (int64, error)
	RevokeAllUserTokens(ctx context.Context, userID string) error
	Commit() error
	Rollback() error
}

// AuthStore implements SessionStore over the user and token repositories.
type AuthStore struct {
	db     *sql.DB
	users  *UserRepo
	tokens *TokenRepo
}

func NewAuthStore(db *sql.DB, users *UserRepo, tokens *TokenRepo) *AuthStore {
	return &AuthStore{db: db, users: users, tokens: tokens}
}

func (s *AuthStore) Begin(ctx context.Context) (SessionTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &authTx{tx: tx, store: s}, nil
}

func (s *AuthStore) UserByEmail(ctx context.Context, email string) (model.User, error) {
	return s.users.GetByEmail(ctx, email)
}

func (s *AuthStore) TokenRevoked(ctx context.Context, jti string) (bool, error) {
	return s.tokens.IsRevoked(ctx, jti)
}

type authTx struct {
	tx    *sql.Tx
	store *AuthStore
}

func (t *authTx) CreateUser(ctx context.Context, u *model.User, password string, cost int) error {
	return t.store.users.CreateTx(ctx, t.tx, u, password, cost)
}

func (t *authTx) StoreTokens(ctx context.Context, rows ...model.IssuedToken) error {
	return t.store.tokens.StoreTx(ctx, t.tx, rows...)
}

func (t *authTx) RevokeDeviceTokens(ctx context.Context, userID, deviceID string) (int64, error) {
	return t.store.tokens.RevokeDeviceTx(ctx, t.tx, userID, deviceID)
}

func (t *authTx) RevokeAllUserTokens(ctx context.Context, userID string) error {
	return t.store.tokens.RevokeAllForUserTx(ctx, t.tx, userID)
}

func (t *authTx) Commit() error   { return t.tx.Commit() }
func (t *authTx) Rollback() error { return t.tx.Rollback() }
