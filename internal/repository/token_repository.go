package repository

import (
	"context"
	"database/sql"

	"github.com/kalentivan/tg/internal/model"
)

// TokenRepo is the ledger of issued tokens: one row per signed JWT, keyed
// by jti. Rows are flipped to revoked rather than deleted so that reuse of
// a rotated refresh token can be detected later.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreTx inserts ledger rows for freshly signed tokens within the caller's
// transaction, so issuance commits atomically with whatever produced it
// (user registration, refresh rotation).
func (r *TokenRepo) StoreTx(ctx context.Context, tx *sql.Tx, rows ...model.IssuedToken) error {
	for _, row := range rows {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO tokens (jti, user_id, device_id, revoked, expires_at) VALUES (?,?,?,?,?)",
			row.JTI, row.UserID, row.DeviceID, row.Revoked, row.ExpiresAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// IsRevoked reports whether the token with the given jti has been revoked.
// A jti with no ledger row is treated as revoked: the ledger records every
// token this process ever signed, so an unknown id is not ours.
func (r *TokenRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := r.DB.QueryRowContext(ctx,
		"SELECT revoked FROM tokens WHERE jti=? LIMIT 1", jti).Scan(&revoked)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return revoked, nil
}

// RevokeDeviceTx marks all active tokens of one (user, device) pair as
// revoked and returns how many rows changed. Zero rows is not an error:
// logout is idempotent.
func (r *TokenRepo) RevokeDeviceTx(ctx context.Context, tx *sql.Tx, userID, deviceID string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE tokens SET revoked=TRUE WHERE user_id=? AND device_id=? AND revoked=FALSE",
		userID, deviceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RevokeAllForUserTx revokes every active token the user holds, across all
// devices. This is the containment response to refresh-token reuse.
func (r *TokenRepo) RevokeAllForUserTx(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE tokens SET revoked=TRUE WHERE user_id=? AND revoked=FALSE", userID)
	return err
}

// ListByUser returns the full ledger history for a user, newest first.
func (r *TokenRepo) ListByUser(ctx context.Context, userID string) ([]model.IssuedToken, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT jti, user_id, device_id, revoked, expires_at FROM tokens WHERE user_id=? ORDER BY expires_at DESC",
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.IssuedToken
	for rows.Next() {
		var t model.IssuedToken
		if err := rows.Scan(&t.JTI, &t.UserID, &t.DeviceID, &t.Revoked, &t.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
