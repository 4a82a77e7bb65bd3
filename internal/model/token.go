package model

import "time"

// IssuedToken mirrors the `tokens` table: one row per signed JWT handed to
// a client. The JTI claim is the primary key and the unit of revocation.
// Rows are never deleted; logout and refresh rotation flip Revoked instead,
// which is what makes refresh-token reuse detectable later.
//
// Fields:
//  JTI       – tokens.jti, unique token id (uuid).
//  UserID    – tokens.user_id, owner of the token.
//  DeviceID  – tokens.device_id, client instance the token was issued to.
//  Revoked   – tokens.revoked, true once the token must no longer be accepted.
//  ExpiresAt – tokens.expires_at, advisory expiry mirrored from the exp claim.
type IssuedToken struct {
	JTI       string
	UserID    string
	DeviceID  string
	Revoked   bool
	ExpiresAt time.Time
}
