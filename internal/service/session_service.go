// Package service contains the session lifecycle logic: issuing, rotating
// and revoking access/refresh token pairs bound to a (user, device) pair.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalentivan/tg/internal/auth"
	"github.com/kalentivan/tg/internal/model"
	"github.com/kalentivan/tg/internal/repository"
	"github.com/kalentivan/tg/internal/utils"
)

// ErrUnauthorized covers every credential failure: unknown email, password
// mismatch, bad or expired token. Login failures deliberately share this
// one value so responses cannot be used to enumerate registered emails.
var ErrUnauthorized = errors.New("unauthorized")

// TokenPair is one issued access/refresh pair. DeviceID echoes the device
// claim embedded in both tokens so clients can store it for later logout.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires"`
	RefreshExp   time.Time `json:"refresh_expires"`
	DeviceID     string    `json:"device_id"`
}

// SessionService orchestrates registration, login, logout and refresh over
// the token codec and the issued-token ledger. Every persistence-affecting
// operation runs in a single transaction.
type SessionService struct {
	store      repository.SessionStore
	codec      *auth.Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
}

func NewSessionService(store repository.SessionStore, codec *auth.Codec, accessTTL, refreshTTL time.Duration, bcryptCost int) *SessionService {
	return &SessionService{
		store:      store,
		codec:      codec,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		bcryptCost: bcryptCost,
	}
}

// Register creates a user and issues their first token pair. The user row
// and both ledger rows commit atomically; a duplicate email rolls the whole
// call back and surfaces as repository.ErrConflict.
func (s *SessionService) Register(ctx context.Context, username, email, password, deviceID string) (model.User, TokenPair, error) {
	u := model.User{
		Username: strings.TrimSpace(username),
		Email:    strings.ToLower(strings.TrimSpace(email)),
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	defer tx.Rollback()

	if err := tx.CreateUser(ctx, &u, password, s.bcryptCost); err != nil {
		return model.User{}, TokenPair{}, err
	}
	pair, rows, err := s.IssueTokens(u.ID, deviceID)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	if err := tx.StoreTokens(ctx, rows...); err != nil {
		return model.User{}, TokenPair{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.User{}, TokenPair{}, err
	}
	return u, pair, nil
}

// Login verifies credentials and issues a new pair bound to the supplied
// device id, or to a freshly generated one when the client sent none.
func (s *SessionService) Login(ctx context.Context, email, password, deviceID string) (model.User, TokenPair, error) {
	u, err := s.store.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, TokenPair{}, ErrUnauthorized
		}
		return model.User{}, TokenPair{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return model.User{}, TokenPair{}, ErrUnauthorized
	}

	pair, rows, err := s.IssueTokens(u.ID, deviceID)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	defer tx.Rollback()
	if err := tx.StoreTokens(ctx, rows...); err != nil {
		return model.User{}, TokenPair{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.User{}, TokenPair{}, err
	}
	return u, pair, nil
}

// Logout revokes every active token of one (user, device) pair. Sessions on
// the user's other devices are untouched. Calling it again, or for a device
// with no tokens, is a no-op.
func (s *SessionService) Logout(ctx context.Context, userID, deviceID string) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.RevokeDeviceTokens(ctx, userID, deviceID); err != nil {
		return err
	}
	return tx.Commit()
}

// Refresh rotates a token pair. The presented token must be a valid,
// unexpired refresh token belonging to userID. A non-refresh token returns
// (nil, nil): a caller contract violation, not a security event. A refresh
// token whose jti is already revoked is a reuse signal: every token the
// user holds is revoked, on every device, and nil is returned. Otherwise
// the device's tokens are revoked and a new pair is issued for the same
// device in one transaction.
func (s *SessionService) Refresh(ctx context.Context, userID, refreshToken string) (*TokenPair, error) {
	claims, err := s.codec.Verify(refreshToken)
	if err != nil || claims.Subject != userID {
		return nil, ErrUnauthorized
	}
	if claims.Kind != auth.KindRefresh {
		return nil, nil
	}

	revoked, err := s.store.TokenRevoked(ctx, claims.JTI)
	if err != nil {
		return nil, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if revoked {
		if err := tx.RevokeAllUserTokens(ctx, userID); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if _, err := tx.RevokeDeviceTokens(ctx, userID, claims.DeviceID); err != nil {
		return nil, err
	}
	pair, rows, err := s.IssueTokens(userID, claims.DeviceID)
	if err != nil {
		return nil, err
	}
	if err := tx.StoreTokens(ctx, rows...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &pair, nil
}

// IssueTokens signs an access/refresh pair with the device id embedded as a
// claim and builds the matching ledger rows. The rows are not persisted
// here; the caller stores them inside its own transaction. When deviceID is
// empty a new one is generated for this call.
func (s *SessionService) IssueTokens(userID, deviceID string) (TokenPair, []model.IssuedToken, error) {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	extra := map[string]any{"device_id": deviceID}

	accessTok, err := s.codec.Sign(auth.KindAccess, userID, extra, s.accessTTL)
	if err != nil {
		return TokenPair{}, nil, err
	}
	refreshTok, err := s.codec.Sign(auth.KindRefresh, userID, extra, s.refreshTTL)
	if err != nil {
		return TokenPair{}, nil, err
	}

	// Read back the claims of the tokens we just signed to record their jti
	// and expiry. These tokens never left the process, so skipping signature
	// verification is safe here and nowhere else.
	accessClaims, err := s.codec.DecodeUnsafe(accessTok)
	if err != nil {
		return TokenPair{}, nil, err
	}
	refreshClaims, err := s.codec.DecodeUnsafe(refreshTok)
	if err != nil {
		return TokenPair{}, nil, err
	}

	rows := []model.IssuedToken{
		{JTI: accessClaims.JTI, UserID: userID, DeviceID: deviceID, ExpiresAt: accessClaims.ExpiresAt},
		{JTI: refreshClaims.JTI, UserID: userID, DeviceID: deviceID, ExpiresAt: refreshClaims.ExpiresAt},
	}
	pair := TokenPair{
		AccessToken:  accessTok,
		RefreshToken: refreshTok,
		AccessExp:    accessClaims.ExpiresAt,
		RefreshExp:   refreshClaims.ExpiresAt,
		DeviceID:     deviceID,
	}
	return pair, rows, nil
}

// VerifyAccess validates an access token presented by a client, with expiry
// enforced. Used by the websocket gateway at connect time.
func (s *SessionService) VerifyAccess(token string) (auth.Claims, error) {
	claims, err := s.codec.Verify(token)
	if err != nil || claims.Kind != auth.KindAccess {
		return auth.Claims{}, ErrUnauthorized
	}
	return claims, nil
}

// IdentityFromAccess recovers (userID, deviceID) from an access token while
// ignoring expiry. The refresh endpoint uses it so a client whose access
// token just lapsed can still identify itself; the refresh token presented
// alongside is what actually authorizes the rotation.
func (s *SessionService) IdentityFromAccess(token string) (string, string, error) {
	claims, err := s.codec.VerifyIgnoreExpiry(token)
	if err != nil || claims.Kind != auth.KindAccess {
		return "", "", ErrUnauthorized
	}
	return claims.Subject, claims.DeviceID, nil
}
