package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kalentivan/tg/internal/auth"
	"github.com/kalentivan/tg/internal/model"
	"github.com/kalentivan/tg/internal/repository"
	"github.com/kalentivan/tg/internal/utils"
)

// fakeStore is an in-memory SessionStore. Writes buffer in the transaction
// and only land on Commit, so the tests can observe rollback behavior.
type fakeStore struct {
	users  map[string]model.User        // keyed by email
	tokens map[string]model.IssuedToken // keyed by jti
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  map[string]model.User{},
		tokens: map[string]model.IssuedToken{},
	}
}

func (s *fakeStore) Begin(context.Context) (repository.SessionTx, error) {
	return &fakeTx{store: s}, nil
}

func (s *fakeStore) UserByEmail(_ context.Context, email string) (model.User, error) {
	u, ok := s.users[email]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) TokenRevoked(_ context.Context, jti string) (bool, error) {
	row, ok := s.tokens[jti]
	if !ok {
		return true, nil
	}
	return row.Revoked, nil
}

func (s *fakeStore) activeTokens(userID string) []model.IssuedToken {
	var out []model.IssuedToken
	for _, row := range s.tokens {
		if row.UserID == userID && !row.Revoked {
			out = append(out, row)
		}
	}
	return out
}

type fakeTx struct {
	store     *fakeStore
	ops       []func()
	committed bool
}

func (t *fakeTx) CreateUser(_ context.Context, u *model.User, password string, cost int) error {
	if _, exists := t.store.users[u.Email]; exists {
		return repository.ErrConflict
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	copied := *u
	t.ops = append(t.ops, func() { t.store.users[copied.Email] = copied })
	return nil
}

func (t *fakeTx) StoreTokens(_ context.Context, rows ...model.IssuedToken) error {
	t.ops = append(t.ops, func() {
		for _, row := range rows {
			t.store.tokens[row.JTI] = row
		}
	})
	return nil
}

func (t *fakeTx) RevokeDeviceTokens(_ context.Context, userID, deviceID string) (int64, error) {
	t.ops = append(t.ops, func() {
		for jti, row := range t.store.tokens {
			if row.UserID == userID && row.DeviceID == deviceID {
				row.Revoked = true
				t.store.tokens[jti] = row
			}
		}
	})
	return 0, nil
}

func (t *fakeTx) RevokeAllUserTokens(_ context.Context, userID string) error {
	t.ops = append(t.ops, func() {
		for jti, row := range t.store.tokens {
			if row.UserID == userID {
				row.Revoked = true
				t.store.tokens[jti] = row
			}
		}
	})
	return nil
}

func (t *fakeTx) Commit() error {
	for _, op := range t.ops {
		op()
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback() error { return nil }

func newTestService(store *fakeStore) *SessionService {
	// Low bcrypt cost keeps the suite fast.
	return NewSessionService(store, auth.NewCodec("test-secret"), time.Minute, time.Hour, 4)
}

func TestRegisterIssuesPairAndLedgerRows(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	u, pair, err := svc.Register(context.Background(), "alice", "Alice@Example.com", "s3cret", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID == "" {
		t.Error("user id not assigned")
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want lowercased", u.Email)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("token pair incomplete")
	}
	if pair.DeviceID == "" {
		t.Error("device id not generated")
	}
	if got := len(store.activeTokens(u.ID)); got != 2 {
		t.Errorf("ledger has %d active rows, want 2", got)
	}
	for _, row := range store.activeTokens(u.ID) {
		if row.DeviceID != pair.DeviceID {
			t.Errorf("ledger row device = %q, want %q", row.DeviceID, pair.DeviceID)
		}
	}
}

func TestRegisterDuplicateEmailWritesNothing(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	u, _, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	before := len(store.tokens)

	if _, _, err := svc.Register(ctx, "other", "alice@example.com", "pw", ""); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if len(store.tokens) != before {
		t.Error("failed registration leaked ledger rows")
	}
	if store.users[u.Email].Username != "alice" {
		t.Error("existing user overwritten")
	}
}

func TestLoginWrongPasswordAndUnknownEmailLookAlike(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, _, errWrongPw := svc.Login(ctx, "alice@example.com", "nope", "")
	_, _, errUnknown := svc.Login(ctx, "ghost@example.com", "nope", "")
	if !errors.Is(errWrongPw, ErrUnauthorized) || !errors.Is(errUnknown, ErrUnauthorized) {
		t.Fatalf("errs = %v / %v, want ErrUnauthorized for both", errWrongPw, errUnknown)
	}
}

func TestLoginKeepsSuppliedDeviceID(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, pair, err := svc.Login(ctx, "alice@example.com", "s3cret", "dev-phone")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.DeviceID != "dev-phone" {
		t.Errorf("device id = %q, want dev-phone", pair.DeviceID)
	}
	cl, err := auth.NewCodec("test-secret").Verify(pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if cl.DeviceID != "dev-phone" {
		t.Errorf("token device claim = %q, want dev-phone", cl.DeviceID)
	}
}

func TestLogoutRevokesOnlyThatDevice(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	u, _, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret", "dev-phone")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice@example.com", "s3cret", "dev-laptop"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.Logout(ctx, u.ID, "dev-phone"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	for _, row := range store.activeTokens(u.ID) {
		if row.DeviceID == "dev-phone" {
			t.Errorf("dev-phone token %s still active", row.JTI)
		}
	}
	if got := len(store.activeTokens(u.ID)); got != 2 {
		t.Errorf("laptop session has %d active rows, want 2", got)
	}

	// Logging out twice is fine.
	if err := svc.Logout(ctx, u.ID, "dev-phone"); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
}

func TestRefreshRotatesSameDevice(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret", "dev-phone")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	fresh, err := svc.Refresh(ctx, u.ID, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if fresh == nil {
		t.Fatal("Refresh returned nil pair")
	}
	if fresh.DeviceID != "dev-phone" {
		t.Errorf("rotated device = %q, want dev-phone", fresh.DeviceID)
	}
	if fresh.RefreshToken == pair.RefreshToken {
		t.Error("refresh token not rotated")
	}
	// The old pair is revoked, the new pair is the only active one.
	active := store.activeTokens(u.ID)
	if len(active) != 2 {
		t.Fatalf("got %d active rows after rotation, want 2", len(active))
	}
	oldClaims, _ := auth.NewCodec("test-secret").Verify(pair.RefreshToken)
	for _, row := range active {
		if row.JTI == oldClaims.JTI {
			t.Error("old refresh token still active")
		}
	}
}

func TestRefreshReuseRevokesEverything(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret", "dev-phone")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice@example.com", "s3cret", "dev-laptop"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := svc.Refresh(ctx, u.ID, pair.RefreshToken); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	// Presenting the same refresh token again is reuse of a revoked jti.
	got, err := svc.Refresh(ctx, u.ID, pair.RefreshToken)
	if err != nil {
		t.Fatalf("reused Refresh: %v", err)
	}
	if got != nil {
		t.Fatal("reused refresh token yielded a new pair")
	}
	if n := len(store.activeTokens(u.ID)); n != 0 {
		t.Errorf("%d tokens still active after reuse, want 0 across all devices", n)
	}
}

func TestRefreshRejectsForeignAndInvalidTokens(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Refresh(ctx, "someone-else", pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("foreign subject err = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Refresh(ctx, u.ID, "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("garbage token err = %v, want ErrUnauthorized", err)
	}
}

func TestRefreshWithAccessTokenYieldsNothing(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, err := svc.Refresh(ctx, u.ID, pair.AccessToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got != nil {
		t.Fatal("access token accepted as refresh token")
	}
	// Nothing happened to the session.
	if n := len(store.activeTokens(u.ID)); n != 2 {
		t.Errorf("%d active rows, want 2 untouched", n)
	}
}

func TestIssueTokensGeneratesFreshDevicePerCall(t *testing.T) {
	svc := newTestService(newFakeStore())

	a, _, err := svc.IssueTokens("user-1", "")
	if err != nil {
		t.Fatalf("IssueTokens: %v", err)
	}
	b, _, err := svc.IssueTokens("user-1", "")
	if err != nil {
		t.Fatalf("IssueTokens: %v", err)
	}
	if a.DeviceID == b.DeviceID {
		t.Error("two anonymous issues share a device id")
	}
}

func TestVerifyAccessRejectsRefreshTokens(t *testing.T) {
	svc := newTestService(newFakeStore())

	pair, _, err := svc.IssueTokens("user-1", "dev-1")
	if err != nil {
		t.Fatalf("IssueTokens: %v", err)
	}
	if _, err := svc.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("refresh token err = %v, want ErrUnauthorized", err)
	}
	cl, err := svc.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if cl.Subject != "user-1" || cl.DeviceID != "dev-1" {
		t.Errorf("claims = %+v", cl)
	}
}

func TestIdentityFromExpiredAccessToken(t *testing.T) {
	svc := newTestService(newFakeStore())

	// Hand-sign a token whose minute of validity lies an hour in the past.
	past := time.Now().UTC().Add(-time.Hour).Unix()
	tok, err := auth.NewCodec("test-secret").Sign(auth.KindAccess, "user-1",
		map[string]any{"iat": past, "nbf": past, "device_id": "dev-1"}, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	userID, deviceID, err := svc.IdentityFromAccess(tok)
	if err != nil {
		t.Fatalf("IdentityFromAccess: %v", err)
	}
	if userID != "user-1" || deviceID != "dev-1" {
		t.Errorf("identity = %q/%q", userID, deviceID)
	}

	// An expired access token still cannot pass full verification.
	if _, err := svc.VerifyAccess(tok); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("VerifyAccess err = %v, want ErrUnauthorized", err)
	}
}
