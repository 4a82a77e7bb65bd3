package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kalentivan/tg/internal/model"
	"github.com/kalentivan/tg/internal/repository"
	"github.com/kalentivan/tg/internal/service"
)

// AuthHandler exposes the session lifecycle over HTTP.
type AuthHandler struct {
	Sessions *service.SessionService
	Users    *repository.UserRepo
	Tokens   *repository.TokenRepo
}

func NewAuthHandler(sessions *service.SessionService, users *repository.UserRepo, tokens *repository.TokenRepo) *AuthHandler {
	return &AuthHandler{Sessions: sessions, Users: users, Tokens: tokens}
}

// ----- DTOs -----

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type userPart struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}
type authResp struct {
	User   userPart          `json:"user"`
	Tokens service.TokenPair `json:"tokens"`
}

// Register creates a user and returns their first token pair.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	user, pair, err := h.Sessions.Register(ctx, req.Username, req.Email, req.Password, req.DeviceID)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	return c.JSON(http.StatusCreated, authResp{
		User:   userPart{ID: user.ID, Username: user.Username, Email: user.Email},
		Tokens: pair,
	})
}

// Login verifies credentials and returns a new pair for the device.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	user, pair, err := h.Sessions.Login(ctx, req.Email, req.Password, req.DeviceID)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	return c.JSON(http.StatusOK, authResp{
		User:   userPart{ID: user.ID, Username: user.Username, Email: user.Email},
		Tokens: pair,
	})
}

// Refresh rotates a token pair. The caller identifies itself with its
// access token (accepted even when just expired) and authorizes the
// rotation with the refresh token in the body. A rejected rotation (wrong
// token kind, token of another user, detected reuse) is a plain 401 with
// no detail about which check failed.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	access := bearerToken(c)
	if access == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
	}
	userID, _, err := h.Sessions.IdentityFromAccess(access)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	pair, err := h.Sessions.Refresh(ctx, userID, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	if pair == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	return c.JSON(http.StatusOK, echo.Map{"tokens": pair})
}

// Logout revokes the tokens of the device the request was made with.
// Other devices of the same user stay logged in. Always 204.
func (h *AuthHandler) Logout(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	deviceID, _ := c.Get("device_id").(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Sessions.Logout(ctx, userID, deviceID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ActiveSessions lists the devices on which the caller is signed in, so a
// client can show where the account is active. A device counts as active
// while it holds at least one unrevoked, unexpired token.
func (h *AuthHandler) ActiveSessions(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ledger, err := h.Tokens.ListByUser(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	type sessionPart struct {
		DeviceID  string    `json:"device_id"`
		ExpiresAt time.Time `json:"expires_at"`
		Current   bool      `json:"current"`
	}
	current, _ := c.Get("device_id").(string)
	now := time.Now().UTC()

	seen := map[string]bool{}
	sessions := []sessionPart{}
	for _, row := range ledger {
		if row.Revoked || !row.ExpiresAt.After(now) || seen[row.DeviceID] {
			continue
		}
		seen[row.DeviceID] = true
		sessions = append(sessions, sessionPart{
			DeviceID:  row.DeviceID,
			ExpiresAt: row.ExpiresAt,
			Current:   row.DeviceID == current,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": sessions})
}

// Me returns the authenticated user's record.
func (h *AuthHandler) Me(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown user"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, publicUser(u))
}

func publicUser(u model.User) userPart {
	return userPart{ID: u.ID, Username: u.Username, Email: u.Email}
}

// bearerToken extracts the raw token from the Authorization header, or ""
// when the header is absent or not using the Bearer scheme.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
