package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kalentivan/tg/internal/repository"
	"github.com/kalentivan/tg/internal/utils"
)

// UserHandler exposes user directory endpoints. All of them sit behind the
// JWT middleware.
type UserHandler struct {
	Users *repository.UserRepo
}

func NewUserHandler(users *repository.UserRepo) *UserHandler {
	return &UserHandler{Users: users}
}

// List returns all users.
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]userPart, 0, len(users))
	for _, u := range users {
		out = append(out, publicUser(u))
	}
	return c.JSON(http.StatusOK, out)
}

// Get returns one user by id.
func (h *UserHandler) Get(c echo.Context) error {
	id := c.Param("id")
	if !utils.IsUUID(id) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, publicUser(u))
}

// Update changes a user's username. Users may only edit themselves.
func (h *UserHandler) Update(c echo.Context) error {
	id := c.Param("id")
	if !utils.IsUUID(id) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	if callerID, _ := c.Get("user_id").(string); callerID != id {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	var req struct {
		Username string `json:"username"`
	}
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.UpdateUsername(ctx, id, strings.TrimSpace(req.Username)); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "username already taken"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.NoContent(http.StatusOK)
}

// Delete removes a user account. Users may only delete themselves.
func (h *UserHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if !utils.IsUUID(id) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	if callerID, _ := c.Get("user_id").(string); callerID != id {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
