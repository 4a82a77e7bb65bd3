package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kalentivan/tg/internal/model"
	"github.com/kalentivan/tg/internal/repository"
	"github.com/kalentivan/tg/internal/utils"
)

// ChatHandler exposes chat management and history. Message delivery itself
// happens over the websocket gateway; these endpoints only shape the data
// the gateway operates on.
type ChatHandler struct {
	DB    *sql.DB
	Chats *repository.ChatRepo
	Users *repository.UserRepo
	Msgs  *repository.MessageRepo
}

func NewChatHandler(db *sql.DB, chats *repository.ChatRepo, users *repository.UserRepo, msgs *repository.MessageRepo) *ChatHandler {
	return &ChatHandler{DB: db, Chats: chats, Users: users, Msgs: msgs}
}

type chatCreateReq struct {
	Name      string   `json:"name"`
	IsGroup   bool     `json:"is_group"`
	MemberIDs []string `json:"member_ids"`
}

type memberAddReq struct {
	UserID string `json:"user_id"`
}

// Create makes a personal or group chat. A personal chat takes exactly one
// other member; a group chat needs a name. The creator is always added as
// an admin member. Chat and membership rows commit in one transaction.
func (h *ChatHandler) Create(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)

	var req chatCreateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if !req.IsGroup && len(req.MemberIDs) != 1 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "personal chat needs exactly one other member"})
	}
	if req.IsGroup && strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "group chat needs a name"})
	}
	for _, id := range req.MemberIDs {
		if !utils.IsUUID(id) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid member id"})
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	n, err := h.Users.CountByIDs(ctx, req.MemberIDs)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if n != len(req.MemberIDs) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "one or more users not found"})
	}

	chat := model.Chat{Name: strings.TrimSpace(req.Name), IsGroup: req.IsGroup}
	members := []model.ChatMember{{UserID: userID, IsAdmin: true}}
	for _, id := range req.MemberIDs {
		if id == userID {
			continue // creator is already a member
		}
		members = append(members, model.ChatMember{UserID: id})
	}

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create chat failed"})
	}
	defer tx.Rollback()
	if err := h.Chats.CreateTx(ctx, tx, &chat, members); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create chat failed"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create chat failed"})
	}
	return c.JSON(http.StatusCreated, chat)
}

// List returns the chats the caller belongs to.
func (h *ChatHandler) List(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	chats, err := h.Chats.ListForUser(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if chats == nil {
		chats = []model.Chat{}
	}
	return c.JSON(http.StatusOK, chats)
}

// Delete removes a chat with its messages and membership rows. Members may
// delete personal chats; group chats require chat admin.
func (h *ChatHandler) Delete(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	chatID := c.Param("id")
	if !utils.IsUUID(chatID) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid chat id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	chat, err := h.Chats.GetForMember(ctx, chatID, userID)
	if err != nil {
		return chatAccessError(c, err)
	}
	if chat.IsGroup {
		admin, err := h.Chats.IsAdmin(ctx, chatID, userID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
		}
		if !admin {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "only a chat admin can delete a group chat"})
		}
	}
	if err := h.Chats.Delete(ctx, chatID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// AddMember adds a user to a group chat. Any member may invite.
func (h *ChatHandler) AddMember(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	chatID := c.Param("id")
	if !utils.IsUUID(chatID) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid chat id"})
	}

	var req memberAddReq
	if err := c.Bind(&req); err != nil || !utils.IsUUID(req.UserID) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	chat, err := h.Chats.GetForMember(ctx, chatID, userID)
	if err != nil {
		return chatAccessError(c, err)
	}
	if !chat.IsGroup {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "members can only be added to group chats"})
	}
	if _, err := h.Users.GetByID(ctx, req.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if err := h.Chats.AddMember(ctx, chatID, req.UserID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "user is already a member"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "add member failed"})
	}
	return c.JSON(http.StatusOK, chat)
}

// ListMembers returns the membership rows of a chat. Member only.
func (h *ChatHandler) ListMembers(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	chatID := c.Param("id")
	if !utils.IsUUID(chatID) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid chat id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Chats.GetForMember(ctx, chatID, userID); err != nil {
		return chatAccessError(c, err)
	}
	members, err := h.Chats.Members(ctx, chatID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if members == nil {
		members = []model.ChatMember{}
	}
	return c.JSON(http.StatusOK, members)
}

// RemoveMember removes a user from a group chat. Only chat admins may do
// this; members can always remove themselves via their own id.
func (h *ChatHandler) RemoveMember(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	chatID := c.Param("id")
	targetID := c.Param("user_id")
	if !utils.IsUUID(chatID) || !utils.IsUUID(targetID) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	chat, err := h.Chats.GetForMember(ctx, chatID, userID)
	if err != nil {
		return chatAccessError(c, err)
	}
	if !chat.IsGroup {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "members can only be removed from group chats"})
	}
	if targetID != userID {
		admin, err := h.Chats.IsAdmin(ctx, chatID, userID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
		}
		if !admin {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "only a chat admin can remove members"})
		}
	}
	if err := h.Chats.RemoveMember(ctx, chatID, targetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "membership not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "remove member failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// History returns a page of a chat's messages in ascending timestamp order
// together with the total count. Member only.
func (h *ChatHandler) History(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	chatID := c.Param("id")
	if !utils.IsUUID(chatID) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid chat id"})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Chats.GetForMember(ctx, chatID, userID); err != nil {
		return chatAccessError(c, err)
	}
	msgs, total, err := h.Msgs.History(ctx, chatID, limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": msgs, "total": total})
}

// chatAccessError maps GetForMember failures onto responses.
func chatAccessError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "chat not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not a chat member"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
}
