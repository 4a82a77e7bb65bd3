// Package gateway runs the per-connection websocket protocol: authenticate,
// check chat membership once, then dispatch inbound events until the client
// disconnects.
package gateway

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/kalentivan/tg/internal/model"
	"github.com/kalentivan/tg/internal/repository"
	"github.com/kalentivan/tg/internal/service"
	"github.com/kalentivan/tg/internal/utils"
	"github.com/kalentivan/tg/internal/ws"
)

// Store is the slice of the persistence layer the gateway needs.
type Store interface {
	// ChatForMember returns the chat when it exists and userID is a member;
	// repository.ErrNotFound / repository.ErrForbidden otherwise.
	ChatForMember(ctx context.Context, chatID, userID string) (model.Chat, error)
	// CreateMessage persists a message; repository.ErrConflict on a
	// duplicate client-chosen id.
	CreateMessage(ctx context.Context, m *model.Message) error
	// MessageByID fetches one message; repository.ErrNotFound when absent.
	MessageByID(ctx context.Context, id string) (model.Message, error)
}

// Receipts is the read-receipt engine surface.
type Receipts interface {
	MarkRead(ctx context.Context, chat model.Chat, readerID string, msg model.Message) error
}

// Archiver receives a copy of every delivered message for out-of-band
// processing. May be nil.
type Archiver interface {
	MessageSent(ctx context.Context, m model.Message)
}

// clientConn is the subset of *websocket.Conn the gateway uses; tests
// substitute a scripted fake.
type clientConn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type inboundEvent struct {
	Action    string `json:"action"`
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
}

type errorPayload struct {
	Error     string `json:"error"`
	MessageID string `json:"message_id,omitempty"`
}

const (
	actionSendMessage = "send_message"
	actionMessageRead = "message_read"
)

// Gateway upgrades chat connections and runs their event loops. Each
// connection is served by the goroutine echo hands us, so events from one
// connection are handled strictly in arrival order.
type Gateway struct {
	sessions *service.SessionService
	store    Store
	registry *ws.Registry
	receipts Receipts
	archive  Archiver
	upgrader websocket.Upgrader
}

func New(sessions *service.SessionService, store Store, registry *ws.Registry, receipts Receipts, archive Archiver) *Gateway {
	return &Gateway{
		sessions: sessions,
		store:    store,
		registry: registry,
		receipts: receipts,
		archive:  archive,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Serve handles GET /v1/ws/:chat_id. Authentication and membership failures
// close the socket with 1008 (policy violation) before any event is read.
func (g *Gateway) Serve(c echo.Context) error {
	chatID := c.Param("chat_id")
	token, tokenErr := tokenFromRequest(c)

	conn, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if tokenErr != nil {
		policyClose(conn, "token not found")
		return nil
	}
	claims, err := g.sessions.VerifyAccess(token)
	if err != nil {
		policyClose(conn, "invalid token")
		return nil
	}
	userID := claims.Subject

	ctx := c.Request().Context()
	chat, err := g.store.ChatForMember(ctx, chatID, userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			policyClose(conn, "chat not found")
		case errors.Is(err, repository.ErrForbidden):
			policyClose(conn, "not a chat member")
		default:
			policyClose(conn, "membership check failed")
		}
		return nil
	}

	g.run(ctx, conn, chat, userID)
	return nil
}

// run registers the connection and processes events until the transport
// drops. Disconnect is deferred so the registry entry is removed on every
// exit path, including handler errors.
func (g *Gateway) run(ctx context.Context, conn clientConn, chat model.Chat, userID string) {
	g.registry.Connect(conn, chat.ID, userID)
	defer g.registry.Disconnect(conn, chat.ID, userID)

	for {
		var ev inboundEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		if err := g.dispatch(ctx, conn, chat, userID, ev); err != nil {
			log.Printf("gateway: chat=%s user=%s: %v", chat.ID, userID, err)
			return
		}
	}
}

// dispatch routes one inbound event. Every event must carry the chat id of
// its connection; events declaring a different chat, or none at all, are
// dropped silently (a client state bug, not a protocol error), as are
// unrecognized actions. A non-nil return is a store failure and terminates
// the connection; soft validation failures are reported to the sender and
// return nil.
func (g *Gateway) dispatch(ctx context.Context, conn clientConn, chat model.Chat, userID string, ev inboundEvent) error {
	if ev.ChatID != chat.ID {
		return nil
	}
	switch ev.Action {
	case actionSendMessage:
		return g.handleSend(ctx, conn, chat, userID, ev)
	case actionMessageRead:
		return g.handleRead(ctx, conn, chat, userID, ev)
	}
	return nil
}

func (g *Gateway) handleSend(ctx context.Context, conn clientConn, chat model.Chat, userID string, ev inboundEvent) error {
	if ev.Text == "" || !utils.IsUUID(ev.MessageID) {
		return conn.WriteJSON(errorPayload{Error: "text and message_id fields are required", MessageID: ev.MessageID})
	}
	msg := model.Message{
		ID:        ev.MessageID,
		ChatID:    chat.ID,
		SenderID:  userID,
		Text:      ev.Text,
		Timestamp: time.Now().UTC(),
	}
	if err := g.store.CreateMessage(ctx, &msg); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return conn.WriteJSON(errorPayload{Error: "message already exists", MessageID: ev.MessageID})
		}
		return err
	}
	g.registry.Broadcast(chat.ID, msg)
	if g.archive != nil {
		g.archive.MessageSent(ctx, msg)
	}
	return nil
}

func (g *Gateway) handleRead(ctx context.Context, conn clientConn, chat model.Chat, userID string, ev inboundEvent) error {
	if !utils.IsUUID(ev.MessageID) {
		return conn.WriteJSON(errorPayload{Error: "message_id field is required", MessageID: ev.MessageID})
	}
	msg, err := g.store.MessageByID(ctx, ev.MessageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return conn.WriteJSON(errorPayload{Error: "message not found", MessageID: ev.MessageID})
		}
		return err
	}
	if msg.ChatID != chat.ID {
		return conn.WriteJSON(errorPayload{Error: "message does not belong to this chat", MessageID: ev.MessageID})
	}
	return g.receipts.MarkRead(ctx, chat, userID, msg)
}

// tokenFromRequest extracts the bearer token for a connection upgrade. An
// Authorization header, when present, takes precedence and must use the
// Bearer scheme; otherwise the `token` query parameter is used.
func tokenFromRequest(c echo.Context) (string, error) {
	if auth := c.Request().Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", service.ErrUnauthorized
		}
		return token, nil
	}
	if token := c.QueryParam("token"); token != "" {
		return token, nil
	}
	return "", service.ErrUnauthorized
}

// policyClose sends close code 1008 and is used uniformly for every
// connect-time auth or membership failure.
func policyClose(conn clientConn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
