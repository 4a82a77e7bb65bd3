package ws

import (
	"context"

	"github.com/kalentivan/tg/internal/model"
)

// ReceiptStore is the slice of the message store the receipt engine needs.
type ReceiptStore interface {
	// MarkMessageRead flips the personal-chat is_read flag. Must be
	// idempotent.
	MarkMessageRead(ctx context.Context, messageID string) error
	// InsertReadMark records a group-chat reader; returns false when the
	// (message, user) mark already exists.
	InsertReadMark(ctx context.Context, messageID, userID string) (bool, error)
	// CountReadMarks returns the number of distinct readers of a message.
	CountReadMarks(ctx context.Context, messageID string) (int, error)
	// CountOtherMembers returns the chat member count excluding one user.
	CountOtherMembers(ctx context.Context, chatID, excludeUserID string) (int, error)
}

// Sender is the registry surface the engine notifies through.
type Sender interface {
	SendTo(chatID, userID string, v any)
}

// ReadNotice is the payload delivered to a message's sender when the
// message has been read. In personal chats ReadBy identifies the single
// reader; in group chats ReadByAll is set once every member except the
// sender has a read mark.
type ReadNotice struct {
	Action    string `json:"action"`
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	ReadBy    string `json:"read_by_user_id,omitempty"`
	ReadByAll bool   `json:"read_by_all,omitempty"`
}

// ReceiptEngine applies the read-receipt rules. Personal chats have exactly
// one possible reader, so a boolean on the message suffices; group chats
// keep one mark per reader and aggregate them to detect "read by all".
type ReceiptEngine struct {
	store  ReceiptStore
	sender Sender
}

func NewReceiptEngine(store ReceiptStore, sender Sender) *ReceiptEngine {
	return &ReceiptEngine{store: store, sender: sender}
}

// MarkRead records that readerID has read msg within chat and notifies the
// sender when the chat's policy says so. Re-reads and reads by the sender
// are no-ops, never errors.
func (e *ReceiptEngine) MarkRead(ctx context.Context, chat model.Chat, readerID string, msg model.Message) error {
	if chat.IsGroup {
		return e.markGroup(ctx, chat, readerID, msg)
	}
	return e.markPersonal(ctx, chat, readerID, msg)
}

func (e *ReceiptEngine) markPersonal(ctx context.Context, chat model.Chat, readerID string, msg model.Message) error {
	if msg.SenderID == readerID || msg.IsRead {
		return nil
	}
	if err := e.store.MarkMessageRead(ctx, msg.ID); err != nil {
		return err
	}
	e.sender.SendTo(chat.ID, msg.SenderID, ReadNotice{
		Action:    "message_read",
		MessageID: msg.ID,
		ChatID:    chat.ID,
		ReadBy:    readerID,
	})
	return nil
}

func (e *ReceiptEngine) markGroup(ctx context.Context, chat model.Chat, readerID string, msg model.Message) error {
	if msg.SenderID == readerID {
		return nil
	}
	inserted, err := e.store.InsertReadMark(ctx, msg.ID, readerID)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	reads, err := e.store.CountReadMarks(ctx, msg.ID)
	if err != nil {
		return err
	}
	others, err := e.store.CountOtherMembers(ctx, chat.ID, msg.SenderID)
	if err != nil {
		return err
	}
	// The threshold fires exactly once: the insert above succeeded, so this
	// reader pushed the count to its current value.
	if reads >= others {
		e.sender.SendTo(chat.ID, msg.SenderID, ReadNotice{
			Action:    "message_read",
			MessageID: msg.ID,
			ChatID:    chat.ID,
			ReadByAll: true,
		})
	}
	return nil
}
