package model

import "time"

// Message mirrors the `messages` table. The ID is supplied by the client
// when the message is sent over the websocket and acts as an idempotency
// key: re-sending the same uuid is rejected by the primary-key constraint.
// IsRead is meaningful only in personal chats; group chats track readers in
// the message_reads table instead.
type Message struct {
	ID        string    `json:"message_id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
}

// MessageRead is one (message, reader) row in the `message_reads` table.
// Rows exist only for group chats and are inserted at most once per reader.
type MessageRead struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}
