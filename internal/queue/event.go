// Package queue defines message payloads exchanged over the message broker.
package queue

// MessageSentEvent is published after a chat message has been persisted and
// broadcast. It carries enough for downstream consumers to archive or index
// the message without querying the primary database.
type MessageSentEvent struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	SenderID  string `json:"sender_id"`
	Text      string `json:"text"`
	SentAt    string `json:"sent_at"`
}
