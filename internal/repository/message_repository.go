package repository

import (
	"context"
	"database/sql"

	"github.com/kalentivan/tg/internal/model"
)

type MessageRepo struct{ DB *sql.DB }

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{DB: db} }

// Create inserts a message. The id is chosen by the sending client and acts
// as an idempotency key: inserting the same id twice hits the primary key
// and surfaces as ErrConflict, which the gateway reports as a soft error.
func (r *MessageRepo) Create(ctx context.Context, m *model.Message) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO messages (id, chat_id, sender_id, text, timestamp, is_read) VALUES (?,?,?,?,?,?)",
		m.ID, m.ChatID, m.SenderID, m.Text, m.Timestamp, m.IsRead)
	if isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// GetByID fetches one message.
func (r *MessageRepo) GetByID(ctx context.Context, id string) (model.Message, error) {
	var m model.Message
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, chat_id, sender_id, text, timestamp, is_read FROM messages WHERE id=? LIMIT 1",
		id).Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.Timestamp, &m.IsRead)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

// MarkRead performs the partial update of the personal-chat read flag. It
// touches only rows where is_read is still false, making the operation
// idempotent at the store level.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE messages SET is_read=TRUE WHERE id=? AND is_read=FALSE", messageID)
	return err
}

// InsertReadMark records that a user has read a group-chat message. It
// returns false without error when a mark already exists, so callers can
// skip re-notifying.
func (r *MessageRepo) InsertReadMark(ctx context.Context, messageID, userID string) (bool, error) {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO message_reads (message_id, user_id) VALUES (?,?)",
		messageID, userID)
	if isDuplicate(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CountReadMarks returns the number of distinct readers of a message.
func (r *MessageRepo) CountReadMarks(ctx context.Context, messageID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT user_id) FROM message_reads WHERE message_id=?",
		messageID).Scan(&n)
	return n, err
}

// History returns messages of a chat in ascending timestamp order plus the
// total count, for paging.
func (r *MessageRepo) History(ctx context.Context, chatID string, limit, offset int) ([]model.Message, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, chat_id, sender_id, text, timestamp, is_read FROM messages WHERE chat_id=? ORDER BY timestamp ASC LIMIT ? OFFSET ?",
		chatID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.Timestamp, &m.IsRead); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE chat_id=?", chatID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
