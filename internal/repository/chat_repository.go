package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/kalentivan/tg/internal/model"
)

type ChatRepo struct{ DB *sql.DB }

func NewChatRepo(db *sql.DB) *ChatRepo { return &ChatRepo{DB: db} }

// CreateTx inserts a chat and its member rows in the caller's transaction.
// The creator must be included in members by the caller, flagged as admin.
func (r *ChatRepo) CreateTx(ctx context.Context, tx *sql.Tx, chat *model.Chat, members []model.ChatMember) error {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	var name sql.NullString
	if chat.Name != "" {
		name = sql.NullString{String: chat.Name, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO chats (id, name, is_group) VALUES (?,?,?)",
		chat.ID, name, chat.IsGroup); err != nil {
		return err
	}
	for _, m := range members {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO group_members (chat_id, user_id, is_admin) VALUES (?,?,?)",
			chat.ID, m.UserID, m.IsAdmin); err != nil {
			if isDuplicate(err) {
				return ErrConflict
			}
			return err
		}
	}
	return nil
}

// GetForMember is the combined existence and membership check used before a
// websocket connection is accepted. It returns ErrNotFound when the chat
// does not exist and ErrForbidden when it exists but the user is not
// a member, so callers can distinguish the two without a second query.
func (r *ChatRepo) GetForMember(ctx context.Context, chatID, userID string) (model.Chat, error) {
	var (
		c      model.Chat
		name   sql.NullString
		member sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT c.id, c.name, c.is_group, gm.user_id
		   FROM chats c
		   LEFT JOIN group_members gm ON gm.chat_id = c.id AND gm.user_id = ?
		  WHERE c.id = ? LIMIT 1`,
		userID, chatID).Scan(&c.ID, &name, &c.IsGroup, &member)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if !member.Valid {
		return c, ErrForbidden
	}
	c.Name = name.String
	return c, nil
}

// GetByID fetches a chat row without a membership check.
func (r *ChatRepo) GetByID(ctx context.Context, chatID string) (model.Chat, error) {
	var (
		c    model.Chat
		name sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, name, is_group FROM chats WHERE id=? LIMIT 1", chatID).
		Scan(&c.ID, &name, &c.IsGroup)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	c.Name = name.String
	return c, err
}

// IsAdmin reports whether the user is an admin member of the chat.
func (r *ChatRepo) IsAdmin(ctx context.Context, chatID, userID string) (bool, error) {
	var admin bool
	err := r.DB.QueryRowContext(ctx,
		"SELECT is_admin FROM group_members WHERE chat_id=? AND user_id=? LIMIT 1",
		chatID, userID).Scan(&admin)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return admin, err
}

// AddMember inserts one membership row. Duplicate membership surfaces as
// ErrConflict.
func (r *ChatRepo) AddMember(ctx context.Context, chatID, userID string) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO group_members (chat_id, user_id, is_admin) VALUES (?,?,FALSE)",
		chatID, userID)
	if isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// RemoveMember deletes one membership row.
func (r *ChatRepo) RemoveMember(ctx context.Context, chatID, userID string) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM group_members WHERE chat_id=? AND user_id=?", chatID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Members lists the membership rows of a chat.
func (r *ChatRepo) Members(ctx context.Context, chatID string) ([]model.ChatMember, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT chat_id, user_id, is_admin FROM group_members WHERE chat_id=?", chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChatMember
	for rows.Next() {
		var m model.ChatMember
		if err := rows.Scan(&m.ChatID, &m.UserID, &m.IsAdmin); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountOtherMembers returns the number of chat members excluding the given
// user. This is the denominator of the group "read by all" check: everyone
// except the sender.
func (r *ChatRepo) CountOtherMembers(ctx context.Context, chatID, excludeUserID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM group_members WHERE chat_id=? AND user_id<>?",
		chatID, excludeUserID).Scan(&n)
	return n, err
}

// Delete removes a chat together with its messages, read marks and
// membership rows in one transaction.
func (r *ChatRepo) Delete(ctx context.Context, chatID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	steps := []string{
		"DELETE mr FROM message_reads mr JOIN messages m ON m.id = mr.message_id WHERE m.chat_id=?",
		"DELETE FROM messages WHERE chat_id=?",
		"DELETE FROM group_members WHERE chat_id=?",
		"DELETE FROM chats WHERE id=?",
	}
	for _, q := range steps {
		if _, err := tx.ExecContext(ctx, q, chatID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListForUser returns the chats the user belongs to.
func (r *ChatRepo) ListForUser(ctx context.Context, userID string) ([]model.Chat, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT c.id, c.name, c.is_group
		   FROM chats c
		   JOIN group_members gm ON gm.chat_id = c.id
		  WHERE gm.user_id=?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Chat
	for rows.Next() {
		var (
			c    model.Chat
			name sql.NullString
		)
		if err := rows.Scan(&c.ID, &name, &c.IsGroup); err != nil {
			return nil, err
		}
		c.Name = name.String
		out = append(out, c)
	}
	return out, rows.Err()
}
