package model

// Chat models an entry in the `chats` table. A chat is either personal
// (exactly two members, no name) or a named group chat.
type Chat struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	IsGroup bool   `json:"is_group"`
}

// ChatMember models a row in the `group_members` join table. Membership is
// stored as id back-references rather than object links; the same table is
// used for personal and group chats. IsAdmin marks the chat creator (and
// anyone later promoted) and gates destructive group operations.
type ChatMember struct {
	ChatID  string `json:"chat_id"`
	UserID  string `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
}
