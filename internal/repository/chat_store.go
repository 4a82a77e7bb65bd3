package repository

import (
	"context"

	"github.com/kalentivan/tg/internal/model"
)

// ChatStore bundles the chat and message repositories behind the narrow
// interfaces consumed by the websocket gateway and the receipt engine.
type ChatStore struct {
	Chats    *ChatRepo
	Messages *MessageRepo
}

func NewChatStore(chats *ChatRepo, messages *MessageRepo) *ChatStore {
	return &ChatStore{Chats: chats, Messages: messages}
}

func (s *ChatStore) ChatForMember(ctx context.Context, chatID, userID string) (model.Chat, error) {
	return s.Chats.GetForMember(ctx, chatID, userID)
}

func (s *ChatStore) CreateMessage(ctx context.Context, m *model.Message) error {
	return s.Messages.Create(ctx, m)
}

func (s *ChatStore) MessageByID(ctx context.Context, id string) (model.Message, error) {
	return s.Messages.GetByID(ctx, id)
}

func (s *ChatStore) MarkMessageRead(ctx context.Context, messageID string) error {
	return s.Messages.MarkRead(ctx, messageID)
}

func (s *ChatStore) InsertReadMark(ctx context.Context, messageID, userID string) (bool, error) {
	return s.Messages.InsertReadMark(ctx, messageID, userID)
}

func (s *ChatStore) CountReadMarks(ctx context.Context, messageID string) (int, error) {
	return s.Messages.CountReadMarks(ctx, messageID)
}

func (s *ChatStore) CountOtherMembers(ctx context.Context, chatID, excludeUserID string) (int, error) {
	return s.Chats.CountOtherMembers(ctx, chatID, excludeUserID)
}
