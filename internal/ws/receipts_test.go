package ws

import (
	"context"
	"testing"

	"github.com/kalentivan/tg/internal/model"
)

// fakeReceiptStore keeps read state in maps, mirroring the database tables.
type fakeReceiptStore struct {
	readFlags map[string]bool                // message id -> is_read
	marks     map[string]map[string]struct{} // message id -> reader set
	members   int                            // member count excluding the sender
}

func newFakeReceiptStore(members int) *fakeReceiptStore {
	return &fakeReceiptStore{
		readFlags: map[string]bool{},
		marks:     map[string]map[string]struct{}{},
		members:   members,
	}
}

func (s *fakeReceiptStore) MarkMessageRead(_ context.Context, messageID string) error {
	s.readFlags[messageID] = true
	return nil
}

func (s *fakeReceiptStore) InsertReadMark(_ context.Context, messageID, userID string) (bool, error) {
	readers, ok := s.marks[messageID]
	if !ok {
		readers = map[string]struct{}{}
		s.marks[messageID] = readers
	}
	if _, dup := readers[userID]; dup {
		return false, nil
	}
	readers[userID] = struct{}{}
	return true, nil
}

func (s *fakeReceiptStore) CountReadMarks(_ context.Context, messageID string) (int, error) {
	return len(s.marks[messageID]), nil
}

func (s *fakeReceiptStore) CountOtherMembers(context.Context, string, string) (int, error) {
	return s.members, nil
}

// fakeSender records targeted notifications.
type fakeSender struct {
	sent []ReadNotice
	to   []string
}

func (s *fakeSender) SendTo(_, userID string, v any) {
	s.sent = append(s.sent, v.(ReadNotice))
	s.to = append(s.to, userID)
}

func personalChat() model.Chat { return model.Chat{ID: "chat-1", IsGroup: false} }
func groupChat() model.Chat    { return model.Chat{ID: "chat-1", IsGroup: true} }

func msg(sender string) model.Message {
	return model.Message{ID: "msg-1", ChatID: "chat-1", SenderID: sender}
}

func TestPersonalReadNotifiesSender(t *testing.T) {
	store := newFakeReceiptStore(1)
	sender := &fakeSender{}
	e := NewReceiptEngine(store, sender)

	if err := e.MarkRead(context.Background(), personalChat(), "reader", msg("author")); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !store.readFlags["msg-1"] {
		t.Error("is_read flag not set")
	}
	if len(sender.sent) != 1 {
		t.Fatalf("got %d notices, want 1", len(sender.sent))
	}
	if sender.to[0] != "author" {
		t.Errorf("notified %q, want author", sender.to[0])
	}
	n := sender.sent[0]
	if n.Action != "message_read" || n.MessageID != "msg-1" || n.ReadBy != "reader" || n.ReadByAll {
		t.Errorf("notice = %+v", n)
	}
}

func TestPersonalReadBySenderIsNoop(t *testing.T) {
	store := newFakeReceiptStore(1)
	sender := &fakeSender{}
	e := NewReceiptEngine(store, sender)

	if err := e.MarkRead(context.Background(), personalChat(), "author", msg("author")); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if store.readFlags["msg-1"] || len(sender.sent) != 0 {
		t.Error("sender reading own message must not mark or notify")
	}
}

func TestPersonalReadIsIdempotent(t *testing.T) {
	store := newFakeReceiptStore(1)
	sender := &fakeSender{}
	e := NewReceiptEngine(store, sender)

	m := msg("author")
	m.IsRead = true
	if err := e.MarkRead(context.Background(), personalChat(), "reader", m); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("already-read message produced %d notices", len(sender.sent))
	}
}

func TestGroupReadNotifiesOnlyWhenAllHaveRead(t *testing.T) {
	// Four members total: the author plus three possible readers.
	store := newFakeReceiptStore(3)
	sender := &fakeSender{}
	e := NewReceiptEngine(store, sender)
	ctx := context.Background()

	for _, reader := range []string{"reader-1", "reader-2"} {
		if err := e.MarkRead(ctx, groupChat(), reader, msg("author")); err != nil {
			t.Fatalf("MarkRead(%s): %v", reader, err)
		}
	}
	if len(sender.sent) != 0 {
		t.Fatalf("notified after 2 of 3 reads")
	}

	if err := e.MarkRead(ctx, groupChat(), "reader-3", msg("author")); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("got %d notices after final read, want 1", len(sender.sent))
	}
	n := sender.sent[0]
	if !n.ReadByAll || n.ReadBy != "" {
		t.Errorf("notice = %+v, want read_by_all with no single reader", n)
	}
	if sender.to[0] != "author" {
		t.Errorf("notified %q, want author", sender.to[0])
	}
}

func TestGroupDuplicateReadDoesNotRenotify(t *testing.T) {
	store := newFakeReceiptStore(1)
	sender := &fakeSender{}
	e := NewReceiptEngine(store, sender)
	ctx := context.Background()

	if err := e.MarkRead(ctx, groupChat(), "reader", msg("author")); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := e.MarkRead(ctx, groupChat(), "reader", msg("author")); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("got %d notices, want 1", len(sender.sent))
	}
}

func TestGroupReadBySenderIsNoop(t *testing.T) {
	store := newFakeReceiptStore(2)
	sender := &fakeSender{}
	e := NewReceiptEngine(store, sender)

	if err := e.MarkRead(context.Background(), groupChat(), "author", msg("author")); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if len(store.marks["msg-1"]) != 0 || len(sender.sent) != 0 {
		t.Error("sender reading own message must not add a mark or notify")
	}
}
