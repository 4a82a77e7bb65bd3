// Package ws holds the in-memory connection registry and the read-receipt
// logic that runs behind the websocket gateway.
package ws

import "sync"

// Conn is the write side of one live client connection. *websocket.Conn
// from gorilla satisfies it; tests substitute an in-memory recorder.
type Conn interface {
	WriteJSON(v any) error
}

// Registry tracks live connections keyed by (chat, user). One user may hold
// several connections to the same chat (multiple devices or tabs). The
// registry is process-local by design: scaling out needs an external
// fan-out layer in front of it.
//
// All access goes through Connect/Disconnect/Broadcast/SendTo; the internal
// maps are never handed out. A single RWMutex guards the structure. Send
// paths snapshot the target connections under the read lock and write to
// them after releasing it, so a slow client cannot block connects. The
// transport allows only one writer per connection, so each registered
// connection carries its own mutex held for the duration of a write.
type Registry struct {
	mu    sync.RWMutex
	chats map[string]map[string]map[Conn]*sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{chats: make(map[string]map[string]map[Conn]*sync.Mutex)}
}

// Connect registers a connection under (chatID, userID), creating the
// intermediate buckets as needed.
func (r *Registry) Connect(conn Conn, chatID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, ok := r.chats[chatID]
	if !ok {
		users = make(map[string]map[Conn]*sync.Mutex)
		r.chats[chatID] = users
	}
	conns, ok := users[userID]
	if !ok {
		conns = make(map[Conn]*sync.Mutex)
		users[userID] = conns
	}
	if _, ok := conns[conn]; !ok {
		conns[conn] = &sync.Mutex{}
	}
}

// Disconnect removes a connection and prunes any bucket it leaves empty, so
// the maps never grow with dead (chat, user) keys. Unknown connections are
// ignored.
func (r *Registry) Disconnect(conn Conn, chatID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users, ok := r.chats[chatID]
	if !ok {
		return
	}
	conns, ok := users[userID]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(users, userID)
	}
	if len(users) == 0 {
		delete(r.chats, chatID)
	}
}

// target pairs a connection with its write mutex for use outside the
// registry lock.
type target struct {
	conn Conn
	wmu  *sync.Mutex
}

// Broadcast delivers v to every connection registered under chatID.
// Delivery is best-effort: write errors are ignored and a chat with no
// live connections is a no-op.
func (r *Registry) Broadcast(chatID string, v any) {
	for _, t := range r.snapshot(chatID, "") {
		t.write(v)
	}
}

// SendTo delivers v only to the connections of one user within a chat.
// A recipient with no live connections is a no-op, not an error.
func (r *Registry) SendTo(chatID, userID string, v any) {
	for _, t := range r.snapshot(chatID, userID) {
		t.write(v)
	}
}

func (t target) write(v any) {
	t.wmu.Lock()
	_ = t.conn.WriteJSON(v)
	t.wmu.Unlock()
}

// snapshot copies the target connection set under the read lock. userID ""
// selects the whole chat.
func (r *Registry) snapshot(chatID, userID string) []target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users, ok := r.chats[chatID]
	if !ok {
		return nil
	}
	var out []target
	if userID != "" {
		for c, wmu := range users[userID] {
			out = append(out, target{conn: c, wmu: wmu})
		}
		return out
	}
	for _, conns := range users {
		for c, wmu := range conns {
			out = append(out, target{conn: c, wmu: wmu})
		}
	}
	return out
}
