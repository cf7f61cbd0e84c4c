package registry

import "sync"

// Conn is an opaque handle to one live client connection. Implementations
// must be comparable (the registry keys on the handle itself) and Send must
// never block: a full or closed connection drops the payload and reports false.
type Conn interface {
	Send(payload []byte) bool
}

// Registry maps logical user IDs to their live connections within this
// process. A user may hold several handles at once (multi-device); the entry
// disappears the moment its last handle is removed. The mutex is held only
// for map mutation, never across store or network I/O.
type Registry struct {
	mu     sync.RWMutex
	users  map[string]map[Conn]struct{}
	owners map[Conn]string
	order  []string // user IDs in first-seen registration order
}

func New() *Registry {
	return &Registry{
		users:  make(map[string]map[Conn]struct{}),
		owners: make(map[Conn]string),
	}
}

// Announce registers conn under userID. Announcing the same handle twice is
// a no-op; a second handle for an already-online user joins its handle set.
func (r *Registry) Announce(userID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owners[conn]; ok {
		return
	}
	r.owners[conn] = userID

	if r.users[userID] == nil {
		r.users[userID] = make(map[Conn]struct{})
		r.order = append(r.order, userID)
	}
	r.users[userID][conn] = struct{}{}
}

// Remove drops conn from whichever user owns it, deleting the user's entry
// when the handle set empties. Unknown handles are ignored; disconnect races
// are expected, not errors.
func (r *Registry) Remove(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owners[conn]
	if !ok {
		return
	}
	delete(r.owners, conn)

	handles := r.users[userID]
	delete(handles, conn)
	if len(handles) == 0 {
		delete(r.users, userID)
		for i, id := range r.order {
			if id == userID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
}

// Resolve returns the current local handles for userID, possibly none.
func (r *Registry) Resolve(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := r.users[userID]
	if len(handles) == 0 {
		return nil
	}
	conns := make([]Conn, 0, len(handles))
	for conn := range handles {
		conns = append(conns, conn)
	}
	return conns
}

// Snapshot lists every user with at least one live handle, in first-seen
// registration order.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, len(r.order))
	copy(users, r.order)
	return users
}

// Connections returns every live handle in the process, for broadcasts.
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.owners))
	for conn := range r.owners {
		conns = append(conns, conn)
	}
	return conns
}
