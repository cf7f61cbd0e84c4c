// Package presence reconciles the local connection registry with the shared
// presence store and keeps every connected client's view of the online set
// current.
package presence

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/samber/lo"

	"github.com/mahaj/chat-core/pkg/model"
	"github.com/mahaj/chat-core/pkg/registry"
)

const (
	// Channel carries presence-change events between server processes.
	Channel = "presence:update"

	// DefaultTTL is the liveness window: a user with no heartbeat for this
	// long goes offline implicitly. A crashed process leaves a stale record
	// until then; that staleness is bounded and accepted.
	DefaultTTL = 300 * time.Second

	keyPrefix    = "presence:"
	statusOnline = "online"
)

// Store is the slice of the shared store the coordinator needs.
type Store interface {
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (string, bool, error)
	MGet(ctx context.Context, keys ...string) (map[string]string, error)
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Directory is the durable user-record collaborator, consulted when the
// store has no presence record (or cannot be reached).
type Directory interface {
	SetOnlineFlag(ctx context.Context, userID string, online bool, lastActive time.Time) error
	LastActive(ctx context.Context, userID string) (time.Time, error)
	BulkLastActive(ctx context.Context, userIDs []string) (map[string]time.Time, error)
}

// Status is one user's presence as reported to callers. LastActive is only
// meaningful when IsOnline is false.
type Status struct {
	UserID     string    `json:"user_id"`
	IsOnline   bool      `json:"is_online"`
	LastActive time.Time `json:"last_active,omitzero"`
}

type Coordinator struct {
	registry  *registry.Registry
	store     Store
	directory Directory
	ttl       time.Duration
}

func NewCoordinator(reg *registry.Registry, store Store, directory Directory, ttl time.Duration) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Coordinator{registry: reg, store: store, directory: directory, ttl: ttl}
}

func Key(userID string) string {
	return keyPrefix + userID
}

// OnConnect registers the handle and re-broadcasts the online snapshot to
// every local session. The broadcast is unconditional even when the
// announcement changed nothing; clients render snapshots idempotently.
func (c *Coordinator) OnConnect(userID string, conn registry.Conn) {
	c.registry.Announce(userID, conn)
	c.broadcastSnapshot()
}

// OnDisconnect releases the handle and re-broadcasts the updated snapshot.
func (c *Coordinator) OnDisconnect(conn registry.Conn) {
	c.registry.Remove(conn)
	c.broadcastSnapshot()
}

func (c *Coordinator) broadcastSnapshot() {
	payload := model.OnlineUsersEvent(c.registry.Snapshot()).Encode()
	for _, conn := range c.registry.Connections() {
		conn.Send(payload)
	}
}

// SetOnline marks userID online in the store for the liveness window and
// announces the change to other processes. The durable online flag is
// best-effort; its failure never blocks the store write.
func (c *Coordinator) SetOnline(ctx context.Context, userID string) error {
	if err := c.store.SetEx(ctx, Key(userID), statusOnline, c.ttl); err != nil {
		return err
	}
	c.publishChange(ctx, userID, true)
	if err := c.directory.SetOnlineFlag(ctx, userID, true, time.Now()); err != nil {
		log.Printf("Failed to update durable online flag for %s: %v", userID, err)
	}
	return nil
}

// SetOffline deletes the presence record; going offline is always explicit,
// TTL expiry only covers processes that never got to say goodbye.
func (c *Coordinator) SetOffline(ctx context.Context, userID string) error {
	if err := c.store.Del(ctx, Key(userID)); err != nil {
		return err
	}
	c.publishChange(ctx, userID, false)
	if err := c.directory.SetOnlineFlag(ctx, userID, false, time.Now()); err != nil {
		log.Printf("Failed to update durable online flag for %s: %v", userID, err)
	}
	return nil
}

// Heartbeat refreshes the presence TTL without touching local registry
// state. Liveness in the store and liveness of a local connection are
// deliberately decoupled.
func (c *Coordinator) Heartbeat(ctx context.Context, userID string) error {
	return c.store.SetEx(ctx, Key(userID), statusOnline, c.ttl)
}

// IsOnline reports whether a presence record exists for userID.
func (c *Coordinator) IsOnline(ctx context.Context, userID string) (bool, error) {
	_, ok, err := c.store.Get(ctx, Key(userID))
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Status resolves one user's presence, falling back to the directory's
// durable last-active record when the store has no entry or is unreachable.
func (c *Coordinator) Status(ctx context.Context, userID string) (Status, error) {
	online, err := c.IsOnline(ctx, userID)
	if err != nil {
		log.Printf("Presence store unavailable for %s, falling back to directory: %v", userID, err)
	} else if online {
		return Status{UserID: userID, IsOnline: true}, nil
	}

	lastActive, dirErr := c.directory.LastActive(ctx, userID)
	if dirErr != nil {
		return Status{UserID: userID}, dirErr
	}
	return Status{UserID: userID, LastActive: lastActive}, nil
}

// BulkStatus resolves presence for a whole batch in one store round trip,
// then enriches the offline remainder with last-active timestamps.
func (c *Coordinator) BulkStatus(ctx context.Context, userIDs []string) (map[string]Status, error) {
	keys := lo.Map(userIDs, func(id string, _ int) string { return Key(id) })

	found, err := c.store.MGet(ctx, keys...)
	if err != nil {
		log.Printf("Presence store unavailable for bulk query, falling back to directory: %v", err)
		found = map[string]string{}
	}

	statuses := make(map[string]Status, len(userIDs))
	for _, id := range userIDs {
		_, online := found[Key(id)]
		statuses[id] = Status{UserID: id, IsOnline: online}
	}

	offline := lo.Filter(userIDs, func(id string, _ int) bool { return !statuses[id].IsOnline })
	if len(offline) == 0 {
		return statuses, nil
	}

	lastActives, err := c.directory.BulkLastActive(ctx, offline)
	if err != nil {
		log.Printf("Failed to load last-active fallback: %v", err)
		return statuses, nil
	}
	for id, at := range lastActives {
		s := statuses[id]
		s.LastActive = at
		statuses[id] = s
	}
	return statuses, nil
}

func (c *Coordinator) publishChange(ctx context.Context, userID string, online bool) {
	payload, _ := json.Marshal(model.PresenceChange{
		UserID:    userID,
		IsOnline:  online,
		Timestamp: time.Now().UnixMilli(),
	})
	if err := c.store.Publish(ctx, Channel, payload); err != nil {
		log.Printf("Failed to publish presence change for %s: %v", userID, err)
	}
}
