package main

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chat-core/pkg/model"
	"github.com/mahaj/chat-core/pkg/presence"
	"github.com/mahaj/chat-core/pkg/ratelimit"
	"github.com/mahaj/chat-core/pkg/registry"
	"github.com/mahaj/chat-core/pkg/router"
	"github.com/mahaj/chat-core/pkg/snowflake"
)

// memStore satisfies both the coordinator's store and the limiter's counter.
type memStore struct {
	mu       sync.Mutex
	values   map[string]string
	counters map[string]int64
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string), counters: make(map[string]int64)}
}

func (m *memStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memStore) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memStore) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := make(map[string]string)
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			found[k] = v
		}
	}
	return found, nil
}

func (m *memStore) Publish(ctx context.Context, channel string, payload []byte) error {
	return nil
}

func (m *memStore) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

type memDirectory struct{}

func (memDirectory) SetOnlineFlag(ctx context.Context, userID string, online bool, lastActive time.Time) error {
	return nil
}

func (memDirectory) LastActive(ctx context.Context, userID string) (time.Time, error) {
	return time.Time{}, nil
}

func (memDirectory) BulkLastActive(ctx context.Context, userIDs []string) (map[string]time.Time, error) {
	return map[string]time.Time{}, nil
}

type relayRecorder struct {
	mu        sync.Mutex
	envelopes []model.RelayEnvelope
}

func (r *relayRecorder) Publish(ctx context.Context, env model.RelayEnvelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = append(r.envelopes, env)
	return nil
}

func (r *relayRecorder) published() []model.RelayEnvelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.RelayEnvelope(nil), r.envelopes...)
}

type captureConn struct {
	mu     sync.Mutex
	events []model.Event
}

func (c *captureConn) Send(payload []byte) bool {
	var e model.Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return true
}

func (c *captureConn) byType(kind model.EventType) []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Event
	for _, e := range c.events {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

func newTestGateway(limit int64) (*Gateway, *relayRecorder) {
	reg := registry.New()
	ms := newMemStore()
	rec := &relayRecorder{}
	node, _ := snowflake.NewNode(1)
	return &Gateway{
		cfg:         Config{MessageLimit: limit, MessageWindow: 10 * time.Second},
		origin:      "test-origin",
		registry:    reg,
		coordinator: presence.NewCoordinator(reg, ms, memDirectory{}, time.Minute),
		router:      router.New(reg),
		limiter:     ratelimit.New(ms),
		snowflake:   node,
		validate:    validator.New(),
		relay:       rec,
	}, rec
}

// drain collects whatever the session queued for its write pump.
func drain(c *Client) []model.Event {
	var out []model.Event
	for {
		select {
		case payload := <-c.send:
			var e model.Event
			if json.Unmarshal(payload, &e) == nil {
				out = append(out, e)
			}
		default:
			return out
		}
	}
}

func frame(t *testing.T, v inboundFrame) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestClient_IdentifyRegistersAndBroadcasts(t *testing.T) {
	gw, _ := newTestGateway(10)
	watcher := &captureConn{}
	gw.coordinator.OnConnect("watcher", watcher)

	c := newClient(gw, nil, "u1")
	c.handleFrame(frame(t, inboundFrame{Type: "identify", UserID: "u1"}))

	require.Equal(t, stateIdentified, sessionState(c.state.Load()))
	require.Len(t, gw.registry.Resolve("u1"), 1)

	snapshots := watcher.byType(model.EventOnlineUsers)
	require.Equal(t, []string{"watcher", "u1"}, snapshots[len(snapshots)-1].Users)
}

func TestClient_IdentifyMustMatchToken(t *testing.T) {
	gw, _ := newTestGateway(10)
	c := newClient(gw, nil, "u1")

	c.handleFrame(frame(t, inboundFrame{Type: "identify", UserID: "u2"}))

	require.Equal(t, stateConnecting, sessionState(c.state.Load()))
	require.Empty(t, gw.registry.Snapshot())

	events := drain(c)
	require.Len(t, events, 1)
	require.Equal(t, model.EventError, events[0].Type)
}

func TestClient_DuplicateIdentifyIsNoop(t *testing.T) {
	gw, _ := newTestGateway(10)
	watcher := &captureConn{}
	gw.coordinator.OnConnect("watcher", watcher)

	c := newClient(gw, nil, "u1")
	c.handleFrame(frame(t, inboundFrame{Type: "identify", UserID: "u1"}))
	before := len(watcher.byType(model.EventOnlineUsers))

	c.handleFrame(frame(t, inboundFrame{Type: "identify", UserID: "u1"}))

	require.Len(t, gw.registry.Resolve("u1"), 1)
	require.Len(t, watcher.byType(model.EventOnlineUsers), before)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	gw, _ := newTestGateway(10)
	watcher := &captureConn{}
	gw.coordinator.OnConnect("watcher", watcher)

	c := newClient(gw, nil, "u1")
	c.handleFrame(frame(t, inboundFrame{Type: "identify", UserID: "u1"}))
	before := len(watcher.byType(model.EventOnlineUsers))

	c.close()
	c.close()

	require.Empty(t, gw.registry.Resolve("u1"))
	require.Equal(t, stateClosed, sessionState(c.state.Load()))
	// exactly one disconnect broadcast despite the double close
	require.Len(t, watcher.byType(model.EventOnlineUsers), before+1)
}

func TestClient_SendBeforeIdentifyRejected(t *testing.T) {
	gw, rec := newTestGateway(10)
	c := newClient(gw, nil, "u1")

	c.handleFrame(frame(t, inboundFrame{Type: "send", ChatID: "c1", RecipientID: "bob", Text: "hi"}))

	events := drain(c)
	require.Len(t, events, 1)
	require.Equal(t, model.EventError, events[0].Type)
	require.Empty(t, rec.published())
}

func TestClient_SendDeliversLocallyAndRelays(t *testing.T) {
	gw, rec := newTestGateway(10)
	bob := &captureConn{}
	gw.coordinator.OnConnect("bob", bob)

	c := newClient(gw, nil, "alice")
	c.handleFrame(frame(t, inboundFrame{Type: "identify", UserID: "alice"}))
	c.handleFrame(frame(t, inboundFrame{Type: "send", ChatID: "c1", RecipientID: "bob", Text: "hello"}))

	messages := bob.byType(model.EventMessage)
	require.Len(t, messages, 1)
	require.Equal(t, "hello", messages[0].Message.Text)
	require.Equal(t, "alice", messages[0].Message.SenderID)
	require.NotZero(t, messages[0].Message.ID)
	require.Len(t, bob.byType(model.EventNotification), 1)

	published := rec.published()
	require.Len(t, published, 1)
	require.Equal(t, model.RelayMessage, published[0].Kind)
	require.Equal(t, "test-origin", published[0].Origin)
	require.Equal(t, "hello", published[0].Message.Text)
}

func TestClient_SendToOfflineRecipientStillRelayed(t *testing.T) {
	gw, rec := newTestGateway(10)

	c := newClient(gw, nil, "alice")
	c.handleFrame(frame(t, inboundFrame{Type: "identify", UserID: "alice"}))
	c.handleFrame(frame(t, inboundFrame{Type: "send", ChatID: "c1", RecipientID: "ghost", Text: "hello"}))

	// offline is a normal outcome; persistence still gets the message
	require.Len(t, rec.published(), 1)
	for _, e := range drain(c) {
		require.NotEqual(t, model.EventError, e.Type)
	}
}

func TestClient_RateLimitRejectsExcessSends(t *testing.T) {
	gw, rec := newTestGateway(1)
	bob := &captureConn{}
	gw.coordinator.OnConnect("bob", bob)

	c := newClient(gw, nil, "alice")
	c.handleFrame(frame(t, inboundFrame{Type: "identify", UserID: "alice"}))
	c.handleFrame(frame(t, inboundFrame{Type: "send", ChatID: "c1", RecipientID: "bob", Text: "one"}))
	c.handleFrame(frame(t, inboundFrame{Type: "send", ChatID: "c1", RecipientID: "bob", Text: "two"}))

	require.Len(t, bob.byType(model.EventMessage), 1)
	require.Len(t, rec.published(), 1)

	var sawError bool
	for _, e := range drain(c) {
		if e.Type == model.EventError {
			sawError = true
		}
	}
	require.True(t, sawError, "second send should be rejected")
}

func TestClient_InvalidSendRequestRejected(t *testing.T) {
	gw, rec := newTestGateway(10)

	c := newClient(gw, nil, "alice")
	c.handleFrame(frame(t, inboundFrame{Type: "identify", UserID: "alice"}))
	c.handleFrame(frame(t, inboundFrame{Type: "send", ChatID: "c1", RecipientID: "bob"})) // no text

	var sawError bool
	for _, e := range drain(c) {
		if e.Type == model.EventError {
			sawError = true
		}
	}
	require.True(t, sawError)
	require.Empty(t, rec.published())
}

func TestClient_MalformedFrameRejected(t *testing.T) {
	gw, _ := newTestGateway(10)
	c := newClient(gw, nil, "u1")

	c.handleFrame([]byte("{not json"))

	events := drain(c)
	require.Len(t, events, 1)
	require.Equal(t, model.EventError, events[0].Type)
}

func TestClient_TypingDeliveredToRecipientOnly(t *testing.T) {
	gw, rec := newTestGateway(10)
	bob := &captureConn{}
	eve := &captureConn{}
	gw.coordinator.OnConnect("bob", bob)
	gw.coordinator.OnConnect("eve", eve)

	c := newClient(gw, nil, "alice")
	c.handleFrame(frame(t, inboundFrame{Type: "identify", UserID: "alice"}))
	c.handleFrame(frame(t, inboundFrame{Type: "typing", ChatID: "c1", RecipientID: "bob", IsTyping: true}))

	require.Len(t, bob.byType(model.EventTyping), 1)
	require.Empty(t, eve.byType(model.EventTyping))

	published := rec.published()
	require.Len(t, published, 1)
	require.Equal(t, model.RelayTyping, published[0].Kind)
}
