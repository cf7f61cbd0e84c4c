package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mahaj/chat-core/pkg/auth"
	"github.com/mahaj/chat-core/pkg/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

type sessionState int32

// Identified and Active are functionally one state; a session accepts sends
// and deliveries from the moment it identifies until it closes.
const (
	stateConnecting sessionState = iota
	stateIdentified
	stateClosed
)

// Client is one physical duplex channel to one chat client. It owns its own
// lifecycle: connect, identify, active, disconnect. A reconnect is a brand
// new Client.
type Client struct {
	gw   *Gateway
	conn *websocket.Conn

	// Buffered channel of outbound payloads. Never closed; writers race
	// against done instead, so late deliveries cannot panic.
	send chan []byte
	done chan struct{}

	state     atomic.Int32
	closeOnce sync.Once

	// claimedID comes from the upgrade token; identify must match it.
	claimedID string
	// userID is set once by the identify frame, before the state moves off
	// Connecting. Only the read loop writes it.
	userID string
}

func newClient(gw *Gateway, conn *websocket.Conn, claimedID string) *Client {
	return &Client{
		gw:        gw,
		conn:      conn,
		send:      make(chan []byte, 256),
		done:      make(chan struct{}),
		claimedID: claimedID,
	}
}

// Send queues a payload for the write pump without ever blocking the caller.
// A closed or saturated session drops the payload and reports false.
func (c *Client) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// close transitions the session to Closed and releases its registry entry.
// The underlying channel can report termination more than once; the guard
// makes sure onDisconnect side effects happen exactly once.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(stateClosed))
		close(c.done)
		c.gw.coordinator.OnDisconnect(c)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// readPump pumps frames from the websocket connection into the core.
func (c *Client) readPump() {
	defer c.close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		// the pong doubles as a presence heartbeat once identified
		if sessionState(c.state.Load()) == stateIdentified {
			if err := c.gw.coordinator.Heartbeat(context.Background(), c.userID); err != nil {
				log.Printf("Heartbeat failed for %s: %v", c.userID, err)
			}
		}
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Session read error: %v", err)
			}
			break
		}
		c.handleFrame(raw)
	}
}

// writePump pumps queued payloads to the websocket connection, one frame per
// event, and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// inboundFrame is the single wire shape for client frames; Type selects
// which fields matter.
type inboundFrame struct {
	Type        string `json:"type"`
	UserID      string `json:"user_id"`
	ChatID      string `json:"chat_id"`
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
	IsTyping    bool   `json:"is_typing"`
}

type sendRequest struct {
	ChatID      string `validate:"required"`
	RecipientID string `validate:"required"`
	Text        string `validate:"required,max=2000"`
}

func (c *Client) handleFrame(raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.Send(model.ErrorEvent("malformed frame").Encode())
		return
	}

	switch frame.Type {
	case "identify":
		c.handleIdentify(frame)
	case "send":
		c.handleSend(frame)
	case "typing":
		c.handleTyping(frame)
	default:
		c.Send(model.ErrorEvent("unknown frame type: " + frame.Type).Encode())
	}
}

// handleIdentify announces the connection's identity to the core and moves
// the session to Identified. Presence store failure degrades to stale
// presence; it never tears down the connection.
func (c *Client) handleIdentify(frame inboundFrame) {
	if sessionState(c.state.Load()) != stateConnecting {
		return
	}
	if frame.UserID == "" || frame.UserID != c.claimedID {
		c.Send(model.ErrorEvent("identity does not match token").Encode())
		return
	}

	c.userID = frame.UserID
	c.state.Store(int32(stateIdentified))

	c.gw.coordinator.OnConnect(c.userID, c)
	if err := c.gw.coordinator.SetOnline(context.Background(), c.userID); err != nil {
		log.Printf("Failed to mark %s online: %v", c.userID, err)
	}
}

func (c *Client) handleSend(frame inboundFrame) {
	if sessionState(c.state.Load()) != stateIdentified {
		c.Send(model.ErrorEvent("identify before sending").Encode())
		return
	}

	req := sendRequest{ChatID: frame.ChatID, RecipientID: frame.RecipientID, Text: frame.Text}
	if err := c.gw.validate.Struct(req); err != nil {
		c.Send(model.ErrorEvent("invalid send request").Encode())
		return
	}

	ctx := context.Background()
	if !c.gw.limiter.Admit(ctx, "message", c.userID, c.gw.cfg.MessageLimit, c.gw.cfg.MessageWindow) {
		c.Send(model.ErrorEvent("rate limit exceeded").Encode())
		return
	}

	msg := model.Message{
		ID:          c.gw.snowflake.Generate(),
		ChatID:      frame.ChatID,
		SenderID:    c.userID,
		RecipientID: frame.RecipientID,
		Text:        frame.Text,
		CreatedAt:   time.Now(),
	}

	outcome := c.gw.router.Route(msg)
	log.Printf("Routed message %d to %s: %s", msg.ID, msg.RecipientID, outcome)

	// other gateways and the persistence consumer pick it up from here
	c.gw.publishMessage(msg)
}

func (c *Client) handleTyping(frame inboundFrame) {
	if sessionState(c.state.Load()) != stateIdentified {
		return
	}
	if frame.ChatID == "" || frame.RecipientID == "" {
		return
	}

	ev := model.TypingEvent{
		ChatID:      frame.ChatID,
		UserID:      c.userID,
		RecipientID: frame.RecipientID,
		IsTyping:    frame.IsTyping,
	}
	c.gw.deliverTyping(ev)
	c.gw.publishTyping(ev)
}

// serveWs authenticates the upgrade and starts a session in Connecting; the
// registry learns about the user only when the identify frame arrives.
func serveWs(gw *Gateway, w http.ResponseWriter, r *http.Request) {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		// Try query param as fallback (standard for some WS clients)
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
		tokenString = tokenString[7:]
	}

	claims, err := auth.ValidateToken(tokenString)
	if err != nil {
		log.Printf("Unauthorized: invalid token: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := newClient(gw, conn, claims.UserID)
	go client.writePump()
	go client.readPump()
}
