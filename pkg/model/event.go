package model

import "encoding/json"

type EventType string

const (
	EventMessage      EventType = "message"
	EventNotification EventType = "notification"
	EventOnlineUsers  EventType = "online_users"
	EventPresence     EventType = "presence"
	EventTyping       EventType = "typing"
	EventError        EventType = "error"
)

// Event is the envelope written to connected clients. Exactly one payload
// field is set, matching Type. Clients treat online_users as idempotent state
// replacement, never as a delta.
type Event struct {
	Type         EventType       `json:"type"`
	Users        []string        `json:"users,omitempty"`
	Message      *Message        `json:"message,omitempty"`
	Notification *Notification   `json:"notification,omitempty"`
	Presence     *PresenceChange `json:"presence,omitempty"`
	Typing       *TypingEvent    `json:"typing,omitempty"`
	Error        string          `json:"error,omitempty"`
}

func OnlineUsersEvent(users []string) Event {
	if users == nil {
		users = []string{}
	}
	return Event{Type: EventOnlineUsers, Users: users}
}

func MessageEvent(m Message) Event {
	return Event{Type: EventMessage, Message: &m}
}

func NotificationEvent(n Notification) Event {
	return Event{Type: EventNotification, Notification: &n}
}

func ErrorEvent(reason string) Event {
	return Event{Type: EventError, Error: reason}
}

// Encode marshals the event for the wire. Marshalling an Event cannot fail
// (no channels, funcs or NaNs), so errors are swallowed here on purpose.
func (e Event) Encode() []byte {
	b, _ := json.Marshal(e)
	return b
}

type RelayKind string

const (
	RelayMessage RelayKind = "message"
	RelayTyping  RelayKind = "typing"
)

// RelayEnvelope is what gateway processes exchange over the relay topic.
// Origin identifies the publishing gateway so it can skip its own messages,
// which were already delivered locally at send time.
type RelayEnvelope struct {
	Origin  string       `json:"origin"`
	Kind    RelayKind    `json:"kind"`
	Message *Message     `json:"message,omitempty"`
	Typing  *TypingEvent `json:"typing,omitempty"`
}
