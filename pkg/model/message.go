package model

import "time"

// Message is one direct chat message. Immutable once constructed; the router
// hands it to delivery first and to the persistence stream second.
type Message struct {
	ID          int64     `json:"id"`
	ChatID      string    `json:"chat_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notification accompanies every successful local delivery of a Message.
type Notification struct {
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	IsRead      bool      `json:"is_read"`
	DeliveredAt time.Time `json:"delivered_at"`
}

func NewNotification(m Message, deliveredAt time.Time) Notification {
	return Notification{
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		DeliveredAt: deliveredAt,
	}
}

// TypingEvent is an ephemeral indicator; relayed between gateways, never persisted.
type TypingEvent struct {
	ChatID      string `json:"chat_id"`
	UserID      string `json:"user_id"`
	RecipientID string `json:"recipient_id"`
	IsTyping    bool   `json:"is_typing"`
}

// PresenceChange is the payload published on the shared presence channel so
// other processes can update their own view.
type PresenceChange struct {
	UserID    string `json:"user_id"`
	IsOnline  bool   `json:"is_online"`
	Timestamp int64  `json:"timestamp"`
}
