package db

import (
	"time"

	"github.com/mahaj/chat-core/pkg/model"
)

type Conversation struct {
	UserID        string    `json:"user_id"`
	ChatID        string    `json:"chat_id"`
	OtherUserID   string    `json:"other_user_id"`
	LastMessageID int64     `json:"last_message_id"`
	LastUpdated   time.Time `json:"last_updated"`
	UnreadCount   int64     `json:"unread_count"`
}

// TouchConversation moves the chat's last-message pointer for both
// participants and bumps the recipient's unread counter.
func (s *Session) TouchConversation(m model.Message) error {
	query := `INSERT INTO user_conversations (user_id, chat_id, other_user_id, last_message_id, last_updated) VALUES (?, ?, ?, ?, ?)`
	if err := s.Query(query, m.SenderID, m.ChatID, m.RecipientID, m.ID, m.CreatedAt).Exec(); err != nil {
		return err
	}
	if err := s.Query(query, m.RecipientID, m.ChatID, m.SenderID, m.ID, m.CreatedAt).Exec(); err != nil {
		return err
	}

	counter := `UPDATE conversation_counters SET unread_count = unread_count + 1 WHERE user_id = ? AND chat_id = ?`
	return s.Query(counter, m.RecipientID, m.ChatID).Exec()
}

// Conversations lists a user's chats with unread counts, most fields coming
// straight from the per-user partition.
func (s *Session) Conversations(userID string) ([]Conversation, error) {
	query := `SELECT user_id, chat_id, other_user_id, last_message_id, last_updated FROM user_conversations WHERE user_id = ?`
	iter := s.Query(query, userID).Iter()

	var conversations []Conversation
	var c Conversation
	for iter.Scan(&c.UserID, &c.ChatID, &c.OtherUserID, &c.LastMessageID, &c.LastUpdated) {
		var count int64
		if err := s.Query(`SELECT unread_count FROM conversation_counters WHERE user_id = ? AND chat_id = ?`, c.UserID, c.ChatID).Scan(&count); err == nil {
			c.UnreadCount = count
		}
		conversations = append(conversations, c)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return conversations, nil
}

// ResetUnread zeroes the unread counter for a chat. Counter columns cannot
// be set, only deleted.
func (s *Session) ResetUnread(userID, chatID string) error {
	query := `DELETE FROM conversation_counters WHERE user_id = ? AND chat_id = ?`
	return s.Query(query, userID, chatID).Exec()
}
