package db

import (
	"github.com/mahaj/chat-core/pkg/model"
)

// SaveMessage persists one accepted message into its chat partition.
func (s *Session) SaveMessage(m model.Message) error {
	query := `INSERT INTO messages (chat_id, id, sender_id, recipient_id, text, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	return s.Query(query, m.ChatID, m.ID, m.SenderID, m.RecipientID, m.Text, m.CreatedAt).Exec()
}

// History returns up to limit messages of a chat, newest first (messages
// cluster on id descending).
func (s *Session) History(chatID string, limit int) ([]model.Message, error) {
	query := `SELECT chat_id, id, sender_id, recipient_id, text, created_at FROM messages WHERE chat_id = ? LIMIT ?`
	iter := s.Query(query, chatID, limit).Iter()

	var messages []model.Message
	var m model.Message
	for iter.Scan(&m.ChatID, &m.ID, &m.SenderID, &m.RecipientID, &m.Text, &m.CreatedAt) {
		messages = append(messages, m)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return messages, nil
}
