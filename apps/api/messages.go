package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/mahaj/chat-core/pkg/auth"
	"github.com/mahaj/chat-core/pkg/model"
)

type SendMessageRequest struct {
	ChatID      string `json:"chat_id" validate:"required"`
	RecipientID string `json:"recipient_id" validate:"required"`
	Text        string `json:"text" validate:"required,max=2000"`
}

// SendMessageHandler is the REST send path. Admission is checked here once,
// exactly as the gateway's websocket path does, then the message goes onto
// the relay topic: every gateway routes it to the recipient's live
// connections and the messaging service persists it.
func (a *API) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(auth.UserKey).(*auth.Claims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		http.Error(w, "Invalid send request", http.StatusBadRequest)
		return
	}

	if !a.limiter.Admit(r.Context(), "message", claims.UserID, a.cfg.MessageLimit, a.cfg.MessageWindow) {
		w.Header().Set("Retry-After", strconv.Itoa(int(a.cfg.MessageWindow.Seconds())))
		http.Error(w, "Rate limit exceeded. Please wait before sending more messages.", http.StatusTooManyRequests)
		return
	}

	msg := model.Message{
		ID:          a.snowflake.Generate(),
		ChatID:      req.ChatID,
		SenderID:    claims.UserID,
		RecipientID: req.RecipientID,
		Text:        req.Text,
		CreatedAt:   time.Now(),
	}

	if err := a.publishMessage(r.Context(), msg); err != nil {
		log.Printf("Failed to publish message %d: %v", msg.ID, err)
		http.Error(w, "Failed to accept message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

// HistoryHandler returns a chat's recent messages, newest first.
func (a *API) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		http.Error(w, "chat_id is required", http.StatusBadRequest)
		return
	}

	limit := a.cfg.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= a.cfg.HistoryLimit {
			limit = n
		}
	}

	messages, err := a.session.History(chatID, limit)
	if err != nil {
		log.Printf("Failed to load history for %s: %v", chatID, err)
		http.Error(w, "Failed to retrieve history", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}
