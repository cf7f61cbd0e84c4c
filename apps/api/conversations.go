package main

import (
	"encoding/json"
	"net/http"

	"github.com/mahaj/chat-core/pkg/auth"
	"github.com/mahaj/chat-core/pkg/db"
)

func (a *API) ConversationsHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(auth.UserKey).(*auth.Claims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversations, err := a.session.Conversations(claims.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if conversations == nil {
		conversations = []db.Conversation{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conversations)
}

type ReadRequest struct {
	ChatID string `json:"chat_id" validate:"required"`
}

// ReadHandler marks a chat read by resetting its unread counter.
func (a *API) ReadHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := r.Context().Value(auth.UserKey).(*auth.Claims)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req ReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		http.Error(w, "chat_id is required", http.StatusBadRequest)
		return
	}

	if err := a.session.ResetUnread(claims.UserID, req.ChatID); err != nil {
		http.Error(w, "Failed to reset unread count", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
