package main

import (
	"encoding/json"
	"log"
	"net/http"
)

type PresenceUpdateRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	IsOnline bool   `json:"is_online"`
}

type HeartbeatRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type BulkPresenceRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,max=200,dive,required"`
}

// GetPresenceHandler reports one user's presence; offline users carry their
// durable last-active timestamp.
func (a *API) GetPresenceHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	if userID == "" {
		http.Error(w, "user id required", http.StatusBadRequest)
		return
	}

	status, err := a.coordinator.Status(r.Context(), userID)
	if err != nil {
		log.Printf("Failed to resolve presence for %s: %v", userID, err)
		http.Error(w, "Failed to resolve presence", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// BulkPresenceHandler resolves a whole batch in one store round trip.
func (a *API) BulkPresenceHandler(w http.ResponseWriter, r *http.Request) {
	var req BulkPresenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		http.Error(w, "Invalid bulk presence request", http.StatusBadRequest)
		return
	}

	statuses, err := a.coordinator.BulkStatus(r.Context(), req.UserIDs)
	if err != nil {
		log.Printf("Failed to resolve bulk presence: %v", err)
		http.Error(w, "Failed to resolve presence", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statuses)
}

// UpdatePresenceHandler sets a user explicitly online (TTL'd) or offline.
func (a *API) UpdatePresenceHandler(w http.ResponseWriter, r *http.Request) {
	var req PresenceUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	var err error
	if req.IsOnline {
		err = a.coordinator.SetOnline(r.Context(), req.UserID)
	} else {
		err = a.coordinator.SetOffline(r.Context(), req.UserID)
	}
	if err != nil {
		log.Printf("Failed to update presence for %s: %v", req.UserID, err)
		http.Error(w, "Failed to update presence", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HeartbeatHandler refreshes the liveness window without any other effect.
func (a *API) HeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.validate.Struct(req); err != nil {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	if err := a.coordinator.Heartbeat(r.Context(), req.UserID); err != nil {
		log.Printf("Heartbeat failed for %s: %v", req.UserID, err)
		http.Error(w, "Failed to refresh presence", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
