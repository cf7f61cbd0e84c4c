package db

import (
	"context"
	"time"
)

// The user_presence table is the durable fallback behind the presence store:
// a last-active timestamp plus an online flag that survives store outages.

func (s *Session) SetOnlineFlag(ctx context.Context, userID string, online bool, lastActive time.Time) error {
	query := `INSERT INTO user_presence (user_id, is_online, last_active) VALUES (?, ?, ?)`
	return s.Query(query, userID, online, lastActive).WithContext(ctx).Exec()
}

func (s *Session) LastActive(ctx context.Context, userID string) (time.Time, error) {
	var lastActive time.Time
	query := `SELECT last_active FROM user_presence WHERE user_id = ?`
	if err := s.Query(query, userID).WithContext(ctx).Scan(&lastActive); err != nil {
		return time.Time{}, err
	}
	return lastActive, nil
}

// TouchLastActive bumps last_active without touching the online flag; used
// by the persistence consumer, for which sending a message is activity but
// not a presence decision.
func (s *Session) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	query := `UPDATE user_presence SET last_active = ? WHERE user_id = ?`
	return s.Query(query, at, userID).WithContext(ctx).Exec()
}

func (s *Session) BulkLastActive(ctx context.Context, userIDs []string) (map[string]time.Time, error) {
	query := `SELECT user_id, last_active FROM user_presence WHERE user_id IN ?`
	iter := s.Query(query, userIDs).WithContext(ctx).Iter()

	out := make(map[string]time.Time, len(userIDs))
	var userID string
	var lastActive time.Time
	for iter.Scan(&userID, &lastActive) {
		out[userID] = lastActive
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}
