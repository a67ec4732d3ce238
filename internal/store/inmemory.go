package store

import (
	"context"
	"sync"
	"time"
)

// InMemory keeps session records in process memory. Used by tests and by
// callers that do not want recovery to survive a restart.
type InMemory struct {
	mu            sync.RWMutex
	sessions      map[string]SessionRecord
	restoreMarker string
	notifications bool
}

func NewInMemory() *InMemory {
	return &InMemory{sessions: make(map[string]SessionRecord)}
}

func (s *InMemory) SaveSession(ctx context.Context, rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.SessionID] = rec
	return nil
}

func (s *InMemory) ActiveSessions(ctx context.Context) ([]SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		recs = append(recs, rec)
	}
	return sortRecords(filterFresh(recs, time.Now())), nil
}

func (s *InMemory) RemoveSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *InMemory) UpdateProgress(ctx context.Context, sessionID string, snap ProgressSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	rec.Progress = snap
	rec.LastUpdate = time.Now()
	if snap.Status != "" {
		rec.Status = snap.Status
	}
	s.sessions[sessionID] = rec
	return nil
}

func (s *InMemory) MarkForRestore(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restoreMarker = sessionID
	return nil
}

func (s *InMemory) ConsumeRestoreMarker(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	marker := s.restoreMarker
	s.restoreMarker = ""
	return marker, nil
}

func (s *InMemory) SetNotificationPermission(ctx context.Context, granted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = granted
	return nil
}

func (s *InMemory) NotificationPermission(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifications, nil
}
