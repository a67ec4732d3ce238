package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// fileState is the on-disk document. The three fixed keys mirror the flat
// key-value layout the engine expects from its persistence backends.
type fileState struct {
	ActiveSessions []SessionRecord `json:"fact_check_active_sessions"`
	RestoreSession string          `json:"fact_check_restore_session,omitempty"`
	Notifications  bool            `json:"fact_check_notification_permission"`
}

// File persists session records as a single JSON document. The filesystem is
// injected so tests run against afero.MemMapFs.
type File struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

func NewFile(fs afero.Fs, path string) *File {
	if path == "" {
		path = "fact-check-sessions.json"
	}
	return &File{fs: fs, path: path}
}

// load reads the whole state document; a missing file is an empty state.
func (s *File) load() (fileState, error) {
	var state fileState
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, fmt.Errorf("read session state: %w", err)
	}
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return fileState{}, fmt.Errorf("decode session state: %w", err)
	}
	return state, nil
}

func (s *File) save(state fileState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	if err := afero.WriteFile(s.fs, s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	return nil
}

func (s *File) SaveSession(ctx context.Context, rec SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range state.ActiveSessions {
		if state.ActiveSessions[i].SessionID == rec.SessionID {
			state.ActiveSessions[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		state.ActiveSessions = append(state.ActiveSessions, rec)
	}
	return s.save(state)
}

func (s *File) ActiveSessions(ctx context.Context) ([]SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return nil, err
	}
	recs := append([]SessionRecord(nil), state.ActiveSessions...)
	return sortRecords(filterFresh(recs, time.Now())), nil
}

func (s *File) RemoveSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return err
	}
	kept := state.ActiveSessions[:0]
	for _, rec := range state.ActiveSessions {
		if rec.SessionID != sessionID {
			kept = append(kept, rec)
		}
	}
	state.ActiveSessions = kept
	return s.save(state)
}

func (s *File) UpdateProgress(ctx context.Context, sessionID string, snap ProgressSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return err
	}
	for i := range state.ActiveSessions {
		if state.ActiveSessions[i].SessionID != sessionID {
			continue
		}
		state.ActiveSessions[i].Progress = snap
		state.ActiveSessions[i].LastUpdate = time.Now()
		if snap.Status != "" {
			state.ActiveSessions[i].Status = snap.Status
		}
		return s.save(state)
	}
	return nil
}

func (s *File) MarkForRestore(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return err
	}
	state.RestoreSession = sessionID
	return s.save(state)
}

func (s *File) ConsumeRestoreMarker(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return "", err
	}
	marker := state.RestoreSession
	if marker == "" {
		return "", nil
	}
	state.RestoreSession = ""
	if err := s.save(state); err != nil {
		return "", err
	}
	return marker, nil
}

func (s *File) SetNotificationPermission(ctx context.Context, granted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return err
	}
	state.Notifications = granted
	return s.save(state)
}

func (s *File) NotificationPermission(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return false, err
	}
	return state.Notifications, nil
}
