// Package store persists session records so interrupted analyses can be
// recovered after a crash or restart. All backends expose the same flat
// key-value view keyed by session id.
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/BroWo1/fact-check/config"
	"github.com/BroWo1/fact-check/models"
)

// Storage keys shared by every backend.
const (
	KeyActiveSessions         = "fact_check_active_sessions"
	KeyRestoreSession         = "fact_check_restore_session"
	KeyNotificationPermission = "fact_check_notification_permission"
)

// RetentionWindow is how long a session record survives. Expired records are
// filtered out lazily on read, never actively swept.
const RetentionWindow = 24 * time.Hour

// ProgressSnapshot is the reconciled progress embedded in a session record.
type ProgressSnapshot struct {
	Percentage  float64              `json:"percentage"`
	CurrentStep string               `json:"current_step,omitempty"`
	Steps       []models.Step        `json:"steps,omitempty"`
	Status      models.SessionStatus `json:"status,omitempty"`
}

// SessionRecord is one persisted active session.
type SessionRecord struct {
	SessionID        string               `json:"session_id"`
	OriginalClaim    string               `json:"original_claim"`
	Mode             models.Mode          `json:"mode"`
	StartTime        time.Time            `json:"start_time"`
	LastUpdate       time.Time            `json:"last_update"`
	Progress         ProgressSnapshot     `json:"progress"`
	UploadedFileName string               `json:"uploaded_file_name,omitempty"`
	Status           models.SessionStatus `json:"status"`
}

// Store is the persistence boundary shared by the reconciler (progress
// snapshots) and the lifecycle controller (full record lifecycle).
type Store interface {
	// SaveSession inserts or replaces the record for its session id.
	SaveSession(ctx context.Context, rec SessionRecord) error
	// ActiveSessions returns all records inside the retention window.
	ActiveSessions(ctx context.Context) ([]SessionRecord, error)
	// RemoveSession deletes the record; removing a missing id is not an error.
	RemoveSession(ctx context.Context, sessionID string) error
	// UpdateProgress overwrites the progress snapshot and bumps last_update.
	// Unknown session ids are ignored.
	UpdateProgress(ctx context.Context, sessionID string, snap ProgressSnapshot) error

	// MarkForRestore records a single session pending restore; the marker is
	// consumed exactly once by ConsumeRestoreMarker.
	MarkForRestore(ctx context.Context, sessionID string) error
	// ConsumeRestoreMarker returns and clears the pending-restore marker, or
	// "" when none is set.
	ConsumeRestoreMarker(ctx context.Context) (string, error)

	SetNotificationPermission(ctx context.Context, granted bool) error
	NotificationPermission(ctx context.Context) (bool, error)
}

// New builds the store selected by cfg.Type.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "inmemory":
		return NewInMemory(), nil
	case "file", "":
		return NewFile(afero.NewOsFs(), cfg.File.Path), nil
	case "redis":
		return NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// filterFresh drops records whose start time fell out of the retention
// window. The backing storage is left untouched.
func filterFresh(recs []SessionRecord, now time.Time) []SessionRecord {
	fresh := recs[:0]
	for _, rec := range recs {
		if now.Sub(rec.StartTime) < RetentionWindow {
			fresh = append(fresh, rec)
		}
	}
	return fresh
}

// sortRecords orders records oldest first so listings are stable across
// backends whose natural iteration order differs.
func sortRecords(recs []SessionRecord) []SessionRecord {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].StartTime.Equal(recs[j].StartTime) {
			return recs[i].SessionID < recs[j].SessionID
		}
		return recs[i].StartTime.Before(recs[j].StartTime)
	})
	return recs
}
