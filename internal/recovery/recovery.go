// Package recovery finds interrupted sessions in the store and offers them
// back for resumption. Discovery is read-only; the lifecycle controller owns
// the actual re-attachment.
package recovery

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/BroWo1/fact-check/config"
	"github.com/BroWo1/fact-check/internal/store"
)

// Window is how far back an interrupted session is still worth resuming.
// Older records stay persisted (retention is a separate, longer window) but
// are no longer offered for recovery.
const Window = 2 * time.Hour

const maxClaimDisplay = 100

// SessionView is a recoverable session shaped for display.
type SessionView struct {
	Record       store.SessionRecord
	DisplayClaim string
	ModeLabel    string
	TimeAgo      string
	ProgressText string
}

// Coordinator discovers and manages recoverable sessions.
type Coordinator struct {
	store  store.Store
	window time.Duration
	delay  time.Duration
	logger *log.Logger
	now    func() time.Time
}

func NewCoordinator(st store.Store, cfg config.RecoveryConfig, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.New(log.Writer(), "[RECOVERY] ", log.LstdFlags)
	}
	window := cfg.Window
	if window <= 0 {
		window = Window
	}
	delay := cfg.AutoResumeDelay
	if delay <= 0 {
		delay = time.Second
	}
	return &Coordinator{
		store:  st,
		window: window,
		delay:  delay,
		logger: logger,
		now:    time.Now,
	}
}

// Discover returns sessions interrupted recently enough to resume, oldest
// first. A session qualifies when it is non-terminal and its last update
// falls inside the recovery window.
func (c *Coordinator) Discover(ctx context.Context) ([]SessionView, error) {
	recs, err := c.store.ActiveSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active sessions: %w", err)
	}
	cutoff := c.now().Add(-c.window)
	views := make([]SessionView, 0, len(recs))
	for _, rec := range recs {
		if rec.Status.Terminal() {
			continue
		}
		if rec.LastUpdate.Before(cutoff) {
			continue
		}
		views = append(views, c.view(rec))
	}
	return views, nil
}

// Dismiss drops one recoverable session from the store.
func (c *Coordinator) Dismiss(ctx context.Context, sessionID string) error {
	return c.store.RemoveSession(ctx, sessionID)
}

// DismissAll drops every recoverable session.
func (c *Coordinator) DismissAll(ctx context.Context) error {
	views, err := c.Discover(ctx)
	if err != nil {
		return err
	}
	for _, v := range views {
		if err := c.store.RemoveSession(ctx, v.Record.SessionID); err != nil {
			return err
		}
	}
	return nil
}

// CheckAndAutoResume consumes the pending-restore marker and, after a short
// settle delay, returns the marked session when it is still recoverable.
// The marker is consumed either way; a stale marker resolves to nothing.
func (c *Coordinator) CheckAndAutoResume(ctx context.Context) (*SessionView, error) {
	id, err := c.store.ConsumeRestoreMarker(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading restore marker: %w", err)
	}
	if id == "" {
		return nil, nil
	}

	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	views, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range views {
		if v.Record.SessionID == id {
			c.logger.Printf("auto-resuming marked session %s", id)
			return &v, nil
		}
	}
	c.logger.Printf("restore marker pointed at %s but it is no longer recoverable", id)
	return nil, nil
}

func (c *Coordinator) view(rec store.SessionRecord) SessionView {
	return SessionView{
		Record:       rec,
		DisplayClaim: truncateClaim(rec.OriginalClaim),
		ModeLabel:    rec.Mode.Label(),
		TimeAgo:      timeAgo(c.now(), rec.LastUpdate),
		ProgressText: progressText(rec.Progress),
	}
}

func truncateClaim(claim string) string {
	if claim == "" {
		return "Unknown claim"
	}
	runes := []rune(claim)
	if len(runes) <= maxClaimDisplay {
		return claim
	}
	return string(runes[:maxClaimDisplay]) + "..."
}

func timeAgo(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "Just now"
	case d < time.Hour:
		m := int(d.Minutes())
		if m == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", m)
	default:
		h := int(d.Hours())
		if h == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", h)
	}
}

func progressText(snap store.ProgressSnapshot) string {
	if snap.CurrentStep != "" {
		return fmt.Sprintf("%.0f%% - %s", snap.Percentage, snap.CurrentStep)
	}
	return fmt.Sprintf("%.0f%% complete", snap.Percentage)
}
