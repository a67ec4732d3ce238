package recovery

import (
	"context"
	"log"
	"time"

	"github.com/BroWo1/fact-check/config"
	"github.com/BroWo1/fact-check/internal/client"
	"github.com/BroWo1/fact-check/internal/store"
	"github.com/BroWo1/fact-check/models"
)

// StatusChecker is the slice of the API client the watcher needs.
type StatusChecker interface {
	GetStatus(ctx context.Context, sessionID string) (models.StatusPayload, error)
}

// Watcher periodically sweeps persisted session records against the
// backend, pruning records whose sessions finished or vanished while no
// controller was watching them.
type Watcher struct {
	store    store.Store
	check    StatusChecker
	interval time.Duration
	logger   *log.Logger
}

func NewWatcher(st store.Store, check StatusChecker, cfg config.RecoveryConfig, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[WATCH] ", log.LstdFlags)
	}
	interval := cfg.WatchInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Watcher{
		store:    st,
		check:    check,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps until the context ends. One sweep failure never stops the
// loop.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep checks every persisted record once and prunes the stale ones.
func (w *Watcher) Sweep(ctx context.Context) {
	recs, err := w.store.ActiveSessions(ctx)
	if err != nil {
		w.logger.Printf("sweep: loading sessions failed: %v", err)
		return
	}
	for _, rec := range recs {
		status, err := w.check.GetStatus(ctx, rec.SessionID)
		if err != nil {
			if client.IsSessionNotFound(err) {
				w.logger.Printf("sweep: session %s gone from backend, pruning record", rec.SessionID)
				if err := w.store.RemoveSession(ctx, rec.SessionID); err != nil {
					w.logger.Printf("sweep: pruning %s failed: %v", rec.SessionID, err)
				}
			}
			// transient failures leave the record alone
			continue
		}
		if status.Status.Terminal() {
			w.logger.Printf("sweep: session %s finished (%s), pruning record", rec.SessionID, status.Status)
			if err := w.store.RemoveSession(ctx, rec.SessionID); err != nil {
				w.logger.Printf("sweep: pruning %s failed: %v", rec.SessionID, err)
			}
		}
	}
}
