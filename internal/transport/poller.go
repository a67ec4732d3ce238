// Package transport delivers progress updates to the reconciler over two
// interchangeable channels: a fixed-interval polling loop (authoritative)
// and a best-effort WebSocket push listener. Both normalize payloads into
// progress.Update values and feed the same inbound channel, whose sole
// consumer is the lifecycle controller's run loop.
package transport

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/BroWo1/fact-check/config"
	"github.com/BroWo1/fact-check/internal/client"
	"github.com/BroWo1/fact-check/internal/progress"
	"github.com/BroWo1/fact-check/models"
)

// StatusFetcher is the slice of the API client the poller needs.
type StatusFetcher interface {
	GetStatus(ctx context.Context, sessionID string) (models.StatusPayload, error)
}

// Poller drives the authoritative status polling loop for one session at a
// time. Start is a no-op while a loop is already running.
type Poller struct {
	fetch       StatusFetcher
	interval    time.Duration
	debounce    time.Duration
	maxDuration time.Duration
	logger      *log.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

func NewPoller(fetch StatusFetcher, cfg config.TransportConfig, logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.New(log.Writer(), "[POLL] ", log.LstdFlags)
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	maxDuration := cfg.MaxPollDuration
	if maxDuration <= 0 {
		maxDuration = 10 * time.Minute
	}
	return &Poller{
		fetch:       fetch,
		interval:    interval,
		debounce:    debounce,
		maxDuration: maxDuration,
		logger:      logger,
	}
}

// Start begins the loop. The active callback is consulted every tick; once
// it reports false the loop self-terminates without emitting anything.
func (p *Poller) Start(ctx context.Context, sessionID string, active func() bool, out chan<- progress.Update) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.logger.Printf("polling already active for session %s, skipping start", sessionID)
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.cancel = cancel
	p.mu.Unlock()

	go p.loop(loopCtx, sessionID, active, out)
}

// Stop ends the loop; safe to call when no loop is running.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.running = false
}

func (p *Poller) markStopped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.cancel = nil
}

func (p *Poller) loop(ctx context.Context, sessionID string, active func() bool, out chan<- progress.Update) {
	defer p.markStopped()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	ceiling := time.NewTimer(p.maxDuration)
	defer ceiling.Stop()

	emit := func(u progress.Update) bool {
		select {
		case out <- u:
			updatesTotal.WithLabelValues("poll").Inc()
			return true
		case <-ctx.Done():
			return false
		}
	}

	// rapid bursts of status payloads coalesce behind a debounce window so
	// the reconciler sees one merged call instead of many
	var (
		pending   *models.StatusPayload
		debouncer *time.Timer
		debounceC <-chan time.Time
	)
	flush := func() {
		if debouncer != nil {
			debouncer.Stop()
			debouncer = nil
		}
		debounceC = nil
		if pending != nil {
			emit(ProgressFromStatus(*pending))
			pending = nil
		}
	}

	// poll fetches one status and folds it into the loop state; true means
	// the loop must exit.
	poll := func() bool {
		if !active() {
			p.logger.Printf("stopping polling for %s: session no longer active", sessionID)
			return true
		}
		status, err := p.fetch.GetStatus(ctx, sessionID)
		pollsTotal.Inc()
		if err != nil {
			if client.IsSessionNotFound(err) {
				flush()
				emit(progress.Update{
					Kind:    progress.KindFailed,
					Fault:   string(client.KindSessionNotFound),
					Message: "Session not found",
				})
				return true
			}
			pollFailuresTotal.Inc()
			p.logger.Printf("transient poll failure for %s: %v", sessionID, err)
			return false
		}

		if term, ok := TerminalFromStatus(status); ok {
			flush()
			emit(ProgressFromStatus(status))
			emit(term)
			terminalTotal.WithLabelValues(string(status.Status)).Inc()
			return true
		}

		// coalesce: later payloads replace the pending one, the window
		// is armed once so a steady stream cannot starve delivery
		pending = &status
		if debounceC == nil {
			debouncer = time.NewTimer(p.debounce)
			debounceC = debouncer.C
		}
		return false
	}

	// fetch right away so a just-started or just-resumed session branches on
	// current backend state instead of waiting out a full interval
	if poll() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-ceiling.C:
			// absolute safety ceiling: the backend never reached a terminal
			// state, so stop polling and report a timeout once
			flush()
			if active() {
				emit(progress.Update{
					Kind:    progress.KindFailed,
					Fault:   string(client.KindTimeout),
					Message: "Analysis timeout - please try again",
				})
			}
			p.logger.Printf("polling ceiling reached for session %s", sessionID)
			return

		case <-debounceC:
			flush()

		case <-ticker.C:
			if poll() {
				return
			}
		}
	}
}
