// Package session owns the lifecycle of one analysis session at a time:
// submission, progress consumption, terminal transition and the persisted
// record that makes interrupted sessions recoverable.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/BroWo1/fact-check/config"
	"github.com/BroWo1/fact-check/internal/client"
	"github.com/BroWo1/fact-check/internal/progress"
	"github.com/BroWo1/fact-check/internal/store"
	"github.com/BroWo1/fact-check/internal/transport"
	"github.com/BroWo1/fact-check/models"
)

// State is the controller's lifecycle state. It tracks what the controller
// is doing, not what the backend reports; the two converge on terminal
// transitions.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// API is the slice of the backend client the controller uses.
type API interface {
	CreateSession(ctx context.Context, req client.CreateRequest) (string, error)
	GetStatus(ctx context.Context, sessionID string) (models.StatusPayload, error)
	GetResults(ctx context.Context, sessionID string) (models.Results, error)
	CancelSession(ctx context.Context, sessionID string) error
}

// Snapshot is a point-in-time view of the controller for callers outside
// the run loop.
type Snapshot struct {
	State         State
	SessionID     string
	OriginalClaim string
	Mode          models.Mode
	Progress      progress.Progress
	Results       *models.Results
	Err           error
}

// Controller runs one session end to end. All updates, regardless of which
// transport produced them, funnel through a single channel consumed by one
// run loop, so progress merges are never concurrent.
type Controller struct {
	api    API
	store  store.Store
	poller *transport.Poller
	push   *transport.PushListener
	rec    *progress.Reconciler
	logger *log.Logger

	pushEnabled bool

	mu            sync.Mutex
	state         State
	sessionID     string
	originalClaim string
	mode          models.Mode
	fileName      string
	results       *models.Results
	err           error
	cancelRun     context.CancelFunc
	done          chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithPush attaches an optional push listener; without one the controller
// is poll-only.
func WithPush(p *transport.PushListener) Option {
	return func(c *Controller) {
		c.push = p
		c.pushEnabled = p != nil
	}
}

func New(api API, st store.Store, cfg config.TransportConfig, logger *log.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = log.New(log.Writer(), "[SESSION] ", log.LstdFlags)
	}
	c := &Controller{
		api:    api,
		store:  st,
		logger: logger,
		state:  StateIdle,
	}
	c.rec = progress.NewReconciler(logger, st)
	c.poller = transport.NewPoller(api, cfg, logger)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start submits a new claim and begins tracking it. It returns once the
// session is created and the run loop is live; progress arrives in the
// background. Starting while another session is live is an error.
func (c *Controller) Start(ctx context.Context, req client.CreateRequest) (string, error) {
	c.mu.Lock()
	if c.state == StateSubmitting || c.state == StateInProgress {
		c.mu.Unlock()
		return "", fmt.Errorf("session already in progress")
	}
	c.resetLocked()
	c.state = StateSubmitting
	c.originalClaim = req.Input
	c.mode = req.Mode
	if req.Attachment != nil {
		c.fileName = req.Attachment.Name
	}
	c.mu.Unlock()

	sessionID, err := c.api.CreateSession(ctx, req)
	if err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.err = err
		c.mu.Unlock()
		return "", err
	}

	submittingLabel, _ := progress.StepLabel("submitting")
	rec := store.SessionRecord{
		SessionID:     sessionID,
		OriginalClaim: req.Input,
		Mode:          req.Mode,
		StartTime:     time.Now().UTC(),
		LastUpdate:    time.Now().UTC(),
		Status:        models.StatusInProgress,
		Progress: store.ProgressSnapshot{
			CurrentStep: submittingLabel,
			Status:      models.StatusInProgress,
		},
		UploadedFileName: c.uploadedFileName(),
	}
	if err := c.store.SaveSession(ctx, rec); err != nil {
		c.logger.Printf("persisting session record failed: %v", err)
	}

	c.track(ctx, sessionID)
	return sessionID, nil
}

// Resume re-attaches to an existing backend session from a persisted record.
// The record's claim and reconciled progress seed the in-memory model so the
// caller sees continuity rather than a fresh 0%.
func (c *Controller) Resume(ctx context.Context, rec store.SessionRecord) error {
	c.mu.Lock()
	if c.state == StateSubmitting || c.state == StateInProgress {
		c.mu.Unlock()
		return fmt.Errorf("session already in progress")
	}
	// capture before reset: the record carries the claim the backend long
	// since stopped echoing back
	claim := rec.OriginalClaim
	c.resetLocked()
	c.originalClaim = claim
	c.mode = rec.Mode
	c.fileName = rec.UploadedFileName
	c.state = StateInProgress
	c.mu.Unlock()

	c.rec.Apply(ctx, progress.Update{
		Kind:        progress.KindProgress,
		Percentage:  &rec.Progress.Percentage,
		CurrentStep: rec.Progress.CurrentStep,
		Steps:       rec.Progress.Steps,
	})
	rec.LastUpdate = time.Now().UTC()
	if err := c.store.SaveSession(ctx, rec); err != nil {
		c.logger.Printf("refreshing session record failed: %v", err)
	}

	c.track(ctx, rec.SessionID)
	c.logger.Printf("resumed session %s (%s)", rec.SessionID, rec.Mode)
	return nil
}

// Cancel asks the backend to stop the running session and resets local
// tracking either way: a failed cancel request never blocks cleanup. A
// locally-initiated cancel returns the controller to idle with a nil
// error, ready for the next claim; StateCancelled is reserved for a
// cancellation signal arriving from a transport.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	id := c.sessionID
	live := c.state == StateInProgress
	cancelRun := c.cancelRun
	c.mu.Unlock()
	if !live || id == "" {
		return fmt.Errorf("no session in progress")
	}

	if err := c.api.CancelSession(ctx, id); err != nil {
		c.logger.Printf("cancel request for %s failed, cleaning up locally anyway: %v", id, err)
	}

	// leave in_progress first so a racing terminal frame gets dropped by
	// the run loop, then end the loop and wait before wiping state
	c.setTerminal(StateIdle, nil)
	c.poller.Stop()
	if c.push != nil {
		c.push.Close()
	}
	if cancelRun != nil {
		cancelRun()
	}
	c.Wait()

	if err := c.store.RemoveSession(ctx, id); err != nil {
		c.logger.Printf("removing cancelled session record failed: %v", err)
	}
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
	c.logger.Printf("session %s cancelled", id)
	return nil
}

// Snapshot returns the controller's current view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:         c.state,
		SessionID:     c.sessionID,
		OriginalClaim: c.originalClaim,
		Mode:          c.mode,
		Progress:      c.rec.Snapshot(),
		Results:       c.results,
		Err:           c.err,
	}
}

// Wait blocks until the current run loop exits (terminal transition or
// context cancellation). Returns immediately when no loop is live.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Shutdown stops transports and the run loop without touching the
// persisted record, so the session stays recoverable.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	cancel := c.cancelRun
	c.mu.Unlock()
	c.poller.Stop()
	if c.push != nil {
		c.push.Close()
	}
	if cancel != nil {
		cancel()
	}
	c.Wait()
}

func (c *Controller) uploadedFileName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fileName
}

func (c *Controller) resetLocked() {
	c.sessionID = ""
	c.originalClaim = ""
	c.mode = ""
	c.fileName = ""
	c.results = nil
	c.err = nil
	c.rec.Reset()
}

// track wires both transports to a fresh update channel and starts the
// run loop.
func (c *Controller) track(ctx context.Context, sessionID string) {
	runCtx, cancel := context.WithCancel(ctx)
	updates := make(chan progress.Update, 16)
	done := make(chan struct{})

	c.mu.Lock()
	c.sessionID = sessionID
	c.state = StateInProgress
	c.cancelRun = cancel
	c.done = done
	c.mu.Unlock()

	c.rec.Bind(sessionID)
	c.rec.SetStatus(models.StatusInProgress)

	c.poller.Start(runCtx, sessionID, c.active, updates)
	if c.pushEnabled {
		c.push.Connect(runCtx, sessionID, updates)
	}

	go func() {
		defer close(done)
		defer cancel()
		c.run(runCtx, sessionID, updates)
	}()
}

func (c *Controller) active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateInProgress
}

// run is the single consumer of the update channel. Terminal updates end
// the loop; everything else flows into the reconciler.
func (c *Controller) run(ctx context.Context, sessionID string, updates <-chan progress.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			if !u.Terminal() {
				c.rec.Apply(ctx, u)
				continue
			}
			if !c.active() {
				// a second transport can race in its own terminal frame;
				// only the first transition counts
				continue
			}
			c.finish(ctx, sessionID, u)
			return
		}
	}
}

func (c *Controller) finish(ctx context.Context, sessionID string, u progress.Update) {
	c.poller.Stop()
	if c.push != nil {
		c.push.Close()
	}

	switch u.Kind {
	case progress.KindCompleted:
		c.complete(ctx, sessionID, u)
	case progress.KindCancelled:
		c.rec.SetStatus(models.StatusCancelled)
		c.setTerminal(StateCancelled, nil)
		if err := c.store.RemoveSession(ctx, sessionID); err != nil {
			c.logger.Printf("removing cancelled session record failed: %v", err)
		}
		c.logger.Printf("session %s cancelled", sessionID)
	case progress.KindFailed:
		msg := u.Message
		if msg == "" {
			msg = "Analysis failed"
		}
		err := &client.Error{Kind: client.ErrorKind(faultOr(u.Fault, string(client.KindAPI))), Message: msg}
		c.rec.SetStatus(models.StatusFailed)
		c.setTerminal(StateFailed, err)
		if err := c.store.RemoveSession(ctx, sessionID); err != nil {
			c.logger.Printf("removing failed session record failed: %v", err)
		}
		c.logger.Printf("session %s failed: %s", sessionID, msg)
	}
}

// complete fetches final results exactly once, reconciles the original
// claim between the local state and the results payload (whichever side
// still has it fills the other), and clears the persisted record.
func (c *Controller) complete(ctx context.Context, sessionID string, u progress.Update) {
	if !u.Success {
		msg := u.Message
		if msg == "" {
			msg = "Analysis failed"
		}
		c.rec.SetStatus(models.StatusFailed)
		c.setTerminal(StateFailed, &client.Error{Kind: client.KindAPI, Message: msg})
		if err := c.store.RemoveSession(ctx, sessionID); err != nil {
			c.logger.Printf("removing failed session record failed: %v", err)
		}
		return
	}

	results, err := c.api.GetResults(ctx, sessionID)
	if err != nil {
		c.rec.SetStatus(models.StatusFailed)
		c.setTerminal(StateFailed, fmt.Errorf("Failed to fetch final results: %w", err))
		c.logger.Printf("fetching results for %s failed: %v", sessionID, err)
		return
	}
	c.mu.Lock()
	if results.OriginalClaim == "" {
		results.OriginalClaim = c.originalClaim
	} else if c.originalClaim == "" {
		// a resumed record can arrive without its claim; the results
		// payload is the surviving copy
		c.originalClaim = results.OriginalClaim
	}
	c.mu.Unlock()

	c.rec.MarkCompleted(ctx, "Analysis complete")
	c.mu.Lock()
	c.results = &results
	c.mu.Unlock()
	c.setTerminal(StateCompleted, nil)

	if err := c.store.RemoveSession(ctx, sessionID); err != nil {
		c.logger.Printf("removing completed session record failed: %v", err)
	}
	c.logger.Printf("session %s completed (verdict=%s)", sessionID, results.Verdict)
}

func (c *Controller) setTerminal(s State, err error) {
	c.mu.Lock()
	c.state = s
	c.err = err
	c.mu.Unlock()
}

func faultOr(fault, fallback string) string {
	if fault != "" {
		return fault
	}
	return fallback
}
