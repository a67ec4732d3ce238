package transport

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BroWo1/fact-check/config"
	"github.com/BroWo1/fact-check/internal/progress"
)

// PushListener maintains a best-effort WebSocket subscription for one
// session. Every decoded frame lands on the same update channel the poller
// feeds; a dead push channel is never an error because polling remains
// authoritative.
type PushListener struct {
	dialer    *websocket.Dialer
	wsBase    string
	attempts  int
	baseDelay time.Duration
	logger    *log.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	closing bool
	cancel  context.CancelFunc
}

func NewPushListener(backend config.BackendConfig, transport config.TransportConfig, logger *log.Logger) *PushListener {
	if logger == nil {
		logger = log.New(log.Writer(), "[PUSH] ", log.LstdFlags)
	}
	attempts := transport.ReconnectAttempts
	if attempts <= 0 {
		attempts = 5
	}
	baseDelay := transport.ReconnectBase
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	return &PushListener{
		dialer:    websocket.DefaultDialer,
		wsBase:    strings.TrimRight(backend.WSBaseURL, "/"),
		attempts:  attempts,
		baseDelay: baseDelay,
		logger:    logger,
	}
}

// Connect starts the listen loop in the background. It returns immediately;
// connection failures only reduce update freshness, never session health.
func (l *PushListener) Connect(ctx context.Context, sessionID string, out chan<- progress.Update) {
	l.mu.Lock()
	if l.cancel != nil {
		l.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.closing = false
	l.mu.Unlock()

	go l.run(loopCtx, sessionID, out)
}

// Close tears the connection down deliberately; no reconnect follows.
func (l *PushListener) Close() {
	l.mu.Lock()
	l.closing = true
	conn := l.conn
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
	if cancel != nil {
		cancel()
	}
}

// RequestStatus asks the backend to push a fresh status frame; silently a
// no-op while disconnected.
func (l *PushListener) RequestStatus() {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteJSON(map[string]string{"type": "request_status"}); err != nil {
		l.logger.Printf("request_status write failed: %v", err)
	}
}

func (l *PushListener) endpoint(sessionID string) string {
	return l.wsBase + "/ws/fact-check/" + sessionID + "/"
}

func (l *PushListener) run(ctx context.Context, sessionID string, out chan<- progress.Update) {
	defer func() {
		l.mu.Lock()
		l.conn = nil
		l.cancel = nil
		l.mu.Unlock()
	}()

	// dial failures and abnormal closes both consume attempts: a backend
	// that accepts the upgrade and immediately drops it must back off and
	// exhaust just like one that refuses to dial
	attempt := 0
	for {
		if ctx.Err() != nil || l.isClosing() {
			return
		}

		conn, _, err := l.dialer.DialContext(ctx, l.endpoint(sessionID), nil)
		if err != nil {
			l.logger.Printf("push connect failed for %s: %v", sessionID, err)
		} else {
			l.mu.Lock()
			l.conn = conn
			l.mu.Unlock()
			l.logger.Printf("push channel connected for session %s", sessionID)

			clean, delivered := l.readLoop(ctx, conn, out)

			l.mu.Lock()
			l.conn = nil
			l.mu.Unlock()

			if clean || ctx.Err() != nil || l.isClosing() {
				return
			}
			if delivered {
				// the connection proved useful, so a later drop starts
				// backoff over instead of inheriting stale attempts
				attempt = 0
			}
		}

		attempt++
		if attempt > l.attempts {
			reconnectExhaustedTotal.Inc()
			l.logger.Printf("push reconnects exhausted for session %s after %d attempts", sessionID, l.attempts)
			return
		}
		// linear backoff: attempt * base delay
		delay := time.Duration(attempt) * l.baseDelay
		l.logger.Printf("push retry %d/%d for %s in %s", attempt, l.attempts, sessionID, delay)
		reconnectsTotal.Inc()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// readLoop drains frames until the connection drops. It reports whether the
// close was clean (server said goodbye, no reconnect) and whether at least
// one frame made it onto the update channel.
func (l *PushListener) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- progress.Update) (clean, delivered bool) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.logger.Printf("push channel closed cleanly: %v", err)
				return true, delivered
			}
			l.logger.Printf("push channel dropped: %v", err)
			return false, delivered
		}
		u, ok := FromPush(data, l.logger)
		if !ok {
			continue
		}
		select {
		case out <- u:
			updatesTotal.WithLabelValues("push").Inc()
			delivered = true
		case <-ctx.Done():
			return true, delivered
		}
	}
}

func (l *PushListener) isClosing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closing
}
