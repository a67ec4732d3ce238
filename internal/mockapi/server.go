// Package mockapi is a self-contained stand-in for the fact-check backend.
// It serves the same HTTP and WebSocket surface the real service does, with
// a scripted analysis simulation behind it, so the CLI and end-to-end tests
// can run without live infrastructure.
package mockapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BroWo1/fact-check/models"
)

// StepDelay is how long the simulation lingers on each scripted step.
type Server struct {
	logger    *log.Logger
	stepDelay time.Duration
	upgrader  websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*simSession
}

type simSession struct {
	mu         sync.Mutex
	id         string
	claim      string
	mode       models.Mode
	status     models.SessionStatus
	percentage float64
	current    string
	steps      []models.Step
	results    models.Results
	createdAt  time.Time
	watchers   map[chan []byte]struct{}
}

// Option configures the mock server.
type Option func(*Server)

// WithStepDelay sets the pause between scripted steps; tests shrink it.
func WithStepDelay(d time.Duration) Option {
	return func(s *Server) { s.stepDelay = d }
}

func New(logger *log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[MOCKAPI] ", log.LstdFlags)
	}
	s := &Server{
		logger:    logger,
		stepDelay: 800 * time.Millisecond,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*simSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the echo handler serving the backend surface.
func (s *Server) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.GET("/health/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/fact-check/", s.create)
	e.GET("/fact-check/list/", s.list)
	e.GET("/fact-check/:id/status/", s.status)
	e.GET("/fact-check/:id/results/", s.results)
	e.POST("/fact-check/:id/cancel/", s.cancel)
	e.DELETE("/fact-check/:id/delete/", s.delete)
	e.GET("/ws/fact-check/:id/", s.websocketHandler)

	return e
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Printf("mock backend listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) create(c echo.Context) error {
	claim := c.FormValue("user_input")
	if claim == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_input is required")
	}
	mode := models.Mode(c.FormValue("mode"))
	if mode == "" {
		mode = models.ModeFactCheck
	}

	sess := &simSession{
		id:        uuid.NewString(),
		claim:     claim,
		mode:      mode,
		status:    models.StatusInProgress,
		current:   "Analyzing claim...",
		createdAt: time.Now().UTC(),
		watchers:  make(map[chan []byte]struct{}),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	go s.simulate(sess)

	s.logger.Printf("created session %s (%s): %q", sess.id, mode, claim)
	return c.JSON(http.StatusOK, models.CreateSessionResponse{SessionID: sess.id})
}

func (s *Server) lookup(id string) (*simSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) status(c echo.Context) error {
	sess, ok := s.lookup(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, sess.statusPayload())
}

func (s *Server) results(c echo.Context) error {
	sess, ok := s.lookup(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.status != models.StatusCompleted {
		return echo.NewHTTPError(http.StatusNotFound, "results not ready")
	}
	return c.JSON(http.StatusOK, sess.results)
}

func (s *Server) cancel(c echo.Context) error {
	sess, ok := s.lookup(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	sess.mu.Lock()
	if sess.status == models.StatusInProgress {
		sess.status = models.StatusCancelled
	}
	sess.mu.Unlock()
	sess.broadcast(map[string]interface{}{"type": models.PushCancelled})
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) delete(c echo.Context) error {
	s.mu.Lock()
	_, ok := s.sessions[c.Param("id")]
	delete(s.sessions, c.Param("id"))
	s.mu.Unlock()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) list(c echo.Context) error {
	s.mu.Lock()
	summaries := make([]models.SessionSummary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sess.mu.Lock()
		summaries = append(summaries, models.SessionSummary{
			SessionID: sess.id,
			Claim:     sess.claim,
			Mode:      sess.mode,
			Status:    sess.status,
			CreatedAt: sess.createdAt,
		})
		sess.mu.Unlock()
	}
	s.mu.Unlock()
	return c.JSON(http.StatusOK, models.SessionList{
		Sessions: summaries,
		Total:    len(summaries),
	})
}

func (s *Server) websocketHandler(c echo.Context) error {
	sess, ok := s.lookup(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	frames := make(chan []byte, 32)
	sess.addWatcher(frames)
	defer sess.removeWatcher(frames)

	// first frame mirrors the initial status, same as the live backend
	initial := map[string]interface{}{
		"type": models.PushInitialStatus,
		"data": sess.statusPayload(),
	}
	if err := conn.WriteJSON(initial); err != nil {
		_ = conn.Close()
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case frame := <-frames:
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				_ = conn.Close()
				return nil
			}
		case <-done:
			return nil
		}
	}
}

var scriptedSteps = []struct {
	stepType    string
	description string
}{
	{"initial_web_search", "Searching for credible sources"},
	{"deeper_exploration", "Exploring sources in depth"},
	{"source_credibility_evaluation", "Evaluating source credibility"},
	{"final_conclusion", "Formulating conclusion"},
}

// simulate walks the session through the scripted steps and lands it on a
// completed verdict.
func (s *Server) simulate(sess *simSession) {
	total := len(scriptedSteps)
	for i, sc := range scriptedSteps {
		time.Sleep(s.stepDelay)
		sess.mu.Lock()
		if sess.status != models.StatusInProgress {
			sess.mu.Unlock()
			return
		}
		step := models.Step{
			StepNumber:  i + 1,
			StepType:    sc.stepType,
			Description: sc.description,
			Status:      models.StepCompleted,
			Timestamp:   time.Now().UTC(),
		}
		sess.steps = append(sess.steps, step)
		sess.percentage = float64(i+1) / float64(total) * 100
		sess.current = sc.description
		pct := sess.percentage
		sess.mu.Unlock()

		sess.broadcast(map[string]interface{}{
			"type":                models.PushStepUpdate,
			"step_number":         step.StepNumber,
			"step_type":           step.StepType,
			"description":         step.Description,
			"status":              step.Status,
			"timestamp":           step.Timestamp,
			"progress_percentage": pct,
		})
	}

	time.Sleep(s.stepDelay)
	sess.mu.Lock()
	if sess.status != models.StatusInProgress {
		sess.mu.Unlock()
		return
	}
	sess.status = models.StatusCompleted
	sess.percentage = 100
	sess.current = "Analysis complete"
	sess.results = models.Results{
		SessionID:       sess.id,
		Verdict:         "likely_true",
		ConfidenceScore: 0.87,
		OriginalClaim:   sess.claim,
		Summary:         "The claim is supported by the majority of credible sources reviewed.",
		DetailedReport:  "## Verdict\n\nThe claim is likely true based on simulated analysis.",
		Sources: []models.Source{
			{Title: "Example Source", URL: "https://example.com/article", Domain: "example.com", Credibility: 0.9},
		},
		Mode:      sess.mode,
		Status:    models.StatusCompleted,
		CreatedAt: sess.createdAt,
	}
	sess.mu.Unlock()

	sess.broadcast(map[string]interface{}{
		"type":   models.PushComplete,
		"result": map[string]interface{}{"success": true},
	})
	s.logger.Printf("session %s completed", sess.id)
}

func (sess *simSession) statusPayload() models.StatusPayload {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	pct := sess.percentage
	completed := len(sess.steps)
	total := len(scriptedSteps)
	steps := append([]models.Step(nil), sess.steps...)
	return models.StatusPayload{
		Status:             sess.status,
		ProgressPercentage: &pct,
		CurrentStep:        &models.CurrentStep{Description: sess.current},
		CompletedSteps:     &completed,
		TotalSteps:         &total,
		Steps:              steps,
	}
}

func (sess *simSession) addWatcher(ch chan []byte) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.watchers[ch] = struct{}{}
}

func (sess *simSession) removeWatcher(ch chan []byte) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	delete(sess.watchers, ch)
}

func (sess *simSession) broadcast(frame map[string]interface{}) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	for ch := range sess.watchers {
		select {
		case ch <- data:
		default:
			// slow watcher, drop the frame
		}
	}
}
