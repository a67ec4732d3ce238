package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BroWo1/fact-check/config"
	"github.com/BroWo1/fact-check/internal/progress"
)

func pushServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func pushListener(srv *httptest.Server, attempts int, base time.Duration) *PushListener {
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return NewPushListener(
		config.BackendConfig{WSBaseURL: wsURL},
		config.TransportConfig{ReconnectAttempts: attempts, ReconnectBase: base},
		testLogger,
	)
}

func TestPushListenerDeliversFrames(t *testing.T) {
	srv := pushServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type": "step_update", "step_number": 1, "step_type": "initial_web_search"}`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type": "analysis_complete", "result": {"success": true}}`))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage() // wait for the client close
		_ = conn.Close()
	})

	l := pushListener(srv, 1, time.Millisecond)
	out := make(chan progress.Update, 8)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	l.Connect(ctx, "s1", out)

	var got []progress.Update
	for len(got) < 2 {
		select {
		case u := <-out:
			got = append(got, u)
		case <-ctx.Done():
			t.Fatalf("frames not delivered, got %+v", got)
		}
	}
	if got[0].Kind != progress.KindStep || got[1].Kind != progress.KindCompleted {
		t.Fatalf("wrong updates %+v", got)
	}
}

func TestPushListenerDropsBadFramesAndContinues(t *testing.T) {
	srv := pushServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "analysis_cancelled"}`))
		_, _, _ = conn.ReadMessage()
		_ = conn.Close()
	})

	l := pushListener(srv, 1, time.Millisecond)
	out := make(chan progress.Update, 8)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	l.Connect(ctx, "s1", out)

	select {
	case u := <-out:
		if u.Kind != progress.KindCancelled {
			t.Fatalf("expected the valid frame, got %+v", u)
		}
	case <-ctx.Done():
		t.Fatalf("valid frame never arrived")
	}
}

func TestPushListenerReconnectsAfterDrop(t *testing.T) {
	var conns int32
	srv := pushServer(t, func(conn *websocket.Conn) {
		n := atomic.AddInt32(&conns, 1)
		if n == 1 {
			// abnormal drop, client should come back
			_ = conn.Close()
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "analysis_cancelled"}`))
		_, _, _ = conn.ReadMessage()
		_ = conn.Close()
	})

	l := pushListener(srv, 3, time.Millisecond)
	out := make(chan progress.Update, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l.Connect(ctx, "s1", out)

	select {
	case u := <-out:
		if u.Kind != progress.KindCancelled {
			t.Fatalf("wrong update %+v", u)
		}
	case <-ctx.Done():
		t.Fatalf("listener never reconnected")
	}
	if atomic.LoadInt32(&conns) < 2 {
		t.Fatalf("expected a second connection")
	}
}

func TestPushListenerFlappingServerBacksOffAndExhausts(t *testing.T) {
	var conns int32
	srv := pushServer(t, func(conn *websocket.Conn) {
		atomic.AddInt32(&conns, 1)
		// accept the upgrade, then drop without a close frame
		_ = conn.Close()
	})

	l := pushListener(srv, 3, 2*time.Millisecond)
	out := make(chan progress.Update, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l.Connect(ctx, "s1", out)

	// a connection that delivers nothing consumes an attempt like a failed
	// dial: initial connect plus the capped retries, nothing more
	time.Sleep(150 * time.Millisecond)
	got := atomic.LoadInt32(&conns)
	if got > 4 {
		t.Fatalf("flapping backend dialled %d times, cap allows at most 4", got)
	}
	time.Sleep(100 * time.Millisecond)
	if again := atomic.LoadInt32(&conns); again != got {
		t.Fatalf("listener kept dialling after exhaustion: %d then %d", got, again)
	}
	select {
	case u := <-out:
		t.Fatalf("flapping channel surfaced an update: %+v", u)
	default:
	}
}

func TestPushListenerGivesUpAfterExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	l := pushListener(srv, 2, time.Millisecond)
	out := make(chan progress.Update, 8)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	l.Connect(ctx, "s1", out)

	// exhaustion is silent: no update, no panic, loop ends
	select {
	case u := <-out:
		t.Fatalf("exhaustion must not surface updates, got %+v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPushListenerCloseStopsReconnects(t *testing.T) {
	var conns int32
	srv := pushServer(t, func(conn *websocket.Conn) {
		atomic.AddInt32(&conns, 1)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	l := pushListener(srv, 5, time.Millisecond)
	out := make(chan progress.Update, 8)
	l.Connect(context.Background(), "s1", out)

	// wait for the first connection, then close deliberately
	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&conns) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	l.Close()

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&conns) != 1 {
		t.Fatalf("deliberate close must not reconnect, saw %d connections", atomic.LoadInt32(&conns))
	}
}
