package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BroWo1/fact-check/config"
	"github.com/BroWo1/fact-check/models"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return New(
		config.BackendConfig{BaseURL: srv.URL, MaxRetries: 3},
		nil,
		WithRetryBase(time.Millisecond),
	)
}

func TestCreateSession(t *testing.T) {
	var gotMode, gotInput, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/fact-check/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotInput = r.FormValue("user_input")
		gotMode = r.FormValue("mode")
		gotRequestID = r.FormValue("client_request_id")
		_ = json.NewEncoder(w).Encode(models.CreateSessionResponse{SessionID: "abc-123"})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	id, err := c.CreateSession(context.Background(), CreateRequest{Input: "The sky is green", Mode: models.ModeFactCheck})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "abc-123" {
		t.Fatalf("expected abc-123, got %q", id)
	}
	if gotInput != "The sky is green" || gotMode != "fact_check" {
		t.Fatalf("wrong form values: input=%q mode=%q", gotInput, gotMode)
	}
	if gotRequestID == "" {
		t.Fatalf("expected a client_request_id")
	}
}

func TestCreateSessionAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		f, header, err := r.FormFile("uploaded_file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			_ = f.Close()
		}
		if header != nil && header.Filename != "evidence.txt" {
			t.Errorf("wrong filename %q", header.Filename)
		}
		_ = json.NewEncoder(w).Encode(models.CreateSessionResponse{SessionID: "abc"})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.CreateSession(context.Background(), CreateRequest{
		Input:      "claim",
		Attachment: &Attachment{Name: "evidence.txt", Reader: strings.NewReader("evidence")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
}

func TestCreateSessionNeverRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.CreateSession(context.Background(), CreateRequest{Input: "claim"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("create must not retry, got %d calls", calls)
	}
}

func TestGetStatusRetriesTransientFaults(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(models.StatusPayload{Status: models.StatusInProgress})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	status, err := c.GetStatus(context.Background(), "s1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != models.StatusInProgress {
		t.Fatalf("wrong status %q", status.Status)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestGetStatusDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.GetStatus(context.Background(), "s1")
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("400 must not retry, got %d calls", calls)
	}
}

func TestGetStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.GetStatus(context.Background(), "gone")
	if !IsSessionNotFound(err) {
		t.Fatalf("expected session_not_found, got %v", err)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Message != "Session not found" {
		t.Fatalf("wrong message: %v", err)
	}
	if apiErr.Retryable() {
		t.Fatalf("not-found must not be retryable")
	}
}

func TestStatusMessages(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{http.StatusTooManyRequests, "Too many requests. Please wait a moment before trying again"},
		{http.StatusRequestEntityTooLarge, "File too large. Please upload a smaller file"},
		{http.StatusInternalServerError, "Server error occurred while processing your request"},
	}
	for _, tc := range cases {
		if got := statusMessage(tc.status, ""); got != tc.want {
			t.Fatalf("status %d: got %q", tc.status, got)
		}
	}
	if got := statusMessage(http.StatusTeapot, "server says no"); got != "server says no" {
		t.Fatalf("expected server message passthrough, got %q", got)
	}
	if got := statusMessage(http.StatusTeapot, ""); got != "An error occurred" {
		t.Fatalf("expected generic fallback, got %q", got)
	}
}

func TestNetworkErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := New(config.BackendConfig{BaseURL: srv.URL, MaxRetries: 1}, nil, WithRetryBase(time.Millisecond))
	_, err := c.GetStatus(context.Background(), "s1")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindNetwork {
		t.Fatalf("expected network_error, got %v", err)
	}
	if !apiErr.Retryable() {
		t.Fatalf("network errors must be retryable")
	}
	if apiErr.Message != "Unable to connect to the server. Please check your internet connection." {
		t.Fatalf("wrong message: %q", apiErr.Message)
	}
}

func TestGetResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fact-check/s1/results/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(models.Results{Verdict: "likely_true", ConfidenceScore: 0.9})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	res, err := c.GetResults(context.Background(), "s1")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if res.Verdict != "likely_true" {
		t.Fatalf("wrong verdict %q", res.Verdict)
	}
}

func TestCancelAndDelete(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	if err := c.CancelSession(context.Background(), "s1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := c.DeleteSession(context.Background(), "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	want := []string{"POST /fact-check/s1/cancel/", "DELETE /fact-check/s1/delete/"}
	for i, w := range want {
		if paths[i] != w {
			t.Fatalf("call %d: got %q, want %q", i, paths[i], w)
		}
	}
}

func TestListSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page_size") != "10" || r.URL.Query().Get("offset") != "5" {
			t.Errorf("missing pagination: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(models.SessionList{
			Sessions: []models.SessionSummary{{SessionID: "s1", Status: models.StatusCompleted}},
			Total:    1,
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	list, err := c.ListSessions(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Total != 1 || len(list.Sessions) != 1 {
		t.Fatalf("wrong list %+v", list)
	}
}

func TestMalformedResponseIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.GetStatus(context.Background(), "s1")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != KindParse {
		t.Fatalf("expected parse_error, got %v", err)
	}
	if apiErr.Retryable() {
		t.Fatalf("parse errors must not be retryable")
	}
}
