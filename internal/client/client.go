// Package client talks to the fact-check backend API. Transport faults are
// classified here and either retried internally (bounded exponential
// backoff) or surfaced once as a typed Error.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/BroWo1/fact-check/config"
	"github.com/BroWo1/fact-check/models"
)

// Attachment is an optional file submitted alongside a claim.
type Attachment struct {
	Name   string
	Reader io.Reader
}

// CreateRequest describes a new analysis session.
type CreateRequest struct {
	Input      string
	Mode       models.Mode
	Style      string // research mode only
	Attachment *Attachment
}

// Client is the HTTP API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries uint64
	retryBase  time.Duration
	logger     *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithRetryBase sets the initial backoff interval between retries.
func WithRetryBase(d time.Duration) Option {
	return func(c *Client) { c.retryBase = d }
}

func New(cfg config.BackendConfig, logger *log.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "[API] ", log.LstdFlags)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		maxRetries: uint64(retries),
		retryBase:  time.Second,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession submits a claim and returns the backend session id. Create
// calls are never retried: a retry could start a duplicate analysis.
func (c *Client) CreateSession(ctx context.Context, req CreateRequest) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("user_input", req.Input); err != nil {
		return "", fmt.Errorf("encode user_input: %w", err)
	}
	mode := req.Mode
	if mode == "" {
		mode = models.ModeFactCheck
	}
	if err := mw.WriteField("mode", string(mode)); err != nil {
		return "", fmt.Errorf("encode mode: %w", err)
	}
	if req.Style != "" && mode == models.ModeResearch {
		if err := mw.WriteField("style", req.Style); err != nil {
			return "", fmt.Errorf("encode style: %w", err)
		}
	}
	if err := mw.WriteField("client_request_id", uuid.NewString()); err != nil {
		return "", fmt.Errorf("encode client_request_id: %w", err)
	}
	if req.Attachment != nil {
		part, err := mw.CreateFormFile("uploaded_file", req.Attachment.Name)
		if err != nil {
			return "", fmt.Errorf("create attachment part: %w", err)
		}
		if _, err := io.Copy(part, req.Attachment.Reader); err != nil {
			return "", fmt.Errorf("copy attachment: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finish multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/fact-check/", &body)
	if err != nil {
		return "", fmt.Errorf("build create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var resp models.CreateSessionResponse
	if err := c.do(httpReq, &resp); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", &Error{Kind: KindParse, Message: "create response missing session_id"}
	}
	return resp.SessionID, nil
}

// GetStatus fetches the current status payload for a session.
func (c *Client) GetStatus(ctx context.Context, sessionID string) (models.StatusPayload, error) {
	var out models.StatusPayload
	err := c.withRetry(ctx, func() error {
		out = models.StatusPayload{}
		return c.getJSON(ctx, fmt.Sprintf("/fact-check/%s/status/", sessionID), &out)
	})
	return out, err
}

// GetResults fetches the final results for a completed session.
func (c *Client) GetResults(ctx context.Context, sessionID string) (models.Results, error) {
	var out models.Results
	err := c.withRetry(ctx, func() error {
		out = models.Results{}
		return c.getJSON(ctx, fmt.Sprintf("/fact-check/%s/results/", sessionID), &out)
	})
	return out, err
}

// CancelSession asks the backend to stop a session. Callers treat failures
// as best-effort.
func (c *Client) CancelSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/fact-check/%s/cancel/", c.baseURL, sessionID), nil)
	if err != nil {
		return fmt.Errorf("build cancel request: %w", err)
	}
	return c.do(req, nil)
}

// ListSessions pages through the backend's session history.
func (c *Client) ListSessions(ctx context.Context, pageSize, offset int) (models.SessionList, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	var out models.SessionList
	err := c.withRetry(ctx, func() error {
		out = models.SessionList{}
		path := "/fact-check/list/?page_size=" + strconv.Itoa(pageSize) + "&offset=" + strconv.Itoa(offset)
		return c.getJSON(ctx, path, &out)
	})
	return out, err
}

// DeleteSession removes a session from the backend's history.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/fact-check/%s/delete/", c.baseURL, sessionID), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	return c.do(req, nil)
}

// Health probes the backend health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.getJSON(ctx, "/health/", nil)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

// withRetry runs op under bounded exponential backoff, retrying only faults
// classified as retryable.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryBase
	bo := backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var apiErr *Error
		if errors.As(err, &apiErr) {
			if !apiErr.Retryable() {
				return backoff.Permanent(err)
			}
			c.logger.Printf("retryable request failure: %v", err)
			return err
		}
		return backoff.Permanent(err)
	}, bo)
}

// apiErrorBody is the error shape the backend returns alongside non-2xx
// statuses.
type apiErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Detail  string `json:"detail"`
}

func (b apiErrorBody) text() string {
	switch {
	case b.Message != "":
		return b.Message
	case b.Error != "":
		return b.Error
	default:
		return b.Detail
	}
}

// do executes the request and classifies the outcome.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{
			Kind:    KindNetwork,
			Message: "Unable to connect to the server. Please check your internet connection.",
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var body apiErrorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(raw, &body)
		if resp.StatusCode == http.StatusNotFound {
			return &Error{
				Kind:    KindSessionNotFound,
				Status:  resp.StatusCode,
				Message: "Session not found",
			}
		}
		return &Error{
			Kind:    KindAPI,
			Status:  resp.StatusCode,
			Message: statusMessage(resp.StatusCode, body.text()),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindParse, Message: "malformed response body", Err: err}
	}
	return nil
}
