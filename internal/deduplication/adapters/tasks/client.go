// Package tasks is the HTTP adapter to the task subsystem.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	dmodels "dedup/internal/deduplication/models"
	id "dedup/pkg/domain"
	dErrors "dedup/pkg/domain-errors"
	"dedup/pkg/platform/middleware/request"
)

const (
	createPath     = "/v1/tasks"
	defaultTimeout = 10 * time.Second
	tokenTTL       = time.Minute
	// maxErrorBody bounds how much of an error response ends up in logs.
	maxErrorBody = 4 << 10
)

// PermCreateTask is granted to the tokens this client mints.
const PermCreateTask = "tasks.create"

// TokenIssuer mints a bearer token acting as the given user.
type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, perms []string, expiresIn time.Duration) (string, error)
}

// Client creates review tasks over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenIssuer
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// WithTokenIssuer makes every request carry a short-lived token for the
// acting user.
func WithTokenIssuer(t TokenIssuer) Option {
	return func(cl *Client) {
		cl.tokens = t
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateTask submits desc and returns the created task's handle.
func (c *Client) CreateTask(ctx context.Context, desc dmodels.TaskDescriptor) (dmodels.TaskHandle, error) {
	body, err := json.Marshal(desc)
	if err != nil {
		return dmodels.TaskHandle{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode task")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createPath, bytes.NewReader(body))
	if err != nil {
		return dmodels.TaskHandle{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build task request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if requestID := request.GetRequestID(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	if c.tokens != nil {
		token, err := c.tokens.GenerateAccessToken(desc.ActingUser, []string{PermCreateTask}, tokenTTL)
		if err != nil {
			return dmodels.TaskHandle{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint task token")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return dmodels.TaskHandle{}, dErrors.Wrap(err, dErrors.CodeTimeout, "task subsystem timed out")
		}
		return dmodels.TaskHandle{}, dErrors.Wrap(err, dErrors.CodeInternal, "task subsystem unavailable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return dmodels.TaskHandle{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read task response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dmodels.TaskHandle{}, c.statusError(ctx, resp.StatusCode, raw)
	}

	var parsed createResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return dmodels.TaskHandle{}, dErrors.Wrap(err, dErrors.CodeInternal, "malformed task response")
	}
	taskID, err := id.ParseTaskID(parsed.ID)
	if err != nil {
		return dmodels.TaskHandle{}, dErrors.Wrap(err, dErrors.CodeInternal, "malformed task response")
	}
	return dmodels.TaskHandle{ID: taskID, Status: parsed.Status}, nil
}

func (c *Client) statusError(ctx context.Context, status int, body []byte) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	c.logger.WarnContext(ctx, "task subsystem rejected request",
		"status", status,
		"body", strings.TrimSpace(string(body)),
	)
	msg := fmt.Sprintf("task subsystem returned %d", status)
	switch {
	case status == http.StatusUnauthorized:
		return dErrors.New(dErrors.CodeUnauthorized, msg)
	case status == http.StatusForbidden:
		return dErrors.New(dErrors.CodeForbidden, msg)
	case status == http.StatusConflict:
		return dErrors.New(dErrors.CodeConflict, msg)
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return dErrors.New(dErrors.CodeTimeout, msg)
	case status >= 400 && status < 500:
		return dErrors.New(dErrors.CodeBadRequest, msg)
	default:
		return dErrors.New(dErrors.CodeInternal, msg)
	}
}
