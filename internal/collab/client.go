package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/abhisek/flashdrill/internal/collab"

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration // per request; default 10s
}

// Client is the HTTP implementation of Collaborator.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	tracer  trace.Tracer
}

var _ Collaborator = (*Client)(nil)

// NewClient creates a Client. httpClient may be nil. Request paths carry
// the /api prefix, so a BaseURL that already ends in /api is trimmed.
func NewClient(cfg ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/api"),
		token:   cfg.Token,
		http:    httpClient,
		tracer:  otel.Tracer(tracerName),
	}
}

func (c *Client) NextDueReview(ctx context.Context) (*Item, error) {
	var out struct {
		Item *Item `json:"item"`
	}
	status, err := c.do(ctx, "review.next", http.MethodGet, "/api/reviews/next", nil, &out)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return out.Item, nil
}

func (c *Client) RandomItem(ctx context.Context, subtopics []string) (RandomResult, error) {
	q := url.Values{}
	if len(subtopics) > 0 {
		q.Set("subtopics", strings.Join(subtopics, ","))
	}
	var out RandomResult
	if _, err := c.do(ctx, "item.random", http.MethodGet, "/api/items/random?"+q.Encode(), nil, &out); err != nil {
		return RandomResult{}, err
	}
	if out.Item == nil && !out.AllCompleted {
		return RandomResult{}, &ErrUnexpectedStatus{Status: http.StatusOK, Body: "random item response has neither item nor allCompleted"}
	}
	return out, nil
}

func (c *Client) StartSession(ctx context.Context, subtopics []string, force bool) (SessionInfo, error) {
	body := map[string]any{"subtopics": subtopics, "force": force}
	var out SessionInfo
	if _, err := c.do(ctx, "session.start", http.MethodPost, "/api/sessions", body, &out); err != nil {
		return SessionInfo{}, err
	}
	return out, nil
}

func (c *Client) FetchBatch(ctx context.Context, size int) ([]Item, error) {
	var out struct {
		Items []Item `json:"items"`
	}
	path := "/api/sessions/batch?size=" + strconv.Itoa(size)
	if _, err := c.do(ctx, "session.batch", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) SubmitRating(ctx context.Context, itemID string, rating int) (RatingResult, error) {
	var out RatingResult
	path := "/api/items/" + url.PathEscape(itemID) + "/rating"
	if _, err := c.do(ctx, "item.rate", http.MethodPost, path, map[string]int{"rating": rating}, &out); err != nil {
		return RatingResult{}, err
	}
	return out, nil
}

func (c *Client) FetchFollowUp(ctx context.Context, itemID string, difficulty string) (*FollowUpQuestion, error) {
	var out FollowUpQuestion
	path := "/api/items/" + url.PathEscape(itemID) + "/followup"
	if difficulty != "" {
		path += "?difficulty=" + url.QueryEscape(difficulty)
	}
	if _, err := c.do(ctx, "followup.fetch", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, questionID string, selected *string) (AnswerOutcome, error) {
	var out AnswerOutcome
	path := "/api/followups/" + url.PathEscape(questionID) + "/answer"
	body := map[string]*string{"selected": selected}
	if _, err := c.do(ctx, "followup.answer", http.MethodPost, path, body, &out); err != nil {
		return AnswerOutcome{}, err
	}
	return out, nil
}

func (c *Client) CooldownStatus(ctx context.Context) (CooldownStatus, error) {
	var out CooldownStatus
	if _, err := c.do(ctx, "cooldown.status", http.MethodGet, "/api/cooldown", nil, &out); err != nil {
		return CooldownStatus{}, err
	}
	return out, nil
}

func (c *Client) CompleteCooldown(ctx context.Context, completedAt time.Time) error {
	body := map[string]int64{"completedAt": completedAt.UnixMilli()}
	_, err := c.do(ctx, "cooldown.complete", http.MethodPost, "/api/cooldown/complete", body, nil)
	return err
}

func (c *Client) ResetShown(ctx context.Context) error {
	_, err := c.do(ctx, "item.reset_shown", http.MethodPost, "/api/items/reset-shown", nil, nil)
	return err
}

// do sends one JSON request inside a client span and decodes the response
// into out (if non-nil). It returns the HTTP status on success.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (int, error) {
	ctx, span := c.tracer.Start(ctx, "collab."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	status, err := c.send(ctx, method, path, body, out)
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if err != nil && !IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return status, err
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) (int, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, err
		}
		return 0, &ErrUnavailable{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, &ErrUnavailable{Err: fmt.Errorf("read response: %w", err)}
	}

	if err := statusError(resp, data, path); err != nil {
		return resp.StatusCode, err
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 && resp.StatusCode != http.StatusNoContent {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// statusError maps a non-2xx response onto the collab error taxonomy.
func statusError(resp *http.Response, body []byte, path string) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &ErrAuthRequired{Status: code}
	case code == http.StatusNotFound:
		return &ErrNotFound{Resource: path}
	case code == http.StatusTooManyRequests:
		return &ErrCooldownActive{Remaining: cooldownRemaining(resp, body)}
	case code == http.StatusConflict && errorCode(body) == "session_required":
		return &ErrSessionRequired{}
	case code >= 500:
		return &ErrUnavailable{Err: fmt.Errorf("HTTP %d", code)}
	}
	return &ErrUnexpectedStatus{Status: code, Body: strings.TrimSpace(string(body))}
}

func errorCode(body []byte) string {
	var e struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(body, &e)
	return e.Code
}

func cooldownRemaining(resp *http.Response, body []byte) time.Duration {
	var e struct {
		RemainingSeconds int `json:"remainingSeconds"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.RemainingSeconds > 0 {
		return time.Duration(e.RemainingSeconds) * time.Second
	}
	if s := resp.Header.Get("Retry-After"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 0
}
