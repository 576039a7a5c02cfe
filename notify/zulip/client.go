// Package zulip posts monitor notifications to a Zulip server.
package zulip

import (
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

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/amartya2002/liveness-monitor/notify"
)

var ErrRateLimited = errors.New("zulip rate limit exceeded")

// APIError is a non-success reply from the Zulip API.
type APIError struct {
	StatusCode int
	Code       string
	Msg        string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("zulip: %d %s: %s", e.StatusCode, e.Code, e.Msg)
	}
	return fmt.Sprintf("zulip: %d: %s", e.StatusCode, e.Msg)
}

type apiResponse struct {
	Result string `json:"result"`
	Msg    string `json:"msg"`
	Code   string `json:"code"`
	ID     uint64 `json:"id"`
}

// Client implements notify.Sender and notify.Editor.
type Client struct {
	creds      Credentials
	httpClient *http.Client
	retryBase  time.Duration
	retryMax   time.Duration
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithRetry tunes the backoff used on HTTP 429. max bounds the total time
// spent retrying; the caller's context still wins.
func WithRetry(initial, max time.Duration) Option {
	return func(cl *Client) {
		cl.retryBase = initial
		cl.retryMax = max
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retryBase:  500 * time.Millisecond,
		retryMax:   10 * time.Second,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendMessage posts text to a stream (under topic) or to a user.
func (c *Client) SendMessage(ctx context.Context, to notify.Destination, topic, text string) (uint64, error) {
	form := url.Values{}
	form.Set("content", text)
	switch to.Kind {
	case notify.StreamByName:
		form.Set("type", "stream")
		form.Set("to", to.Name)
		form.Set("topic", topic)
	case notify.StreamByID:
		form.Set("type", "stream")
		form.Set("to", strconv.Itoa(to.ID))
		form.Set("topic", topic)
	case notify.UserByName:
		form.Set("type", "private")
		form.Set("to", to.Name)
	case notify.UserByID:
		form.Set("type", "private")
		form.Set("to", "["+strconv.Itoa(to.ID)+"]")
	default:
		return 0, fmt.Errorf("zulip: unsupported destination %s", to)
	}

	resp, err := c.call(ctx, http.MethodPost, "/api/v1/messages", form)
	if err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// EditMessage replaces the content of a message sent earlier.
func (c *Client) EditMessage(ctx context.Context, id uint64, text string) error {
	form := url.Values{}
	form.Set("content", text)
	_, err := c.call(ctx, http.MethodPatch, "/api/v1/messages/"+strconv.FormatUint(id, 10), form)
	return err
}

func (c *Client) call(ctx context.Context, method, path string, form url.Values) (apiResponse, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase
	b.MaxElapsedTime = c.retryMax

	op := func() (apiResponse, error) {
		resp, err := c.do(ctx, method, path, form)
		if errors.Is(err, ErrRateLimited) {
			c.logger.Debug("Zulip rate limited, backing off", zap.String("path", path))
			return resp, err
		}
		if err != nil {
			return resp, backoff.Permanent(err)
		}
		return resp, nil
	}
	return backoff.RetryWithData[apiResponse](op, backoff.WithContext(b, ctx))
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) (apiResponse, error) {
	var out apiResponse

	req, err := http.NewRequestWithContext(ctx, method, c.creds.Site+path, strings.NewReader(form.Encode()))
	if err != nil {
		return out, fmt.Errorf("zulip: build request: %w", err)
	}
	req.SetBasicAuth(c.creds.Email, c.creds.Key)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("zulip: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return out, ErrRateLimited
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return out, fmt.Errorf("zulip: read response: %w", err)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, &APIError{StatusCode: resp.StatusCode, Msg: strings.TrimSpace(string(body))}
	}
	if resp.StatusCode/100 != 2 || out.Result != "success" {
		return out, &APIError{StatusCode: resp.StatusCode, Code: out.Code, Msg: out.Msg}
	}
	return out, nil
}
