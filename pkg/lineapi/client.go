package lineapi

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

	"github.com/google/uuid"

	"github.com/dmitrymomot/linebilling/pkg/logger"
)

const maxMessages = 5

// Client sends reply and push messages through the LINE Messaging API.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *Breaker
	backoff Backoff
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithBackoff replaces the retry backoff.
func WithBackoff(b Backoff) Option {
	return func(cl *Client) {
		if b != nil {
			cl.backoff = b
		}
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

// New returns a Client for cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.ChannelAccessToken == "" {
		return nil, ErrMissingToken
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.line.me"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker: NewBreaker(cfg.BreakerThreshold, cfg.BreakerRecovery),
		backoff: DefaultBackoff(),
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Reply answers a webhook event using its reply token.
func (c *Client) Reply(ctx context.Context, replyToken string, messages ...Message) error {
	if replyToken == "" {
		return ErrMissingRecipient
	}
	if err := checkMessages(messages); err != nil {
		return err
	}
	body := struct {
		ReplyToken string    `json:"replyToken"`
		Messages   []Message `json:"messages"`
	}{replyToken, messages}
	return c.post(ctx, "/v2/bot/message/reply", body, nil, c.cfg.ReplyRetries)
}

// Push sends messages to a user outside the reply window. A single retry key
// is reused across attempts so LINE delivers at most once.
func (c *Client) Push(ctx context.Context, to string, messages ...Message) error {
	if to == "" {
		return ErrMissingRecipient
	}
	if err := checkMessages(messages); err != nil {
		return err
	}
	body := struct {
		To       string    `json:"to"`
		Messages []Message `json:"messages"`
	}{to, messages}
	headers := map[string]string{"X-Line-Retry-Key": uuid.NewString()}
	return c.post(ctx, "/v2/bot/message/push", body, headers, c.cfg.PushRetries)
}

func checkMessages(messages []Message) error {
	switch {
	case len(messages) == 0:
		return ErrNoMessages
	case len(messages) > maxMessages:
		return ErrTooManyMessages
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, headers map[string]string, retries int) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			case <-time.After(c.backoff.Delay(attempt)):
			}
		}

		err := c.attempt(ctx, path, payload, headers)
		if err == nil {
			c.breaker.Success()
			return nil
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			// The API answered; a client error says nothing about its health.
			c.breaker.Success()
			return err
		}
		c.breaker.Failure()
		c.log.WarnContext(ctx, "line api attempt failed",
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
			logger.Error(err),
		)
	}
	return lastErr
}

func (c *Client) attempt(ctx context.Context, path string, payload []byte, headers map[string]string) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Join(ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.ChannelAccessToken)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return errors.Join(ErrTimeout, err)
		}
		return errors.Join(ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	// 409 on push means the retry key was already accepted.
	if resp.StatusCode == http.StatusConflict && headers["X-Line-Retry-Key"] != "" {
		return nil
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: resp.Header.Get("X-Line-Request-Id")}
	var decoded struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &decoded) == nil && decoded.Message != "" {
		apiErr.Message = decoded.Message
	} else {
		apiErr.Message = fmt.Sprintf("unexpected response %q", truncate(string(raw), 200))
	}
	return apiErr
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
