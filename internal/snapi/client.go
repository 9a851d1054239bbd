package snapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// APIVersion is the protocol revision sent with every request.
const APIVersion = "20190520"

var ErrMFARequired = errors.New("two-factor authentication required")

// MFARequiredError is returned when the server wants a two-factor code. Key
// names the parameter the code must be sent under.
type MFARequiredError struct {
	Key     string
	Message string
}

func (e *MFARequiredError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrMFARequired.Error()
}

func (e *MFARequiredError) Is(target error) bool {
	return target == ErrMFARequired
}

// APIError is an error reported by the server in its JSON error envelope.
type APIError struct {
	StatusCode int
	Tag        string
	Message    string
}

func (e *APIError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Tag, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

type Logger interface {
	Printf(format string, args ...any)
}

// Client talks to a Standard Notes server. Transport failures, 429 and 5xx
// responses are retried with capped exponential backoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     Logger
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	codec Codec

	mu    sync.Mutex
	token string

	syncMu    sync.Mutex
	syncToken string
}

type ClientOptions struct {
	HTTPClient *http.Client
	Logger     Logger
	Codec      Codec
}

func NewClient(baseURL, token string, opts ClientOptions) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://sync.standardnotes.org"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	codec := opts.Codec
	if codec == nil {
		codec = PlainCodec{}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     opts.Logger,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
		token:      strings.TrimSpace(token),
		codec:      codec,
	}
}

// SetToken swaps the bearer token, e.g. after the session file changed.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = strings.TrimSpace(token)
}

func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
		Tag     string `json:"tag"`
		Payload struct {
			MFAKey string `json:"mfa_key"`
		} `json:"payload"`
	} `json:"error"`
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, body any, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		if token := c.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries && ctx.Err() == nil {
				c.logf("%s %s failed, retrying: %v", method, requestPath, err)
				if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payloadBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			c.logf("%s %s returned %d, retrying", method, requestPath, resp.StatusCode)
			if waitErr := waitWithContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var envelope errorEnvelope
		_ = json.Unmarshal(payloadBytes, &envelope)
		if envelope.Error != nil {
			if envelope.Error.Tag == "mfa-required" {
				return &MFARequiredError{Key: envelope.Error.Payload.MFAKey, Message: envelope.Error.Message}
			}
			return &APIError{
				StatusCode: resp.StatusCode,
				Tag:        envelope.Error.Tag,
				Message:    envelope.Error.Message,
			}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &APIError{
				StatusCode: resp.StatusCode,
				Message:    strings.TrimSpace(string(payloadBytes)),
			}
		}
		if out == nil {
			return nil
		}
		if len(bytes.TrimSpace(payloadBytes)) == 0 {
			return fmt.Errorf("%s %s: empty response", method, requestPath)
		}
		if err := json.Unmarshal(payloadBytes, out); err != nil {
			return fmt.Errorf("%s %s: invalid response: %w", method, requestPath, err)
		}
		return nil
	}
}

func (c *Client) logf(format string, args ...any) {
	if c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		if retryAfter > maxDelay {
			return maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		delta := time.Until(ts)
		if delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
