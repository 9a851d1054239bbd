// Package notify listens on a websocket for server side change events and
// turns each one into a sync trigger.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
	readLimit         = 1 << 20
)

type Listener struct {
	URL string
	// Token returns the bearer token to dial with. It is called on every
	// connection attempt so a refreshed session is picked up.
	Token   func() string
	Trigger func()
	Logger  zerolog.Logger

	HTTPClient *http.Client
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Run keeps a connection open until ctx ends, reconnecting with capped
// exponential backoff. It returns nil when ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	if strings.TrimSpace(l.URL) == "" {
		return fmt.Errorf("notify: url is required")
	}
	attempt := 0
	for {
		received, err := l.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if received {
			attempt = 0
		}
		attempt++
		delay := l.backoff(attempt)
		l.Logger.Warn().Err(err).Dur("retryIn", delay).Msg("change listener disconnected")
		if err := wait(ctx, delay); err != nil {
			return nil
		}
	}
}

// session runs one connection. It reports whether any message arrived.
func (l *Listener) session(ctx context.Context) (bool, error) {
	header := http.Header{}
	if l.Token != nil {
		if token := strings.TrimSpace(l.Token()); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}
	conn, _, err := websocket.Dial(ctx, l.URL, &websocket.DialOptions{
		HTTPClient: l.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(readLimit)
	l.Logger.Info().Str("url", l.URL).Msg("change listener connected")

	received := false
	for {
		_, _, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				err = errors.New("server closed the connection")
			}
			return received, err
		}
		received = true
		l.Logger.Debug().Msg("change notification")
		if l.Trigger != nil {
			l.Trigger()
		}
	}
}

func (l *Listener) backoff(attempt int) time.Duration {
	delay := l.MinBackoff
	if delay <= 0 {
		delay = defaultMinBackoff
	}
	maxDelay := l.MaxBackoff
	if maxDelay <= 0 {
		maxDelay = defaultMaxBackoff
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

func wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
