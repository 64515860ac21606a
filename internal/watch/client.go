// Package watch subscribes to a server's push channel and keeps the
// subscription alive across disconnects.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/AnEntrypoint/sequential-gui/internal/events"
)

// Status is the connection state reported to the consumer.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Update is either a received event or a connection status change.
type Update struct {
	Event  events.Event
	Status Status
	Err    error // cause of a disconnect
}

// RetryConfig configures reconnect backoff.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryConfig returns the default reconnect policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     250 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// Options configures a Client.
type Options struct {
	URL    string   // ws://host:port/ws
	Task   string   // only events for this task (plus untagged ones)
	Topics []string // only these topics; empty means all
	Retry  RetryConfig
	Logger *slog.Logger
}

// Client is a reconnecting push channel subscriber. Events published while
// it is disconnected are lost; the server does not replay.
type Client struct {
	url    string
	retry  RetryConfig
	logger *slog.Logger
	dialer *websocket.Dialer
}

// New validates opts and builds the subscription URL.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing watch url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("watch url %q: unsupported scheme %q", opts.URL, u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	q := u.Query()
	if opts.Task != "" {
		q.Set("task", opts.Task)
	}
	if len(opts.Topics) > 0 {
		q.Set("topics", strings.Join(opts.Topics, ","))
	}
	u.RawQuery = q.Encode()

	retry := opts.Retry
	if retry.InitialInterval <= 0 {
		retry = DefaultRetryConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:    u.String(),
		retry:  retry,
		logger: logger,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// URL returns the full subscription URL.
func (c *Client) URL() string {
	return c.url
}

// Run delivers updates to out until ctx is cancelled, reconnecting with
// exponential backoff whenever the connection drops. It returns ctx.Err().
// out is never closed by Run.
func (c *Client) Run(ctx context.Context, out chan<- Update) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retry.InitialInterval
	policy.MaxInterval = c.retry.MaxInterval
	policy.Multiplier = c.retry.Multiplier
	policy.RandomizationFactor = c.retry.RandomizationFactor
	policy.MaxElapsedTime = 0 // retry until cancelled

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		send(ctx, out, Update{Status: StatusConnecting})

		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("dialing %s: %w", c.url, err)
		}
		// A successful connection starts the next outage from the shortest delay.
		policy.Reset()
		send(ctx, out, Update{Status: StatusConnected})

		err = c.stream(ctx, conn, out)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("watch connection lost, retrying", "error", err, "wait", wait)
		send(ctx, out, Update{Status: StatusDisconnected, Err: err})
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ctx.Err()
	}
	return err
}

// stream reads messages until the connection fails or ctx ends.
func (c *Client) stream(ctx context.Context, conn *websocket.Conn, out chan<- Update) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading: %w", err)
		}
		ev, err := events.Decode(data)
		if err != nil {
			c.logger.Warn("skipping undecodable message", "error", err)
			continue
		}
		if !send(ctx, out, Update{Event: ev}) {
			return ctx.Err()
		}
	}
}

// send delivers u unless ctx ends first.
func send(ctx context.Context, out chan<- Update, u Update) bool {
	select {
	case out <- u:
		return true
	case <-ctx.Done():
		return false
	}
}
