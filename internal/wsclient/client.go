// Package wsclient is the subscriber side of the health channel: it dials
// the hub, dispatches typed frames to registered handlers, answers
// keepalive, and reconnects with capped backoff when the connection drops.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/postprober/healthwatch/internal/domain"
	"github.com/postprober/healthwatch/internal/ws"
)

// State is the client connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handlers receives dispatched frames. Nil fields are skipped. Handlers run
// on the client's read goroutine and must not block.
type Handlers struct {
	OnConnection func(clientID string)
	OnAlert      func(v domain.Verdict)
	OnSnapshot   func(platforms []domain.CheckedTarget)
	OnHistory    func(alerts []domain.Verdict)
	OnStats      func(stats ws.Stats)
	OnDisconnect func(err error)
}

type Options struct {
	URL          string
	BaseDelay    time.Duration // first reconnect delay
	MaxDelay     time.Duration // backoff ceiling
	MaxAttempts  int           // consecutive failures before giving up
	AlertBufSize int           // local alert mirror capacity
}

// ErrNotConnected is returned by requests made while the client has no
// live connection.
var ErrNotConnected = errors.New("wsclient: not connected")

// Client maintains one subscription to the hub. Safe for concurrent use.
type Client struct {
	logger   *zap.Logger
	opts     Options
	handlers Handlers

	writeMu  sync.Mutex // gorilla allows a single concurrent writer
	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	cancel   context.CancelFunc
	attempts int
	backoff  *backoff.Backoff

	alerts       *alertBuffer
	lastSnapshot []domain.CheckedTarget
	snapshotAt   time.Time
}

func New(logger *zap.Logger, opts Options, handlers Handlers) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.AlertBufSize <= 0 {
		opts.AlertBufSize = 50
	}
	return &Client{
		logger:   logger,
		opts:     opts,
		handlers: handlers,
		alerts:   newAlertBuffer(opts.AlertBufSize),
		backoff: &backoff.Backoff{
			Min:    opts.BaseDelay,
			Max:    opts.MaxDelay,
			Factor: 2,
			Jitter: false,
		},
	}
}

// Connect starts the connection loop. It returns immediately; state changes
// surface through the handlers. Calling Connect while already running is a
// no-op.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state != StateDisconnected || c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = StateConnecting
	c.attempts = 0
	c.backoff.Reset()
	c.mu.Unlock()

	go c.run(ctx)
}

// Disconnect closes the connection and cancels any pending reconnect timer.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.cancel = nil
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Alerts returns the locally mirrored alert history, oldest first.
func (c *Client) Alerts() []domain.Verdict {
	return c.alerts.list()
}

// LastSnapshot returns the most recent full health snapshot and when it was
// received, so a disconnected UI can keep rendering it with a staleness tag.
func (c *Client) LastSnapshot() ([]domain.CheckedTarget, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSnapshot, c.snapshotAt
}

func (c *Client) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.mu.Lock()
		c.state = StateConnecting
		c.mu.Unlock()

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, nil)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.state = StateConnected
			c.attempts = 0
			c.backoff.Reset()
			c.mu.Unlock()

			err = c.readLoop(ctx, conn)
			_ = conn.Close()
			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
		}

		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		c.state = StateDisconnected
		c.attempts++
		attempts := c.attempts
		c.mu.Unlock()

		if c.handlers.OnDisconnect != nil {
			c.handlers.OnDisconnect(err)
		}

		if attempts > c.opts.MaxAttempts {
			c.logger.Warn("reconnect_gave_up", zap.Int("attempts", attempts-1))
			c.mu.Lock()
			c.cancel = nil
			c.mu.Unlock()
			return
		}

		delay := c.backoff.Duration()
		c.logger.Info("reconnect_scheduled",
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			// explicit Disconnect cancels the pending attempt
			return
		case <-time.After(delay):
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var env ws.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("bad_frame", zap.Error(err))
			continue
		}
		c.dispatch(conn, env)
	}
}

func (c *Client) dispatch(conn *websocket.Conn, env ws.Envelope) {
	switch env.Type {
	case ws.MsgConnection:
		if c.handlers.OnConnection != nil {
			c.handlers.OnConnection(env.ClientID)
		}
	case ws.MsgHealthAlert:
		if env.Alert != nil {
			c.alerts.append(*env.Alert)
			if c.handlers.OnAlert != nil {
				c.handlers.OnAlert(*env.Alert)
			}
		}
	case ws.MsgHealthUpdate:
		c.mu.Lock()
		c.lastSnapshot = env.Platforms
		c.snapshotAt = time.Now()
		c.mu.Unlock()
		if c.handlers.OnSnapshot != nil {
			c.handlers.OnSnapshot(env.Platforms)
		}
	case ws.MsgHistory:
		// replayed history may overlap alerts we already hold
		for _, v := range env.Alerts {
			c.alerts.append(v)
		}
		if c.handlers.OnHistory != nil {
			c.handlers.OnHistory(env.Alerts)
		}
	case ws.MsgStats:
		if env.Stats != nil && c.handlers.OnStats != nil {
			c.handlers.OnStats(*env.Stats)
		}
	case ws.MsgPing:
		frame, _ := json.Marshal(ws.Envelope{Type: ws.MsgPong, Timestamp: time.Now().UTC()})
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.TextMessage, frame)
		c.writeMu.Unlock()
	default:
		c.logger.Warn("unknown_frame", zap.String("type", string(env.Type)))
	}
}

// RequestHistory asks the hub for its alert history; the reply arrives as a
// history frame.
func (c *Client) RequestHistory() error {
	return c.send(ws.Envelope{Type: ws.MsgGetHistory})
}

// RequestStats asks the hub for connection statistics.
func (c *Client) RequestStats() error {
	return c.send(ws.Envelope{Type: ws.MsgGetStats})
}

func (c *Client) send(env ws.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}
