package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrChannelUnavailable is returned by Send while Disconnected or Closed.
	ErrChannelUnavailable = errors.New("channel unavailable")
	// ErrChannelOverloaded is returned by Send when the outbox is full.
	ErrChannelOverloaded = errors.New("channel overloaded")
	// ErrChannelClosed is returned by Connect after Close.
	ErrChannelClosed = errors.New("channel closed")
)

// State is the lifecycle state of a Channel.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
	Reconnecting State = "reconnecting"
	Closed       State = "closed"
)

// Options configures a Channel.
type Options struct {
	URL    string
	Header http.Header

	QueueDepth int
	// MaxRetries bounds consecutive failed connection attempts before the
	// channel gives up and goes Disconnected. Zero retries forever.
	MaxRetries int

	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
}

// DefaultOptions returns the production defaults for url.
func DefaultOptions(url string) Options {
	return Options{
		URL:              url,
		QueueDepth:       50,
		BaseDelay:        5 * time.Second,
		MaxDelay:         60 * time.Second,
		Jitter:           0.2,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
	}
}

// Channel is one logical bidirectional websocket link to the backend. It
// reconnects on its own after unexpected closure until Close or
// StopReconnecting is called. A closed Channel cannot be reused.
type Channel struct {
	opts    Options
	dialer  *websocket.Dialer
	logger  *slog.Logger
	backoff *Backoff

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	gen        uint64
	retries    int
	conn       *websocket.Conn
	connCancel context.CancelFunc
	timer      *time.Timer
	outbox     [][]byte
	wake       chan struct{}
	onMessage  func([]byte)
	listeners  []func(State)
	states     chan State
}

// New creates a Disconnected channel. Nothing is dialed until Connect.
func New(opts Options, logger *slog.Logger) *Channel {
	defaults := DefaultOptions(opts.URL)
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaults.QueueDepth
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaults.BaseDelay
	}
	if opts.MaxDelay < opts.BaseDelay {
		opts.MaxDelay = max(defaults.MaxDelay, opts.BaseDelay)
	}
	if opts.Jitter < 0 || opts.Jitter >= 1 {
		opts.Jitter = defaults.Jitter
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaults.ReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaults.PingInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		opts:    opts,
		dialer:  &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		logger:  logger.With("component", "transport"),
		backoff: &Backoff{Base: opts.BaseDelay, Max: opts.MaxDelay, Jitter: opts.Jitter},
		ctx:     ctx,
		cancel:  cancel,
		state:   Disconnected,
		wake:    make(chan struct{}, 1),
		states:  make(chan State, 64),
	}
	go c.dispatchStates()
	return c
}

// State returns the current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnMessage registers the callback for inbound payloads. Payloads of one
// connection are delivered in receipt order from a single goroutine.
func (c *Channel) OnMessage(handler func([]byte)) {
	c.mu.Lock()
	c.onMessage = handler
	c.mu.Unlock()
}

// OnStateChange registers a listener for state transitions. Listeners run
// in transition order on a dedicated goroutine and must not block.
func (c *Channel) OnStateChange(listener func(State)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, listener)
	c.mu.Unlock()
}

// Connect starts establishing the channel. It is a no-op unless the
// channel is Disconnected.
func (c *Channel) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Closed:
		return ErrChannelClosed
	case Disconnected:
	default:
		return nil
	}

	c.retries = 0
	c.backoff.Reset()
	c.startAttemptLocked()
	return nil
}

// Send queues payload for transmission. While Connected the writer picks it
// up immediately; while Connecting or Reconnecting it waits for the link.
// Queued payloads are never dropped to make room: once QueueDepth payloads
// are waiting, Send fails with ErrChannelOverloaded.
func (c *Channel) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Disconnected, Closed:
		return ErrChannelUnavailable
	}
	if len(c.outbox) >= c.opts.QueueDepth {
		return ErrChannelOverloaded
	}

	c.outbox = append(c.outbox, payload)
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Withdraw removes a payload that is still waiting in the queue. It reports
// false when the payload was already handed to the connection or was never
// queued.
func (c *Channel) Withdraw(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, queued := range c.outbox {
		if bytes.Equal(queued, payload) {
			c.outbox = append(c.outbox[:i], c.outbox[i+1:]...)
			return true
		}
	}
	return false
}

// StopReconnecting abandons any connection attempt in progress and leaves
// the channel Disconnected with an empty queue. An established connection
// is left alone.
func (c *Channel) StopReconnecting() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Connecting && c.state != Reconnecting {
		return
	}
	c.gen++
	c.stopTimerLocked()
	c.setStateLocked(Disconnected)
}

// Close shuts the channel down for good: pending reconnects are cancelled,
// the connection is released and queued payloads are discarded.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Closed {
		return
	}
	c.gen++
	c.stopTimerLocked()
	c.dropConnLocked()
	c.outbox = nil
	c.setStateLocked(Closed)
	c.cancel()
}

func (c *Channel) startAttemptLocked() {
	c.gen++
	c.setStateLocked(Connecting)
	go c.dial(c.gen)
}

func (c *Channel) dial(gen uint64) {
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.HandshakeTimeout)
	conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.state != Connecting {
		if conn != nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		c.retries++
		c.logger.Warn("websocket dial failed", "url", c.opts.URL, "attempt", c.retries, "error", err)
		if c.opts.MaxRetries > 0 && c.retries >= c.opts.MaxRetries {
			c.setStateLocked(Disconnected)
			return
		}
		c.scheduleReconnectLocked()
		return
	}

	conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		return nil
	})

	connCtx, connCancel := context.WithCancel(c.ctx)
	c.conn = conn
	c.connCancel = connCancel
	c.retries = 0
	c.backoff.Reset()
	c.setStateLocked(Connected)

	go c.readLoop(connCtx, gen, conn)
	go c.writeLoop(connCtx, gen, conn)
	go c.pingLoop(connCtx, gen, conn)
}

func (c *Channel) scheduleReconnectLocked() {
	c.setStateLocked(Reconnecting)
	delay := c.backoff.Next()
	gen := c.gen
	c.logger.Info("scheduling reconnect", "delay", delay)

	c.stopTimerLocked()
	c.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.gen || c.state != Reconnecting {
			return
		}
		c.startAttemptLocked()
	})
}

// connectionLost moves a live connection of generation gen to Reconnecting.
func (c *Channel) connectionLost(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.state != Connected {
		return
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Warn("websocket connection lost", "error", err)
	} else {
		c.logger.Info("websocket connection closed", "error", err)
	}
	c.dropConnLocked()
	c.scheduleReconnectLocked()
}

func (c *Channel) readLoop(ctx context.Context, gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(gen, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))

		c.mu.Lock()
		handler := c.onMessage
		stale := gen != c.gen
		c.mu.Unlock()

		if stale || ctx.Err() != nil {
			return
		}
		if handler != nil {
			handler(data)
		}
	}
}

func (c *Channel) writeLoop(ctx context.Context, gen uint64, conn *websocket.Conn) {
	for {
		for {
			c.mu.Lock()
			if gen != c.gen || c.state != Connected {
				c.mu.Unlock()
				return
			}
			if len(c.outbox) == 0 {
				c.mu.Unlock()
				break
			}
			payload := c.outbox[0]
			c.outbox = c.outbox[1:]
			c.mu.Unlock()

			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				// the payload is not retried on the next connection
				c.connectionLost(gen, err)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		}
	}
}

func (c *Channel) pingLoop(ctx context.Context, gen uint64, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.connectionLost(gen, err)
				return
			}
		}
	}
}

func (c *Channel) dropConnLocked() {
	if c.connCancel != nil {
		c.connCancel()
		c.connCancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Channel) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Channel) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("channel state", "from", c.state, "to", s)
	c.state = s
	if s == Disconnected || s == Closed {
		c.outbox = nil
	}

	// A full backlog sheds its oldest transitions so listeners always see
	// the latest state.
	for {
		select {
		case c.states <- s:
			return
		default:
		}
		select {
		case old := <-c.states:
			c.logger.Warn("state listener backlog full, dropping transition", "state", old)
		default:
		}
	}
}

func (c *Channel) dispatchStates() {
	for {
		select {
		case s := <-c.states:
			c.notify(s)
		case <-c.ctx.Done():
			for {
				select {
				case s := <-c.states:
					c.notify(s)
				default:
					return
				}
			}
		}
	}
}

func (c *Channel) notify(s State) {
	c.mu.Lock()
	listeners := append([]func(State){}, c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l(s)
	}
}
