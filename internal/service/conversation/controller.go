package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
	"github.com/zhouzirui/z-helpdesk/backend/internal/service/escalation"
	"github.com/zhouzirui/z-helpdesk/backend/internal/service/feedback"
	"github.com/zhouzirui/z-helpdesk/backend/internal/service/responder"
	"github.com/zhouzirui/z-helpdesk/backend/internal/service/session"
	"github.com/zhouzirui/z-helpdesk/backend/internal/service/transport"
)

var (
	// ErrResponderTimeout means no reply arrived within Config.ResponderTimeout.
	ErrResponderTimeout = errors.New("responder timeout")
	// ErrInvalidMessage rejects empty or oversized user input.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrNotResendable rejects Resend of anything but a failed outbound message.
	ErrNotResendable = errors.New("message cannot be resent")
	// ErrControllerClosed is returned by every call after Shutdown.
	ErrControllerClosed = errors.New("conversation controller closed")
)

// Fixed system message texts.
const (
	ApologyText = "Sorry, I'm having trouble responding right now. Please try again."
	HandoffText = "I'm connecting you with a human agent. Someone will be with you shortly."
)

const feedbackTimeout = 10 * time.Second

// Channel is the live transport. *transport.Channel implements it.
type Channel interface {
	Connect() error
	Send(payload []byte) error
	Withdraw(payload []byte) bool
	OnMessage(handler func([]byte))
	OnStateChange(listener func(transport.State))
	Close()
}

// Responder is the request/response fallback path.
type Responder interface {
	Respond(ctx context.Context, req chat.ResponderRequest) (chat.ResponderResult, error)
}

// Identity resolves the session the conversation runs under.
type Identity interface {
	GetOrCreate(ctx context.Context) (chat.Session, error)
}

// Policy decides on hand-off notices.
type Policy interface {
	Evaluate(res chat.ResponderResult) escalation.Decision
}

// Deps are the collaborators of a Controller. Channel and Feedback may be
// nil: without a channel every turn uses the responder, without a feedback
// sender votes are only recorded locally.
type Deps struct {
	Identity  Identity
	Channel   Channel
	Responder Responder
	Feedback  feedback.Sender
	Policy    Policy
	Logger    *slog.Logger
}

// Config tunes a Controller.
type Config struct {
	MaxMessageLength int
	ResponderTimeout time.Duration
	EventBuffer      int

	CustomerName  string
	CustomerEmail string
}

func (c Config) withDefaults() Config {
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = chat.DefaultMaxMessageLength
	}
	if c.ResponderTimeout <= 0 {
		c.ResponderTimeout = 15 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	return c
}

// turn is one outbound message awaiting its reply.
type turn struct {
	requestID string
	messageID string
	text      string
	live      bool
	payload   []byte
	timer     *time.Timer
	cancel    context.CancelFunc
}

// Controller runs one conversation. Every mutation happens on a single loop
// goroutine; the exported methods hand work to it and wait for the outcome.
type Controller struct {
	cfg       Config
	channel   Channel
	responder Responder
	policy    Policy
	votes     *feedback.Correlator
	logger    *slog.Logger
	now       func() time.Time

	session  chat.Session
	degraded bool

	ctx    context.Context
	cancel context.CancelFunc

	cmds     chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	events   chan Event

	// owned by the loop
	state   *State
	gen     uint64
	pending map[string]*turn
	order   []string
}

// New resolves the session, wires the channel callbacks and starts the
// conversation loop. Storage failures degrade to an ephemeral session and
// are reported as an EventDegraded instead of an error.
func New(ctx context.Context, deps Deps, cfg Config) (*Controller, error) {
	if deps.Identity == nil || deps.Responder == nil {
		return nil, fmt.Errorf("conversation: identity and responder are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	sess, err := deps.Identity.GetOrCreate(ctx)
	degraded := false
	if err != nil {
		if !errors.Is(err, session.ErrStorageUnavailable) {
			return nil, fmt.Errorf("resolving session: %w", err)
		}
		degraded = true
	}

	policy := deps.Policy
	if policy == nil {
		policy = &escalation.Policy{}
	}

	lifetime, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:       cfg,
		channel:   deps.Channel,
		responder: deps.Responder,
		policy:    policy,
		votes:     feedback.NewCorrelator(sess.ID, deps.Feedback, logger),
		logger:    logger.With("component", "conversation", "session_id", sess.ID),
		now:       time.Now,
		session:   sess,
		degraded:  degraded,
		ctx:       lifetime,
		cancel:    cancel,
		cmds:      make(chan func(), 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		events:    make(chan Event, cfg.EventBuffer),
		state:     NewState(),
		pending:   make(map[string]*turn),
	}

	if degraded {
		c.logger.Warn("session storage unavailable, history will not survive a restart", "error", err)
		c.emit(Event{Type: EventDegraded, Err: err})
	}

	go c.run()

	if c.channel != nil {
		c.channel.OnMessage(func(payload []byte) {
			c.post(func() { c.handleFrame(payload) })
		})
		c.channel.OnStateChange(func(s transport.State) {
			c.post(func() { c.emit(Event{Type: EventChannelState, ChannelState: s}) })
		})
		if err := c.channel.Connect(); err != nil {
			c.logger.Warn("live channel connect failed", "error", err)
		}
	}

	return c, nil
}

// Session returns the session this conversation runs under.
func (c *Controller) Session() chat.Session { return c.session }

// Degraded reports whether the session is ephemeral.
func (c *Controller) Degraded() bool { return c.degraded }

// Events returns the UI event stream. It is closed by Shutdown.
func (c *Controller) Events() <-chan Event { return c.events }

// Open shows the conversation, clears the unread badge and asks the UI to
// focus the input.
func (c *Controller) Open() error {
	return c.call(func() {
		had := c.state.Unread()
		c.state.Open()
		if had != 0 {
			c.emit(Event{Type: EventUnread, Unread: 0})
		}
		c.emit(Event{Type: EventFocusInput})
	})
}

// Close hides the conversation.
func (c *Controller) Close() error {
	return c.call(func() { c.state.Close() })
}

// SendMessage appends text as an outbound message and starts its turn. The
// returned message is the optimistic log entry, still pending.
func (c *Controller) SendMessage(text string) (chat.Message, error) {
	var (
		msg     chat.Message
		sendErr error
	)
	if err := c.call(func() { msg, sendErr = c.handleSend(text) }); err != nil {
		return chat.Message{}, err
	}
	return msg, sendErr
}

// Resend starts a new turn for the text of a failed outbound message. The
// failed entry stays in the log as it is.
func (c *Controller) Resend(messageID string) (chat.Message, error) {
	var (
		msg       chat.Message
		resendErr error
	)
	err := c.call(func() {
		prev, ok := c.state.Lookup(messageID)
		if !ok || prev.Direction != chat.Outbound || prev.DeliveryState != chat.Failed {
			resendErr = fmt.Errorf("%w: %s", ErrNotResendable, messageID)
			return
		}
		msg = c.appendOutbound(prev.Text)
		c.startTurn(msg)
	})
	if err != nil {
		return chat.Message{}, err
	}
	return msg, resendErr
}

// SendFeedback records a vote for an inbound message and transmits it in
// the background. Transmission failures are logged only.
func (c *Controller) SendFeedback(messageID string, polarity chat.Polarity) error {
	var recordErr error
	err := c.call(func() {
		fb, err := c.votes.Record(c.state.Lookup, messageID, polarity)
		if err != nil {
			c.logger.Info("feedback rejected", "message_id", messageID, "error", err)
			recordErr = err
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(c.ctx, feedbackTimeout)
			defer cancel()
			if err := c.votes.Transmit(ctx, fb); err != nil {
				c.logger.Warn("feedback not delivered", "message_id", fb.MessageID, "error", err)
			}
		}()
	})
	if err != nil {
		return err
	}
	return recordErr
}

// Vote returns the active vote for a message.
func (c *Controller) Vote(messageID string) (chat.Polarity, bool) {
	return c.votes.Vote(messageID)
}

// Snapshot copies the conversation state. After Shutdown it returns the
// final state.
func (c *Controller) Snapshot() chat.Snapshot {
	var snap chat.Snapshot
	if err := c.call(func() { snap = c.state.Snapshot() }); err != nil {
		<-c.done
		return c.state.Snapshot()
	}
	return snap
}

// Shutdown ends the session: pending turns are abandoned, late results are
// dropped, the live channel is closed and the event stream ends.
func (c *Controller) Shutdown() {
	c.stopOnce.Do(func() { close(c.quit) })
	<-c.done
	if c.channel != nil {
		c.channel.Close()
	}
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.cmds:
			fn()
		case <-c.quit:
			c.teardown()
			return
		}
	}
}

func (c *Controller) teardown() {
	c.gen++
	for _, t := range c.pending {
		c.stopTurn(t)
	}
	c.pending = map[string]*turn{}
	c.order = nil
	c.cancel()
	close(c.events)
}

// post queues fn for the loop. It reports false once the loop has stopped.
func (c *Controller) post(fn func()) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.cmds <- fn:
		return true
	case <-c.done:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (c *Controller) call(fn func()) error {
	ran := make(chan struct{})
	if !c.post(func() { fn(); close(ran) }) {
		return ErrControllerClosed
	}
	select {
	case <-ran:
		return nil
	case <-c.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrControllerClosed
		}
	}
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event stream full, dropping event", "type", ev.Type)
	}
}

func (c *Controller) handleSend(text string) (chat.Message, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		err := fmt.Errorf("%w: empty message", ErrInvalidMessage)
		c.emit(Event{Type: EventError, Err: err})
		return chat.Message{}, err
	case utf8.RuneCountInString(text) > c.cfg.MaxMessageLength:
		err := fmt.Errorf("%w: longer than %d characters", ErrInvalidMessage, c.cfg.MaxMessageLength)
		c.emit(Event{Type: EventError, Err: err})
		return chat.Message{}, err
	}

	msg := c.appendOutbound(text)
	c.startTurn(msg)
	return msg, nil
}

func (c *Controller) appendOutbound(text string) chat.Message {
	msg := chat.Message{
		ID:            uuid.NewString(),
		Direction:     chat.Outbound,
		Text:          text,
		Timestamp:     c.now(),
		DeliveryState: chat.Pending,
	}
	c.appendMessage(msg)
	return msg
}

// startTurn sends msg over the live channel, or through the responder when
// the channel refuses it. Each turn reaches the responder exactly once.
func (c *Controller) startTurn(msg chat.Message) {
	t := &turn{requestID: uuid.NewString(), messageID: msg.ID, text: msg.Text}
	c.pending[t.requestID] = t
	c.order = append(c.order, t.requestID)
	c.syncTyping()

	gen := c.gen
	t.timer = time.AfterFunc(c.cfg.ResponderTimeout, func() {
		c.post(func() {
			c.resolve(gen, t.requestID, chat.ResponderResult{}, ErrResponderTimeout)
		})
	})

	if c.channel != nil {
		payload, err := json.Marshal(chat.Frame{
			Type:      chat.FrameChatMessage,
			RequestID: t.requestID,
			SessionID: c.session.ID,
			Message:   t.text,
		})
		if err == nil {
			err = c.channel.Send(payload)
		}
		if err == nil {
			t.live = true
			t.payload = payload
			return
		}
		c.logger.Debug("live channel refused message, using fallback", "request_id", t.requestID, "error", err)
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.ResponderTimeout)
	t.cancel = cancel
	req := chat.ResponderRequest{
		Message:       t.text,
		SessionID:     c.session.ID,
		CustomerName:  c.cfg.CustomerName,
		CustomerEmail: c.cfg.CustomerEmail,
	}
	go func() {
		res, err := c.responder.Respond(ctx, req)
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrResponderTimeout, err)
		}
		c.post(func() { c.resolve(gen, t.requestID, res, err) })
	}()
}

// resolve completes a pending turn. Results from a previous generation or
// for a turn that already completed are dropped.
func (c *Controller) resolve(gen uint64, requestID string, res chat.ResponderResult, err error) {
	if gen != c.gen {
		c.logger.Debug("dropping result from previous generation", "request_id", requestID)
		return
	}
	t, ok := c.pending[requestID]
	if !ok {
		c.logger.Debug("dropping late result", "request_id", requestID, "error", err)
		return
	}
	c.finishTurn(t)

	if err != nil {
		c.failTurn(t, err)
		return
	}
	c.completeTurn(t, res)
}

func (c *Controller) finishTurn(t *turn) {
	c.stopTurn(t)
	delete(c.pending, t.requestID)
	for i, id := range c.order {
		if id == t.requestID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// stopTurn releases the timer and any in-flight call of t. A live payload
// still waiting in the channel queue is taken back so it never reaches the
// responder after the turn ended.
func (c *Controller) stopTurn(t *turn) {
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.cancel != nil {
		t.cancel()
	}
	if t.live && c.channel != nil && c.channel.Withdraw(t.payload) {
		c.logger.Debug("withdrew queued payload", "request_id", t.requestID)
	}
}

func (c *Controller) failTurn(t *turn, err error) {
	c.logger.Warn("turn failed", "request_id", t.requestID, "live", t.live, "error", err)
	c.markDelivery(t.messageID, chat.Failed)
	c.syncTyping()
	c.appendMessage(chat.Message{
		ID:        uuid.NewString(),
		Direction: chat.System,
		Text:      ApologyText,
		Intent:    chat.IntentError,
		Timestamp: c.now(),
	})
}

func (c *Controller) completeTurn(t *turn, res chat.ResponderResult) {
	c.markDelivery(t.messageID, chat.Delivered)
	c.syncTyping()
	c.deliverReply(res)
}

// deliverReply logs an inbound reply, then its suggestions, then any
// hand-off notice.
func (c *Controller) deliverReply(res chat.ResponderResult) {
	id := res.MessageID
	if id == "" || c.state.Has(id) {
		id = uuid.NewString()
	}
	c.appendMessage(chat.Message{
		ID:        id,
		Direction: chat.Inbound,
		Text:      res.Response,
		Intent:    res.Intent,
		Timestamp: c.now(),
	})
	if !c.state.IsOpen() {
		c.emit(Event{Type: EventUnread, Unread: c.state.Unread()})
	}

	if len(res.Suggestions) > 0 {
		c.emit(Event{Type: EventSuggestions, Suggestions: append([]string(nil), res.Suggestions...)})
	}

	if d := c.policy.Evaluate(res); d.Escalate {
		c.logger.Info("escalating to human agent", "reason", d.Reason, "intent", res.Intent)
		c.appendMessage(chat.Message{
			ID:        uuid.NewString(),
			Direction: chat.System,
			Text:      HandoffText,
			Intent:    chat.IntentEscalation,
			Timestamp: c.now(),
		})
	}
}

// handleFrame routes one live channel payload. Unknown frame types are
// ignored.
func (c *Controller) handleFrame(payload []byte) {
	var f chat.Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		c.logger.Warn("ignoring malformed frame", "error", err)
		return
	}

	switch f.Type {
	case chat.FrameChatMessage:
		if f.RequestID == "" {
			if t := c.oldestLiveTurn(); t != nil {
				f.RequestID = t.requestID
			} else {
				c.deliverReply(f.Result())
				return
			}
		}
		c.resolve(c.gen, f.RequestID, f.Result(), nil)
	case chat.FrameError:
		if f.RequestID == "" {
			c.logger.Warn("live channel error", "error", f.Error)
			return
		}
		c.resolve(c.gen, f.RequestID, chat.ResponderResult{}, fmt.Errorf("%w: %s", responder.ErrResponder, f.Error))
	default:
		c.logger.Debug("ignoring frame", "type", f.Type)
	}
}

func (c *Controller) oldestLiveTurn() *turn {
	for _, id := range c.order {
		if t := c.pending[id]; t.live {
			return t
		}
	}
	return nil
}

func (c *Controller) appendMessage(m chat.Message) {
	if err := c.state.Append(m); err != nil {
		c.logger.Error("message not logged", "message_id", m.ID, "error", err)
		return
	}
	c.emit(Event{Type: EventMessage, Message: m})
}

func (c *Controller) markDelivery(id string, ds chat.DeliveryState) {
	if m, ok := c.state.MarkDelivery(id, ds); ok {
		c.emit(Event{Type: EventMessageUpdated, Message: m})
	}
}

func (c *Controller) syncTyping() {
	typing := len(c.pending) > 0
	if c.state.SetTyping(typing) {
		c.emit(Event{Type: EventTyping, Typing: typing})
	}
}
