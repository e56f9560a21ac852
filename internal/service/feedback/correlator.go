package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
)

// ErrUnknownMessage means the vote does not reference an inbound message of
// the current log. It is a local validation error and is never sent upstream.
var ErrUnknownMessage = errors.New("unknown message")

// Sender transmits votes to the backend.
type Sender interface {
	SendFeedback(ctx context.Context, req chat.FeedbackRequest) error
}

// Lookup finds a message of the current conversation log by id.
type Lookup func(messageID string) (chat.Message, bool)

// Correlator binds votes to prior bot messages and keeps the single vote
// per message that the UI shows.
type Correlator struct {
	sessionID string
	sender    Sender
	logger    *slog.Logger

	mu    sync.Mutex
	votes map[string]chat.Polarity
}

// NewCorrelator creates a correlator for one session.
func NewCorrelator(sessionID string, sender Sender, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		sessionID: sessionID,
		sender:    sender,
		logger:    logger.With("component", "feedback"),
		votes:     make(map[string]chat.Polarity),
	}
}

// Record validates the vote against lookup and makes it the active vote for
// the message, replacing any earlier one. It does not transmit.
func (c *Correlator) Record(lookup Lookup, messageID string, polarity chat.Polarity) (chat.Feedback, error) {
	if polarity != chat.Positive && polarity != chat.Negative {
		return chat.Feedback{}, fmt.Errorf("invalid polarity %q", polarity)
	}

	msg, ok := lookup(messageID)
	if !ok || msg.Direction != chat.Inbound {
		c.logger.Debug("feedback for unknown message", "message_id", messageID)
		return chat.Feedback{}, fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}

	c.mu.Lock()
	c.votes[messageID] = polarity
	c.mu.Unlock()

	return chat.Feedback{MessageID: messageID, Polarity: polarity, SessionID: c.sessionID}, nil
}

// Transmit sends a recorded vote. Every attempt is sent, even when it
// replaces an earlier vote; the backend upserts.
func (c *Correlator) Transmit(ctx context.Context, fb chat.Feedback) error {
	if c.sender == nil {
		return nil
	}
	if err := c.sender.SendFeedback(ctx, fb.Request()); err != nil {
		return fmt.Errorf("sending feedback for %s: %w", fb.MessageID, err)
	}
	return nil
}

// Submit records and transmits in one call.
func (c *Correlator) Submit(ctx context.Context, lookup Lookup, messageID string, polarity chat.Polarity) error {
	fb, err := c.Record(lookup, messageID, polarity)
	if err != nil {
		return err
	}
	return c.Transmit(ctx, fb)
}

// Vote returns the active vote for a message.
func (c *Correlator) Vote(messageID string) (chat.Polarity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.votes[messageID]
	return p, ok
}
