package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-helpdesk/backend/internal/analysis/intent"
	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
)

var (
	ErrSessionRequired = errors.New("session_id is required")
	ErrMessageRequired = errors.New("message is required")
	ErrMessageTooLong  = errors.New("message is too long")
	ErrSessionNotFound = errors.New("conversation not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
)

// DefaultEscalationReason is recorded when a manual escalation gives none.
const DefaultEscalationReason = "Manual escalation"

// Generator produces the bot reply for a customer message. history holds
// the earlier messages of the conversation, oldest first.
type Generator interface {
	Generate(ctx context.Context, query string, history []chat.TranscriptMessage) (chat.Reply, error)
}

// Service keeps the support conversations and produces replies.
type Service struct {
	generator     Generator
	logger        *slog.Logger
	maxMessageLen int
	now           func() time.Time

	mu            sync.RWMutex
	conversations map[string]*chat.Conversation
	// bot message id -> session id
	messageIndex map[string]string
}

// NewService bootstraps the in-memory conversation ledger.
func NewService(generator Generator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		generator:     generator,
		logger:        logger.With("component", "chat"),
		maxMessageLen: chat.DefaultMaxMessageLength,
		now:           func() time.Time { return time.Now().UTC() },
		conversations: make(map[string]*chat.Conversation),
		messageIndex:  make(map[string]string),
	}
}

// Reply records a customer message, generates and records the bot reply and
// evaluates escalation. A conversation is escalated at most once; only the
// reply that triggered it carries should_escalate.
func (s *Service) Reply(ctx context.Context, req chat.ResponderRequest) (chat.ResponderResult, error) {
	text := strings.TrimSpace(req.Message)
	switch {
	case req.SessionID == "":
		return chat.ResponderResult{}, ErrSessionRequired
	case text == "":
		return chat.ResponderResult{}, ErrMessageRequired
	case utf8.RuneCountInString(text) > s.maxMessageLen:
		return chat.ResponderResult{}, fmt.Errorf("%w: limit is %d characters", ErrMessageTooLong, s.maxMessageLen)
	}

	sentiment := intent.AnalyzeSentiment(text)

	s.mu.Lock()
	conv := s.getOrCreateLocked(req)
	history := append([]chat.TranscriptMessage(nil), conv.Messages...)
	customer := s.appendLocked(conv, chat.TranscriptMessage{
		Sender:         chat.SenderCustomer,
		Content:        text,
		Sentiment:      string(sentiment.Label),
		SentimentScore: sentiment.Value,
	})
	s.mu.Unlock()

	reply, err := s.generator.Generate(ctx, text, history)
	if err != nil {
		// the transcript only keeps answered customer messages
		s.mu.Lock()
		s.removeLocked(conv, customer.ID)
		s.mu.Unlock()
		return chat.ResponderResult{}, fmt.Errorf("generating reply: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bot := s.appendLocked(conv, chat.TranscriptMessage{
		Sender:     chat.SenderBot,
		Content:    reply.Text,
		Intent:     reply.Intent,
		Confidence: reply.Confidence,
		Sentiment:  string(intent.Neutral),
	})
	s.messageIndex[bot.ID] = conv.SessionID

	overall := s.updateSentimentLocked(conv)

	escalate := false
	if !conv.EscalatedToHuman {
		var reason string
		escalate, reason = intent.ShouldEscalate(overall, len(conv.Messages), customerContents(conv))
		if escalate {
			conv.EscalatedToHuman = true
			conv.EscalationReason = reason
			s.logger.Info("conversation escalated", "session_id", conv.SessionID, "reason", reason)
		}
	}

	return chat.ResponderResult{
		Response:       reply.Text,
		Intent:         reply.Intent,
		Confidence:     reply.Confidence,
		Sentiment:      string(sentiment.Label),
		SentimentScore: sentiment.Value,
		Suggestions:    reply.Suggestions,
		ShouldEscalate: escalate,
		MessageID:      bot.ID,
	}, nil
}

// RecordFeedback stores a vote on a bot message. A later vote replaces the
// earlier one.
func (s *Service) RecordFeedback(_ context.Context, req chat.FeedbackRequest) error {
	if req.MessageID == "" {
		return fmt.Errorf("%w: message_id is required", ErrMessageNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID, ok := s.messageIndex[req.MessageID]
	if !ok || (req.SessionID != "" && req.SessionID != sessionID) {
		return ErrMessageNotFound
	}
	conv := s.conversations[sessionID]
	for i := range conv.Messages {
		if conv.Messages[i].ID == req.MessageID {
			helpful := req.IsPositive
			conv.Messages[i].Helpful = &helpful
			return nil
		}
	}
	return ErrMessageNotFound
}

// Escalate hands the conversation to a human agent.
func (s *Service) Escalate(_ context.Context, sessionID, reason string) (chat.Conversation, error) {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultEscalationReason
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return chat.Conversation{}, ErrSessionNotFound
	}
	conv.EscalatedToHuman = true
	conv.EscalationReason = reason
	return copyConversation(conv), nil
}

// End closes the conversation and stores the customer's rating.
func (s *Service) End(_ context.Context, req chat.EndRequest) (chat.Conversation, error) {
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		return chat.Conversation{}, ErrInvalidRating
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[req.SessionID]
	if !ok {
		return chat.Conversation{}, ErrSessionNotFound
	}
	ended := s.now()
	conv.IsActive = false
	conv.EndedAt = &ended
	conv.CustomerRating = req.Rating
	conv.CustomerFeedback = req.Feedback
	return copyConversation(conv), nil
}

// Get returns a copy of the conversation with its transcript.
func (s *Service) Get(_ context.Context, sessionID string) (chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return chat.Conversation{}, ErrSessionNotFound
	}
	return copyConversation(conv), nil
}

func (s *Service) getOrCreateLocked(req chat.ResponderRequest) *chat.Conversation {
	conv, ok := s.conversations[req.SessionID]
	if !ok {
		conv = &chat.Conversation{
			SessionID:        req.SessionID,
			CustomerName:     req.CustomerName,
			CustomerEmail:    req.CustomerEmail,
			StartedAt:        s.now(),
			IsActive:         true,
			OverallSentiment: string(intent.Neutral),
			Messages:         make([]chat.TranscriptMessage, 0, 16),
		}
		s.conversations[req.SessionID] = conv
		s.logger.Debug("conversation started", "session_id", req.SessionID)
	}
	return conv
}

func (s *Service) appendLocked(conv *chat.Conversation, msg chat.TranscriptMessage) chat.TranscriptMessage {
	msg.ID = uuid.NewString()
	msg.Timestamp = s.now()
	conv.Messages = append(conv.Messages, msg)
	return msg
}

func (s *Service) removeLocked(conv *chat.Conversation, id string) {
	for i := range conv.Messages {
		if conv.Messages[i].ID == id {
			conv.Messages = append(conv.Messages[:i], conv.Messages[i+1:]...)
			return
		}
	}
}

func (s *Service) updateSentimentLocked(conv *chat.Conversation) intent.Score {
	scores := make([]float64, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		scores = append(scores, m.SentimentScore)
	}
	overall := intent.Overall(scores)
	conv.OverallSentiment = string(overall.Label)
	conv.SentimentScore = overall.Value
	return overall
}

func customerContents(conv *chat.Conversation) []string {
	var out []string
	for _, m := range conv.Messages {
		if m.Sender == chat.SenderCustomer {
			out = append(out, m.Content)
		}
	}
	return out
}

func copyConversation(conv *chat.Conversation) chat.Conversation {
	out := *conv
	out.Messages = make([]chat.TranscriptMessage, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return out
}
