package chat

import "time"

// Sender identifies the author of a transcript entry on the backend.
type Sender string

const (
	SenderCustomer Sender = "user"
	SenderBot      Sender = "bot"
	SenderSystem   Sender = "system"
)

// TranscriptMessage is one stored message of a backend conversation.
type TranscriptMessage struct {
	ID             string    `json:"id"`
	Sender         Sender    `json:"message_type"`
	Content        string    `json:"content"`
	Intent         string    `json:"intent,omitempty"`
	Confidence     float64   `json:"confidence_score"`
	Sentiment      string    `json:"sentiment"`
	SentimentScore float64   `json:"sentiment_score"`
	Helpful        *bool     `json:"is_helpful,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Conversation is the backend record of one session.
type Conversation struct {
	SessionID     string `json:"session_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	IsActive  bool       `json:"is_active"`

	OverallSentiment string  `json:"overall_sentiment"`
	SentimentScore   float64 `json:"sentiment_score"`

	EscalatedToHuman bool   `json:"escalated_to_human"`
	EscalationReason string `json:"escalation_reason,omitempty"`

	CustomerRating   *int   `json:"customer_rating,omitempty"`
	CustomerFeedback string `json:"customer_feedback,omitempty"`

	Messages []TranscriptMessage `json:"messages"`
}

// Reply is what a reply generator produces for one customer message.
type Reply struct {
	Text        string
	Intent      string
	Confidence  float64
	Suggestions []string
}

// EndRequest closes a conversation with an optional rating.
type EndRequest struct {
	SessionID string `json:"session_id"`
	Rating    *int   `json:"rating,omitempty"`
	Feedback  string `json:"feedback,omitempty"`
}
