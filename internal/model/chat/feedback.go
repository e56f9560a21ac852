package chat

// Polarity is a thumbs-up or thumbs-down vote.
type Polarity string

const (
	Positive Polarity = "positive"
	Negative Polarity = "negative"
)

// Feedback binds a vote to a prior inbound message.
type Feedback struct {
	MessageID string   `json:"messageId"`
	Polarity  Polarity `json:"polarity"`
	SessionID string   `json:"sessionId"`
}

// FeedbackRequest is the wire shape of the feedback call.
type FeedbackRequest struct {
	MessageID  string `json:"message_id"`
	IsPositive bool   `json:"is_positive"`
	SessionID  string `json:"session_id"`
}

// Request converts the vote into its wire form.
func (f Feedback) Request() FeedbackRequest {
	return FeedbackRequest{
		MessageID:  f.MessageID,
		IsPositive: f.Polarity == Positive,
		SessionID:  f.SessionID,
	}
}
