package chat

// ResponderRequest is what the classification/response service receives,
// both over the request/response fallback and inside live channel frames.
type ResponderRequest struct {
	Message       string `json:"message"`
	SessionID     string `json:"session_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
}

// ResponderResult is the reply of the classification/response service.
type ResponderResult struct {
	Response       string   `json:"response"`
	Intent         string   `json:"intent"`
	Confidence     float64  `json:"confidence,omitempty"`
	Sentiment      string   `json:"sentiment,omitempty"`
	SentimentScore float64  `json:"sentiment_score,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
	ShouldEscalate bool     `json:"should_escalate"`
	MessageID      string   `json:"message_id,omitempty"`
}
