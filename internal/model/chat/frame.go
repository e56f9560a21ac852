package chat

// Live channel frame types.
const (
	FrameChatMessage = "chat_message"
	FrameError       = "error"
)

// Frame is a JSON object exchanged over the live channel. Type is the
// discriminator; the remaining fields are populated per type.
type Frame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`

	Intent         string   `json:"intent,omitempty"`
	Confidence     float64  `json:"confidence,omitempty"`
	Sentiment      string   `json:"sentiment,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
	ShouldEscalate bool     `json:"should_escalate,omitempty"`
	MessageID      string   `json:"message_id,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// Result extracts the responder payload carried by a chat_message frame.
func (f Frame) Result() ResponderResult {
	return ResponderResult{
		Response:       f.Message,
		Intent:         f.Intent,
		Confidence:     f.Confidence,
		Sentiment:      f.Sentiment,
		Suggestions:    f.Suggestions,
		ShouldEscalate: f.ShouldEscalate,
		MessageID:      f.MessageID,
	}
}

// ResultFrame wraps a responder result for delivery over the live channel.
func ResultFrame(requestID string, res ResponderResult) Frame {
	return Frame{
		Type:           FrameChatMessage,
		RequestID:      requestID,
		Message:        res.Response,
		Intent:         res.Intent,
		Confidence:     res.Confidence,
		Sentiment:      res.Sentiment,
		Suggestions:    res.Suggestions,
		ShouldEscalate: res.ShouldEscalate,
		MessageID:      res.MessageID,
	}
}
