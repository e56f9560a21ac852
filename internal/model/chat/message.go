package chat

import "time"

// Direction tells who authored a message.
type Direction string

const (
	Outbound Direction = "outbound"
	Inbound  Direction = "inbound"
	System   Direction = "system"
)

// DeliveryState tracks an outbound message through the responder round trip.
type DeliveryState string

const (
	Pending   DeliveryState = "pending"
	Delivered DeliveryState = "delivered"
	Failed    DeliveryState = "failed"
)

// Intent labels attached to system messages.
const (
	IntentError      = "error"
	IntentEscalation = "escalation"
)

// DefaultMaxMessageLength caps user input unless configured otherwise.
const DefaultMaxMessageLength = 5000

// Message is one entry of the append-only conversation log.
type Message struct {
	ID            string        `json:"id"`
	Direction     Direction     `json:"direction"`
	Text          string        `json:"text"`
	Intent        string        `json:"intent,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	DeliveryState DeliveryState `json:"deliveryState,omitempty"`
}

// Snapshot is a copy of the user-visible conversation state.
type Snapshot struct {
	IsOpen      bool      `json:"isOpen"`
	IsTyping    bool      `json:"isTyping"`
	UnreadCount int       `json:"unreadCount"`
	Messages    []Message `json:"messages"`
}
