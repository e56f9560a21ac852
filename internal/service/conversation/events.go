package conversation

import (
	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
	"github.com/zhouzirui/z-helpdesk/backend/internal/service/transport"
)

// EventType discriminates UI events.
type EventType string

const (
	// EventMessage carries a message newly appended to the log.
	EventMessage EventType = "message"
	// EventMessageUpdated carries an outbound message whose delivery state changed.
	EventMessageUpdated EventType = "message_updated"
	EventTyping         EventType = "typing"
	EventUnread         EventType = "unread"
	// EventSuggestions carries quick replies. They are not logged.
	EventSuggestions EventType = "suggestions"
	EventFocusInput  EventType = "focus_input"
	// EventError reports a rejected user action.
	EventError        EventType = "error"
	EventChannelState EventType = "channel_state"
	// EventDegraded warns that history will not survive a restart.
	EventDegraded EventType = "degraded"
)

// Event is one item of the controller's outbound stream. Only the fields
// belonging to Type are set.
type Event struct {
	Type EventType

	Message      chat.Message
	Typing       bool
	Unread       int
	Suggestions  []string
	ChannelState transport.State
	Err          error
}
