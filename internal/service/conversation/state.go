package conversation

import (
	"fmt"

	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
)

// State is the user-visible conversation: open flag, bot typing indicator,
// unread badge and the append-only message log. It is not safe for
// concurrent use; the Controller owns it and mutates it from its loop.
type State struct {
	open     bool
	typing   bool
	unread   int
	messages []chat.Message
	index    map[string]int
}

// NewState returns a closed, empty conversation.
func NewState() *State {
	return &State{index: make(map[string]int)}
}

// Open marks the conversation visible and clears the unread badge.
func (s *State) Open() {
	s.open = true
	s.unread = 0
}

// Close hides the conversation. Inbound messages count as unread from now on.
func (s *State) Close() {
	s.open = false
}

// IsOpen reports whether the conversation is visible.
func (s *State) IsOpen() bool { return s.open }

// Unread returns the unread badge count.
func (s *State) Unread() int { return s.unread }

// SetTyping updates the typing indicator and reports whether it changed.
func (s *State) SetTyping(typing bool) bool {
	if s.typing == typing {
		return false
	}
	s.typing = typing
	return true
}

// Append adds m to the end of the log. Ids are unique within the log.
func (s *State) Append(m chat.Message) error {
	if m.ID == "" {
		return fmt.Errorf("message without id")
	}
	if _, ok := s.index[m.ID]; ok {
		return fmt.Errorf("duplicate message id %s", m.ID)
	}
	s.index[m.ID] = len(s.messages)
	s.messages = append(s.messages, m)
	if m.Direction == chat.Inbound && !s.open {
		s.unread++
	}
	return nil
}

// MarkDelivery moves an outbound message to a new delivery state. Text and
// position are never touched.
func (s *State) MarkDelivery(id string, ds chat.DeliveryState) (chat.Message, bool) {
	i, ok := s.index[id]
	if !ok || s.messages[i].Direction != chat.Outbound {
		return chat.Message{}, false
	}
	s.messages[i].DeliveryState = ds
	return s.messages[i], true
}

// Lookup finds a message by id.
func (s *State) Lookup(id string) (chat.Message, bool) {
	i, ok := s.index[id]
	if !ok {
		return chat.Message{}, false
	}
	return s.messages[i], true
}

// Has reports whether id is already used in the log.
func (s *State) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of logged messages.
func (s *State) Len() int { return len(s.messages) }

// Snapshot copies the current state.
func (s *State) Snapshot() chat.Snapshot {
	msgs := make([]chat.Message, len(s.messages))
	copy(msgs, s.messages)
	return chat.Snapshot{
		IsOpen:      s.open,
		IsTyping:    s.typing,
		UnreadCount: s.unread,
		Messages:    msgs,
	}
}
