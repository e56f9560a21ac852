package chat

import "time"

// Session is the durable conversational identity of one client install.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
