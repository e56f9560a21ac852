package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
)

func msg(id string, dir chat.Direction) chat.Message {
	return chat.Message{ID: id, Direction: dir, Text: id, Timestamp: time.Now()}
}

func TestState_AppendOnly(t *testing.T) {
	s := NewState()

	require.NoError(t, s.Append(msg("a", chat.Outbound)))
	require.NoError(t, s.Append(msg("b", chat.Inbound)))
	assert.Error(t, s.Append(msg("a", chat.Inbound)), "ids are unique")
	assert.Error(t, s.Append(chat.Message{Direction: chat.System}), "id required")

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "a", snap.Messages[0].ID)
	assert.Equal(t, "b", snap.Messages[1].ID)

	snap.Messages[0].Text = "mutated"
	got, ok := s.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.Text, "snapshots are copies")
}

func TestState_Unread(t *testing.T) {
	s := NewState()

	require.NoError(t, s.Append(msg("in-1", chat.Inbound)))
	require.NoError(t, s.Append(msg("out-1", chat.Outbound)))
	require.NoError(t, s.Append(msg("sys-1", chat.System)))
	require.NoError(t, s.Append(msg("in-2", chat.Inbound)))
	assert.Equal(t, 2, s.Unread(), "only inbound messages count")

	s.Open()
	assert.Equal(t, 0, s.Unread())
	require.NoError(t, s.Append(msg("in-3", chat.Inbound)))
	assert.Equal(t, 0, s.Unread(), "nothing is unread while open")

	s.Open()
	s.Close()
	s.Close()
	require.NoError(t, s.Append(msg("in-4", chat.Inbound)))
	assert.Equal(t, 1, s.Unread())
	assert.False(t, s.IsOpen())
}

func TestState_MarkDelivery(t *testing.T) {
	s := NewState()
	out := msg("out", chat.Outbound)
	out.DeliveryState = chat.Pending
	require.NoError(t, s.Append(out))
	require.NoError(t, s.Append(msg("in", chat.Inbound)))

	updated, ok := s.MarkDelivery("out", chat.Failed)
	require.True(t, ok)
	assert.Equal(t, chat.Failed, updated.DeliveryState)
	assert.Equal(t, "out", updated.Text)

	_, ok = s.MarkDelivery("in", chat.Delivered)
	assert.False(t, ok, "only outbound messages have a delivery state")
	_, ok = s.MarkDelivery("missing", chat.Delivered)
	assert.False(t, ok)
}

func TestState_Typing(t *testing.T) {
	s := NewState()
	assert.False(t, s.SetTyping(false))
	assert.True(t, s.SetTyping(true))
	assert.False(t, s.SetTyping(true))
	assert.True(t, s.Snapshot().IsTyping)
	assert.True(t, s.SetTyping(false))
}
