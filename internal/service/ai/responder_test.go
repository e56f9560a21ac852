package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
)

type fakeChatModel struct {
	mu     sync.Mutex
	inputs [][]*schema.Message
	reply  string
	err    error
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func TestHeuristicResponder(t *testing.T) {
	reply, err := HeuristicResponder{}.Generate(context.Background(), "I need a refund", nil)
	require.NoError(t, err)
	assert.Equal(t, "billing_inquiry", reply.Intent)
	assert.Equal(t, 0.8, reply.Confidence)
	assert.Contains(t, reply.Text, "billing")
	assert.Contains(t, reply.Suggestions, "Request refund")
}

func TestLLMResponder_UsesModelText(t *testing.T) {
	fake := &fakeChatModel{reply: "  Please share your order number and I'll look it up.  "}
	r, err := NewLLMResponder(context.Background(), fake, nil)
	require.NoError(t, err)

	history := []chat.TranscriptMessage{
		{Sender: chat.SenderCustomer, Content: "hello"},
		{Sender: chat.SenderBot, Content: "Hello! How can I help you today?"},
		{Sender: chat.SenderSystem, Content: "escalated"},
	}
	reply, err := r.Generate(context.Background(), "where is my package", history)
	require.NoError(t, err)

	assert.Equal(t, "Please share your order number and I'll look it up.", reply.Text)
	assert.Equal(t, "order_tracking", reply.Intent)
	assert.Equal(t, []string{"Order #12345", "Recent orders", "Delivery status"}, reply.Suggestions)

	require.Len(t, fake.inputs, 1)
	input := fake.inputs[0]
	require.Len(t, input, 4, "system + two history turns + query")
	assert.Equal(t, schema.System, input[0].Role)
	assert.True(t, strings.Contains(input[0].Content, "order_tracking"))
	assert.Equal(t, schema.User, input[1].Role)
	assert.Equal(t, schema.Assistant, input[2].Role)
	assert.Equal(t, "where is my package", input[3].Content)
}

func TestLLMResponder_FallsBackOnModelError(t *testing.T) {
	r, err := NewLLMResponder(context.Background(), &fakeChatModel{err: errors.New("quota exceeded")}, nil)
	require.NoError(t, err)

	reply, err := r.Generate(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "greeting", reply.Intent)
	assert.Equal(t, "Hello! I'm your AI support assistant. How can I help you today?", reply.Text)
}

func TestBuildHistoryMessagesKeepsLastTurns(t *testing.T) {
	var msgs []chat.TranscriptMessage
	for i := 0; i < 15; i++ {
		msgs = append(msgs, chat.TranscriptMessage{Sender: chat.SenderCustomer, Content: string(rune('a' + i))})
	}
	history := buildHistoryMessages(msgs)
	require.Len(t, history, historyLimit)
	assert.Equal(t, "f", history[0].Content)
}

func TestNewLLMResponderRequiresModel(t *testing.T) {
	_, err := NewLLMResponder(context.Background(), nil, nil)
	assert.Error(t, err)
}
