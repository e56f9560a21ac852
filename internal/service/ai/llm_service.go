package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-helpdesk/backend/internal/analysis/intent"
	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
)

const historyLimit = 10

// LLMResponder classifies messages with the keyword rules and lets a chat
// model write the reply text. When the model fails it answers like
// HeuristicResponder.
type LLMResponder struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	prompts *SupportPromptManager
	logger  *slog.Logger
}

// NewLLMResponder compiles the prompt + model chain.
func NewLLMResponder(ctx context.Context, chatModel model.BaseChatModel, logger *slog.Logger) (*LLMResponder, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &LLMResponder{
		chain:   runnable,
		prompts: NewSupportPromptManager(),
		logger:  logger.With("component", "ai"),
	}, nil
}

// Generate implements chat.Generator.
func (r *LLMResponder) Generate(ctx context.Context, query string, history []chat.TranscriptMessage) (chat.Reply, error) {
	decision := intent.Classify(query)

	input := map[string]any{
		"system":  r.prompts.BuildSystemPrompt(decision),
		"history": buildHistoryMessages(history),
		"query":   query,
	}

	response, err := r.chain.Invoke(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return chat.Reply{}, ctx.Err()
		}
		r.logger.Warn("llm reply failed, using canned reply", "intent", decision.Intent, "error", err)
		return replyFor(decision, ""), nil
	}

	text := strings.TrimSpace(response.Content)
	r.logger.Debug("generated reply", "intent", decision.Intent, "length", len(text))
	return replyFor(decision, text), nil
}

func buildHistoryMessages(messages []chat.TranscriptMessage) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Sender {
		case chat.SenderCustomer:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.SenderBot:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}

	return history
}
