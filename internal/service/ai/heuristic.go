package ai

import (
	"context"

	"github.com/zhouzirui/z-helpdesk/backend/internal/analysis/intent"
	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
)

// HeuristicResponder answers with the canned reply of the classified intent.
type HeuristicResponder struct{}

// Generate implements chat.Generator.
func (HeuristicResponder) Generate(_ context.Context, query string, _ []chat.TranscriptMessage) (chat.Reply, error) {
	return replyFor(intent.Classify(query), ""), nil
}

func replyFor(d intent.Decision, text string) chat.Reply {
	if text == "" {
		text = d.Reply
	}
	return chat.Reply{
		Text:        text,
		Intent:      string(d.Intent),
		Confidence:  d.Confidence,
		Suggestions: d.Suggestions,
	}
}
