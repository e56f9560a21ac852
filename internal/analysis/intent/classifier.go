package intent

import (
	"strings"
	"unicode"
)

// Label 表示客服意图标签。
type Label string

const (
	Greeting         Label = "greeting"
	OrderTracking    Label = "order_tracking"
	BillingInquiry   Label = "billing_inquiry"
	TechnicalSupport Label = "technical_support"
	GeneralInquiry   Label = "general_inquiry"
)

// Decision 给出意图识别结果、置信度以及预设回复。
type Decision struct {
	Intent      Label
	Confidence  float64
	Reply       string
	Suggestions []string
}

type rule struct {
	decision Decision
	keywords []string
}

// 规则按顺序匹配，先命中者生效。
var rules = []rule{
	{
		decision: Decision{
			Intent:      Greeting,
			Confidence:  0.9,
			Reply:       "Hello! I'm your AI support assistant. How can I help you today?",
			Suggestions: []string{"Track my order", "Billing question", "Technical support", "General inquiry"},
		},
		keywords: []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening"},
	},
	{
		decision: Decision{
			Intent:      OrderTracking,
			Confidence:  0.8,
			Reply:       "I'd be happy to help you track your order. Could you please provide your order number?",
			Suggestions: []string{"Order #12345", "Recent orders", "Delivery status"},
		},
		keywords: []string{"order", "tracking", "shipment", "delivery", "package"},
	},
	{
		decision: Decision{
			Intent:      BillingInquiry,
			Confidence:  0.8,
			Reply:       "I can help with billing questions. What specific billing issue are you experiencing?",
			Suggestions: []string{"Payment failed", "Wrong charge", "Request refund", "Invoice needed"},
		},
		keywords: []string{"bill", "payment", "charge", "invoice", "refund", "credit"},
	},
	{
		decision: Decision{
			Intent:      TechnicalSupport,
			Confidence:  0.7,
			Reply:       "I understand you're experiencing a technical issue. Can you describe the problem you're facing?",
			Suggestions: []string{"Website not loading", "App crashing", "Feature broken", "Account access"},
		},
		keywords: []string{"error", "bug", "issue", "problem", "broken", "not working", "help"},
	},
}

var fallback = Decision{
	Intent:      GeneralInquiry,
	Confidence:  0.6,
	Reply:       "I'm here to help! Could you please provide more details about what you need assistance with?",
	Suggestions: []string{"Track order", "Billing help", "Technical support", "Speak to agent"},
}

// Classify 根据关键词识别用户意图，未命中时返回通用咨询。
func Classify(text string) Decision {
	normalized := normalize(text)
	for _, r := range rules {
		if containsAny(normalized, r.keywords) {
			return clone(r.decision)
		}
	}
	return clone(fallback)
}

func clone(d Decision) Decision {
	d.Suggestions = append([]string(nil), d.Suggestions...)
	return d
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func containsAny(normalized string, terms []string) bool {
	for _, term := range terms {
		if containsTerm(normalized, term) {
			return true
		}
	}
	return false
}

// containsTerm 仅在词边界处匹配，避免 "hi" 命中 "this"。
// 三个字母以上的词允许复数 s，例如 "orders"。
func containsTerm(text, term string) bool {
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			return false
		}
		start := offset + i
		end := start + len(term)
		if boundaryBefore(text, start) {
			if boundaryAfter(text, end) {
				return true
			}
			if len(term) >= 3 && end < len(text) && text[end] == 's' && boundaryAfter(text, end+1) {
				return true
			}
		}
		offset = start + 1
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	return !isWordByte(text[i-1])
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	return !isWordByte(text[i])
}

func isWordByte(b byte) bool {
	return b < 0x80 && (unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b)))
}
