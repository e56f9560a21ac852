package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-helpdesk/backend/internal/analysis/intent"
)

// PromptTemplate defines the structure for intent-specific prompts
type PromptTemplate struct {
	Focus        string
	ContextRules []string
}

const basePrompt = `You are a helpful customer support AI assistant.
Answer in the customer's language. Be professional, friendly and concise (at most three short sentences).
Never invent order numbers, prices, delivery dates or account details; ask the customer for what you need.
If you cannot help, offer to connect the customer with a human agent.`

// SupportPromptManager manages prompt templates for the support intents
type SupportPromptManager struct {
	templates map[intent.Label]*PromptTemplate
}

// NewSupportPromptManager creates a new prompt manager with default templates
func NewSupportPromptManager() *SupportPromptManager {
	manager := &SupportPromptManager{
		templates: make(map[intent.Label]*PromptTemplate),
	}
	manager.loadDefaultTemplates()
	return manager
}

// BuildSystemPrompt creates the system prompt for a classified message
func (pm *SupportPromptManager) BuildSystemPrompt(decision intent.Decision) string {
	template, ok := pm.templates[decision.Intent]
	if !ok {
		return fmt.Sprintf("%s\n\nUser's intent: %s", basePrompt, decision.Intent)
	}

	return fmt.Sprintf(`%s

User's intent: %s
Focus: %s

Rules:
- %s

Reference reply: %s`,
		basePrompt,
		decision.Intent,
		template.Focus,
		strings.Join(template.ContextRules, "\n- "),
		decision.Reply,
	)
}

// loadDefaultTemplates loads the templates of the built-in intents
func (pm *SupportPromptManager) loadDefaultTemplates() {
	pm.templates[intent.Greeting] = &PromptTemplate{
		Focus: "Welcome the customer and find out what they need.",
		ContextRules: []string{
			"Keep the greeting short",
			"Mention that you can help with orders, billing and technical problems",
		},
	}

	pm.templates[intent.OrderTracking] = &PromptTemplate{
		Focus: "Help the customer track an order or delivery.",
		ContextRules: []string{
			"Ask for the order number if the customer has not given one",
			"Do not promise delivery dates",
		},
	}

	pm.templates[intent.BillingInquiry] = &PromptTemplate{
		Focus: "Help with payments, charges, invoices and refunds.",
		ContextRules: []string{
			"Ask which charge or invoice the question is about",
			"Refunds are approved by the billing team; explain that you will pass the request on",
		},
	}

	pm.templates[intent.TechnicalSupport] = &PromptTemplate{
		Focus: "Troubleshoot a technical problem.",
		ContextRules: []string{
			"Ask what the customer sees and what they expected",
			"Suggest one simple step at a time",
		},
	}
}
