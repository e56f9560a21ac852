package escalation

import (
	"sync"

	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
)

// Reasons reported with a positive decision.
const (
	ReasonResponder     = "responder requested hand-off"
	ReasonLowConfidence = "repeated low-confidence replies"
)

// Decision is the outcome of evaluating one responder result.
type Decision struct {
	Escalate bool
	Reason   string
}

// Policy decides whether a responder result should surface a hand-off
// notice. The zero value only honours the responder's should_escalate flag.
//
// With LowConfidenceStreak > 0 the policy also escalates after that many
// consecutive results whose confidence is below ConfidenceFloor; the streak
// restarts after every escalation. Either way a single result yields at most
// one escalation.
type Policy struct {
	LowConfidenceStreak int
	ConfidenceFloor     float64

	mu     sync.Mutex
	streak int
}

// Evaluate inspects one responder result.
func (p *Policy) Evaluate(res chat.ResponderResult) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	if res.ShouldEscalate {
		p.streak = 0
		return Decision{Escalate: true, Reason: ReasonResponder}
	}

	if p.LowConfidenceStreak <= 0 {
		return Decision{}
	}

	if res.Confidence > 0 && res.Confidence < p.ConfidenceFloor {
		p.streak++
	} else {
		p.streak = 0
	}

	if p.streak >= p.LowConfidenceStreak {
		p.streak = 0
		return Decision{Escalate: true, Reason: ReasonLowConfidence}
	}
	return Decision{}
}
