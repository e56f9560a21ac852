package intent

// 转人工原因。
const (
	ReasonNegativeSentiment = "Negative sentiment detected"
	ReasonExtended          = "Extended conversation"
	ReasonRequested         = "Customer requested human agent"
)

const (
	maxMessagesBeforeEscalation = 10
	recentWindow                = 5
	negativeThreshold           = -0.5
)

var escalationKeywords = []string{"agent", "human", "person", "manager", "supervisor", "speak to someone"}

// ShouldEscalate 判断会话是否需要转人工。total 为会话消息总数（含机器人回复），
// customer 为客户消息内容，按时间顺序。
func ShouldEscalate(overall Score, total int, customer []string) (bool, string) {
	if overall.Label == Negative && overall.Value < negativeThreshold {
		return true, ReasonNegativeSentiment
	}

	if total > maxMessagesBeforeEscalation {
		return true, ReasonExtended
	}

	recent := customer
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}
	for _, content := range recent {
		if containsAny(normalize(content), escalationKeywords) {
			return true, ReasonRequested
		}
	}

	return false, ""
}
