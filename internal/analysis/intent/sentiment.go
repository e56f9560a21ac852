package intent

import "math"

// Sentiment 情感倾向。
type Sentiment string

const (
	Positive Sentiment = "positive"
	Negative Sentiment = "negative"
	Neutral  Sentiment = "neutral"
)

// Score 单条消息的情感结果，Value 取值 [-1, 1]。
type Score struct {
	Label Sentiment
	Value float64
}

var (
	positiveWords = []string{"good", "great", "excellent", "amazing", "wonderful", "perfect", "love", "like", "happy", "pleased"}
	negativeWords = []string{"bad", "terrible", "awful", "horrible", "hate", "dislike", "angry", "frustrated", "annoyed", "problem"}
)

// AnalyzeSentiment 统计正负情感词，得分为 (正-负)/总数，保留两位小数。
func AnalyzeSentiment(text string) Score {
	normalized := normalize(text)
	pos := countTerms(normalized, positiveWords)
	neg := countTerms(normalized, negativeWords)

	total := pos + neg
	if total == 0 {
		return Score{Label: Neutral}
	}

	value := math.Round(float64(pos-neg)/float64(total)*100) / 100
	switch {
	case pos > neg:
		return Score{Label: Positive, Value: value}
	case neg > pos:
		return Score{Label: Negative, Value: value}
	default:
		return Score{Label: Neutral, Value: value}
	}
}

// Overall 汇总会话情感：忽略得分为 0 的消息后取平均。
func Overall(values []float64) Score {
	var sum float64
	n := 0
	for _, v := range values {
		if v == 0 {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return Score{Label: Neutral}
	}

	avg := sum / float64(n)
	switch {
	case avg > 0.1:
		return Score{Label: Positive, Value: avg}
	case avg < -0.1:
		return Score{Label: Negative, Value: avg}
	default:
		return Score{Label: Neutral, Value: avg}
	}
}

func countTerms(normalized string, terms []string) int {
	n := 0
	for _, term := range terms {
		if containsTerm(normalized, term) {
			n++
		}
	}
	return n
}
