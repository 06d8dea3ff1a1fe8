package sentiment

import "strings"

const (
	fallbackConfidence = 0.5
	fallbackWeight     = 0.1
)

var positiveWords = []string{
	"happy", "good", "great", "excellent", "wonderful", "amazing", "love", "joy", "positive", "hope",
}

var negativeWords = []string{
	"sad", "bad", "terrible", "awful", "horrible", "hate", "angry", "depressed", "anxiety", "fear", "worry",
}

// Fallback scores text by counting positive and negative keywords. Each keyword counts
// once when it appears anywhere in the lower-cased text.
func Fallback(text string) Result {
	normalized := strings.ToLower(text)

	positive := countMatches(normalized, positiveWords)
	negative := countMatches(normalized, negativeWords)

	score := 0.0
	if total := positive + negative; total > 0 {
		score = float64(positive-negative) / float64(total)
	}

	emotion := bucket(score)

	emotions := make(map[string]float64, len(Labels))
	for _, label := range Labels {
		emotions[label] = fallbackWeight
	}
	emotions[emotion] = fallbackConfidence

	return Result{
		Emotion:    emotion,
		Score:      score,
		Emotions:   emotions,
		Confidence: fallbackConfidence,
		Note:       FallbackNote,
	}
}

// bucket maps a score to a label. A score of exactly 0 lands in sadness.
func bucket(score float64) string {
	switch {
	case score > 0.5:
		return "joy"
	case score > 0:
		return "optimism"
	case score > -0.5:
		return "sadness"
	default:
		return "grief"
	}
}

func countMatches(text string, words []string) int {
	count := 0
	for _, word := range words {
		if strings.Contains(text, word) {
			count++
		}
	}
	return count
}
