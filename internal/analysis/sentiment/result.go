package sentiment

import "github.com/zhouzirui/serene/backend/internal/model"

// FallbackNote marks results produced by the rule-based scorer.
const FallbackNote = "Fallback sentiment analysis used"

// Result is the outcome of classifying one message.
type Result struct {
	Emotion    string             `json:"emotion"`
	Score      float64            `json:"sentiment_score"`
	Emotions   map[string]float64 `json:"emotions"`
	Confidence float64            `json:"confidence"`
	Note       string             `json:"note,omitempty"`
}

// Degraded reports whether the result came from the local fallback rather than the classifier.
func (r Result) Degraded() bool {
	return r.Note != ""
}

// Validate checks a result supplied by a client against the taxonomy and the
// score ranges the classifier produces.
func (r Result) Validate() error {
	if !IsLabel(r.Emotion) {
		return model.Invalid("unknown emotion %q", r.Emotion)
	}
	if !inRange(r.Score, -1, 1) {
		return model.Invalid("sentiment_score must be between -1 and 1")
	}
	if !inRange(r.Confidence, 0, 1) {
		return model.Invalid("confidence must be between 0 and 1")
	}
	for label, score := range r.Emotions {
		if !IsLabel(label) {
			return model.Invalid("unknown emotion %q", label)
		}
		if !inRange(score, 0, 1) {
			return model.Invalid("emotion score for %q must be between 0 and 1", label)
		}
	}
	return nil
}

// inRange is false for NaN.
func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// FromScores builds a primary result from per-label scores, picking the highest one.
// Ties resolve to the label that sorts first, so the choice is stable.
func FromScores(scores map[string]float64) (Result, bool) {
	if len(scores) == 0 {
		return Result{}, false
	}

	best := ""
	bestScore := 0.0
	for label, score := range scores {
		if best == "" || score > bestScore || (score == bestScore && label < best) {
			best = label
			bestScore = score
		}
	}

	return Result{
		Emotion:    best,
		Score:      ScoreFor(best),
		Emotions:   scores,
		Confidence: bestScore,
	}, true
}
