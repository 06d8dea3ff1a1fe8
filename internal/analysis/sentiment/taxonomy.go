package sentiment

// Labels is the 28-label go_emotions taxonomy in classifier output order.
var Labels = []string{
	"admiration", "amusement", "anger", "annoyance", "approval", "caring", "confusion",
	"curiosity", "desire", "disappointment", "disapproval", "disgust", "embarrassment",
	"excitement", "fear", "gratitude", "grief", "joy", "love", "nervousness", "optimism",
	"pride", "realization", "relief", "remorse", "sadness", "surprise", "neutral",
}

var labelScores = map[string]float64{
	"admiration": 0.7, "amusement": 0.8, "anger": -0.8, "annoyance": -0.5,
	"approval": 0.6, "caring": 0.7, "confusion": -0.2, "curiosity": 0.3,
	"desire": 0.5, "disappointment": -0.6, "disapproval": -0.6, "disgust": -0.7,
	"embarrassment": -0.4, "excitement": 0.8, "fear": -0.7, "gratitude": 0.8,
	"grief": -0.9, "joy": 0.9, "love": 0.9, "nervousness": -0.5, "optimism": 0.8,
	"pride": 0.7, "realization": 0.4, "relief": 0.6, "remorse": -0.6,
	"sadness": -0.8, "surprise": 0.2, "neutral": 0.0,
}

// ScoreFor maps a taxonomy label to its sentiment score. Unknown labels score 0.
func ScoreFor(label string) float64 {
	return labelScores[label]
}

// IsLabel reports whether label belongs to the taxonomy.
func IsLabel(label string) bool {
	_, ok := labelScores[label]
	return ok
}
