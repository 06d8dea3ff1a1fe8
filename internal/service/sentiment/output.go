package sentiment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	analysis "github.com/zhouzirui/serene/backend/internal/analysis/sentiment"
)

// ErrUnrecognizedShape is returned for classifier payloads that match none of the known layouts.
var ErrUnrecognizedShape = errors.New("unrecognized classifier response shape")

type outputKind int

const (
	// [[{"label": "joy", "score": 0.9}, ...]]
	kindNestedScores outputKind = iota + 1
	// [{"label": "joy", "score": 0.9}, ...]
	kindFlatScores
	// [[0.1, -2.3, ...]] with one logit per taxonomy label
	kindLogits
)

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// classifierOutput holds one of the supported payload layouts, selected by kind.
type classifierOutput struct {
	kind   outputKind
	scores []labelScore
	logits []float64
}

// decodeOutput resolves the payload layout by looking at the JSON structure.
func decodeOutput(body []byte) (classifierOutput, error) {
	var outer []json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil {
		return classifierOutput{}, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}
	if len(outer) == 0 {
		return classifierOutput{}, fmt.Errorf("%w: empty list", ErrUnrecognizedShape)
	}

	switch leadingByte(outer[0]) {
	case '{':
		var scores []labelScore
		if err := json.Unmarshal(body, &scores); err != nil {
			return classifierOutput{}, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}
		return classifierOutput{kind: kindFlatScores, scores: scores}, nil

	case '[':
		var inner []json.RawMessage
		if err := json.Unmarshal(outer[0], &inner); err != nil {
			return classifierOutput{}, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
		}
		if len(inner) == 0 {
			return classifierOutput{}, fmt.Errorf("%w: empty inner list", ErrUnrecognizedShape)
		}

		switch b := leadingByte(inner[0]); {
		case b == '{':
			var scores []labelScore
			if err := json.Unmarshal(outer[0], &scores); err != nil {
				return classifierOutput{}, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
			}
			return classifierOutput{kind: kindNestedScores, scores: scores}, nil
		case b == '-' || (b >= '0' && b <= '9'):
			var logits []float64
			if err := json.Unmarshal(outer[0], &logits); err != nil {
				return classifierOutput{}, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
			}
			return classifierOutput{kind: kindLogits, logits: logits}, nil
		}
	}

	return classifierOutput{}, ErrUnrecognizedShape
}

// result converts the payload into a primary sentiment result.
func (o classifierOutput) result() (analysis.Result, error) {
	var scores map[string]float64

	switch o.kind {
	case kindNestedScores, kindFlatScores:
		scores = make(map[string]float64, len(analysis.Labels))
		for _, label := range analysis.Labels {
			scores[label] = 0
		}
		for _, item := range o.scores {
			if item.Label == "" {
				return analysis.Result{}, fmt.Errorf("%w: score without label", ErrUnrecognizedShape)
			}
			scores[item.Label] = item.Score
		}
		if len(o.scores) == 0 {
			return analysis.Result{}, fmt.Errorf("%w: no scores", ErrUnrecognizedShape)
		}

	case kindLogits:
		if len(o.logits) != len(analysis.Labels) {
			return analysis.Result{}, fmt.Errorf("%w: got %d logits, want %d", ErrUnrecognizedShape, len(o.logits), len(analysis.Labels))
		}
		probs := softmax(o.logits)
		scores = make(map[string]float64, len(probs))
		for i, p := range probs {
			scores[analysis.Labels[i]] = p
		}

	default:
		return analysis.Result{}, ErrUnrecognizedShape
	}

	result, ok := analysis.FromScores(scores)
	if !ok {
		return analysis.Result{}, fmt.Errorf("%w: no scores", ErrUnrecognizedShape)
	}
	return result, nil
}

func softmax(logits []float64) []float64 {
	maxLogit := math.Inf(-1)
	for _, v := range logits {
		maxLogit = math.Max(maxLogit, v)
	}

	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(v - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

func leadingByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
