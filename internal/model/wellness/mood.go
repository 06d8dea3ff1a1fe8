package wellness

import "time"

// MoodEntry is one point in a user's append-only mood log.
type MoodEntry struct {
	ID        string    `json:"id"`
	Mood      float64   `json:"mood"`
	Note      string    `json:"note"`
	Timestamp time.Time `json:"timestamp"`
}

// MoodAggregate summarises every mood entry of a user.
type MoodAggregate struct {
	Count   int
	Average *float64
}

// AggregateMoods computes the count and arithmetic mean of the given values.
// Average stays nil when there are no values.
func AggregateMoods(values []float64) MoodAggregate {
	if len(values) == 0 {
		return MoodAggregate{}
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))
	return MoodAggregate{Count: len(values), Average: &avg}
}
