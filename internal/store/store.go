// Package store defines the per-user document store shared by every backend.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/model/wellness"
)

// DefaultMoodWindowDays is the trailing window used when a mood listing gives no day count.
const DefaultMoodWindowDays = 30

// MaxMoodWindowDays bounds a mood listing to one hundred years.
const MaxMoodWindowDays = 36500

// Kind names a countable collection.
type Kind string

const (
	KindConversations  Kind = "conversations"
	KindJournals       Kind = "journals"
	KindMoods          Kind = "moods"
	KindGoals          Kind = "goals"
	KindCompletedGoals Kind = "completed_goals"
)

// Store is the complete persistence surface. Every method is scoped to the owner's uid and
// returns model.ErrNotFound for records the owner does not have.
type Store interface {
	Conversations
	Moods
	Journals
	Goals
	Profiles

	// Count returns the number of records of the given kind owned by uid.
	Count(ctx context.Context, uid string, kind Kind) (int, error)
	Close() error
}

type Conversations interface {
	// AppendMessages adds msgs to the conversation, creating it when absent. A new conversation
	// gets a generated id when conversationID is empty and a title derived from the first
	// message. Messages are stamped in argument order.
	AppendMessages(ctx context.Context, uid, conversationID string, msgs ...chat.Message) (chat.Conversation, error)
	// ListConversations returns summaries, most recently updated first. limit <= 0 means all.
	ListConversations(ctx context.Context, uid string, limit int) ([]chat.Conversation, error)
	GetConversation(ctx context.Context, uid, id string) (chat.Transcript, error)
	// RecentMessages returns the last n messages in chronological order.
	RecentMessages(ctx context.Context, uid, id string, n int) ([]chat.Message, error)
}

type Moods interface {
	AddMood(ctx context.Context, uid string, entry wellness.MoodEntry) (wellness.MoodEntry, error)
	// ListMoods returns the entries of the trailing days window, oldest first.
	ListMoods(ctx context.Context, uid string, days int) ([]wellness.MoodEntry, error)
	// RecentMoods returns the newest entries first.
	RecentMoods(ctx context.Context, uid string, limit int) ([]wellness.MoodEntry, error)
	MoodAggregate(ctx context.Context, uid string) (wellness.MoodAggregate, error)
}

type Journals interface {
	AddJournal(ctx context.Context, uid string, entry wellness.JournalEntry) (wellness.JournalEntry, error)
	// ListJournals returns entries newest first. limit <= 0 means all.
	ListJournals(ctx context.Context, uid string, limit int) ([]wellness.JournalEntry, error)
	// SharedJournals returns the newest entries the owner shared with the assistant.
	SharedJournals(ctx context.Context, uid string, limit int) ([]wellness.JournalEntry, error)
}

type Goals interface {
	AddGoal(ctx context.Context, uid string, goal wellness.Goal) (wellness.Goal, error)
	// ListGoals returns goals ordered by target date.
	ListGoals(ctx context.Context, uid string) ([]wellness.Goal, error)
	GetGoal(ctx context.Context, uid, id string) (wellness.Goal, error)
	UpdateGoal(ctx context.Context, uid, id string, patch wellness.GoalPatch) (wellness.Goal, error)
}

type Profiles interface {
	// GetProfile returns the stored profile fields; a user without a document gets a zero value.
	GetProfile(ctx context.Context, uid string) (wellness.ProfileDoc, error)
	SaveProfile(ctx context.Context, uid string, patch wellness.ProfilePatch) (wellness.ProfileDoc, error)
}

// Options holds settings shared by the backends.
type Options struct {
	Now func() time.Time
}

// Option customises a backend.
type Option func(*Options)

// WithClock replaces the wall clock used to stamp writes.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

// Apply resolves opts on top of the defaults.
func Apply(opts ...Option) Options {
	o := Options{Now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// MessageTimes returns one timestamp per message, strictly increasing from base so that a
// batch keeps its argument order when sorted.
func MessageTimes(base time.Time, n int) []time.Time {
	times := make([]time.Time, n)
	for i := range times {
		times[i] = base.Add(time.Duration(i) * time.Microsecond)
	}
	return times
}

// LaterOf keeps updated_at from moving backwards.
func LaterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// MoodWindowStart returns the start of the trailing days window ending at now.
// Windows longer than MaxMoodWindowDays are clamped so the start stays within the
// range of Unix nanosecond timestamps.
func MoodWindowStart(now time.Time, days int) time.Time {
	switch {
	case days <= 0:
		days = DefaultMoodWindowDays
	case days > MaxMoodWindowDays:
		days = MaxMoodWindowDays
	}
	return now.AddDate(0, 0, -days)
}

// UnknownKind reports a Count call for a collection the backend does not track.
func UnknownKind(kind Kind) error {
	return fmt.Errorf("store: unknown collection kind %q", kind)
}
