// Package storetest is a compliance suite every store.Store backend must pass.
package storetest

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/serene/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/serene/backend/internal/model"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/model/wellness"
	"github.com/zhouzirui/serene/backend/internal/store"
)

// Clock is a settable time source for deterministic write stamps.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MakeStore returns a clean store wired to the given options.
type MakeStore func(t *testing.T, opts ...store.Option) store.Store

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Run exercises the behaviour every backend shares.
func Run(t *testing.T, makeStore MakeStore) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store, clock *Clock)
	}{
		{"Conversations", testConversations},
		{"ConversationOrdering", testConversationOrdering},
		{"RecentMessages", testRecentMessages},
		{"Moods", testMoods},
		{"MoodWindowLargeDays", testMoodWindowLargeDays},
		{"Journals", testJournals},
		{"Goals", testGoals},
		{"Profile", testProfile},
		{"Counts", testCounts},
		{"OwnerIsolation", testOwnerIsolation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clock := NewClock(base)
			s := makeStore(t, store.WithClock(clock.Now))
			tc.fn(t, s, clock)
		})
	}
}

func newUID() string {
	return "u-" + uuid.NewString()
}

func testConversations(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	uid := newUID()

	result := &sentiment.Result{
		Emotion:    "joy",
		Score:      1,
		Emotions:   map[string]float64{"joy": 0.9, "sadness": 0.1},
		Confidence: 0.9,
	}
	first := strings.Repeat("a", 35)
	conv, err := s.AppendMessages(ctx, uid, "",
		chat.Message{Sender: chat.SenderUser, Content: first, Sentiment: result},
		chat.Message{Sender: chat.SenderAssistant, Content: "reply one"},
	)
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)
	assert.Equal(t, strings.Repeat("a", 30)+"...", conv.Title)
	assert.Equal(t, first, conv.LastMessage, "snippet is the user message, not the reply")
	assert.True(t, conv.CreatedAt.Equal(base))
	assert.False(t, conv.UpdatedAt.Before(conv.CreatedAt))

	transcript, err := s.GetConversation(ctx, uid, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, transcript.ID)
	assert.Equal(t, conv.Title, transcript.Title)
	require.Len(t, transcript.Messages, 2)

	userMsg, reply := transcript.Messages[0], transcript.Messages[1]
	assert.Equal(t, chat.SenderUser, userMsg.Sender)
	assert.Equal(t, first, userMsg.Content)
	assert.Equal(t, conv.ID, userMsg.ConversationID)
	assert.NotEmpty(t, userMsg.ID)
	require.NotNil(t, userMsg.Sentiment)
	assert.Equal(t, "joy", userMsg.Sentiment.Emotion)
	assert.InDelta(t, 0.9, userMsg.Sentiment.Emotions["joy"], 1e-9)
	assert.False(t, userMsg.Sentiment.Degraded())
	assert.Equal(t, chat.SenderAssistant, reply.Sender)
	assert.Nil(t, reply.Sentiment)
	assert.True(t, reply.Timestamp.After(userMsg.Timestamp))
	assert.True(t, transcript.UpdatedAt.Equal(reply.Timestamp))

	clock.Advance(time.Minute)
	again, err := s.AppendMessages(ctx, uid, conv.ID,
		chat.Message{Sender: chat.SenderUser, Content: "second"},
		chat.Message{Sender: chat.SenderAssistant, Content: "reply two"},
	)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
	assert.Equal(t, conv.Title, again.Title)
	assert.True(t, again.CreatedAt.Equal(conv.CreatedAt))
	assert.True(t, again.UpdatedAt.After(conv.UpdatedAt))
	assert.Equal(t, "second", again.LastMessage)

	transcript, err = s.GetConversation(ctx, uid, conv.ID)
	require.NoError(t, err)
	require.Len(t, transcript.Messages, 4)
	assert.Equal(t, "reply two", transcript.Messages[3].Content)

	// A caller-chosen id creates the conversation under that id.
	named, err := s.AppendMessages(ctx, uid, "chosen-id", chat.Message{Sender: chat.SenderUser, Content: "short"})
	require.NoError(t, err)
	assert.Equal(t, "chosen-id", named.ID)
	assert.Equal(t, "short", named.Title)

	_, err = s.GetConversation(ctx, uid, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func testConversationOrdering(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	uid := newUID()

	a, err := s.AppendMessages(ctx, uid, "", chat.Message{Sender: chat.SenderUser, Content: "a"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	b, err := s.AppendMessages(ctx, uid, "", chat.Message{Sender: chat.SenderUser, Content: "b"})
	require.NoError(t, err)

	list, err := s.ListConversations(ctx, uid, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)

	clock.Advance(time.Minute)
	_, err = s.AppendMessages(ctx, uid, a.ID, chat.Message{Sender: chat.SenderUser, Content: "a again"})
	require.NoError(t, err)

	list, err = s.ListConversations(ctx, uid, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, "a again", list[0].LastMessage)

	limited, err := s.ListConversations(ctx, uid, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, a.ID, limited[0].ID)
}

func testRecentMessages(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	uid := newUID()

	conv, err := s.AppendMessages(ctx, uid, "",
		chat.Message{Sender: chat.SenderUser, Content: "m1"},
		chat.Message{Sender: chat.SenderAssistant, Content: "m2"},
	)
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = s.AppendMessages(ctx, uid, conv.ID,
		chat.Message{Sender: chat.SenderUser, Content: "m3"},
		chat.Message{Sender: chat.SenderAssistant, Content: "m4"},
	)
	require.NoError(t, err)

	recent, err := s.RecentMessages(ctx, uid, conv.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "m2", recent[0].Content)
	assert.Equal(t, "m3", recent[1].Content)
	assert.Equal(t, "m4", recent[2].Content)

	all, err := s.RecentMessages(ctx, uid, conv.ID, 20)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = s.RecentMessages(ctx, uid, "missing", 20)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func testMoods(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	uid := newUID()

	agg, err := s.MoodAggregate(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 0, agg.Count)
	assert.Nil(t, agg.Average)

	clock.Set(base.AddDate(0, 0, -40))
	_, err = s.AddMood(ctx, uid, wellness.MoodEntry{Mood: 2, Note: "old"})
	require.NoError(t, err)
	clock.Set(base.AddDate(0, 0, -10))
	_, err = s.AddMood(ctx, uid, wellness.MoodEntry{Mood: 4, Note: "ten days"})
	require.NoError(t, err)
	clock.Set(base.AddDate(0, 0, -1))
	latest, err := s.AddMood(ctx, uid, wellness.MoodEntry{Mood: 9, Note: "yesterday"})
	require.NoError(t, err)
	assert.NotEmpty(t, latest.ID)
	assert.True(t, latest.Timestamp.Equal(base.AddDate(0, 0, -1)))
	clock.Set(base)

	window, err := s.ListMoods(ctx, uid, 30)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "ten days", window[0].Note)
	assert.Equal(t, "yesterday", window[1].Note)

	defaulted, err := s.ListMoods(ctx, uid, 0)
	require.NoError(t, err)
	assert.Len(t, defaulted, 2)

	wide, err := s.ListMoods(ctx, uid, 60)
	require.NoError(t, err)
	require.Len(t, wide, 3)
	assert.Equal(t, "old", wide[0].Note)

	recent, err := s.RecentMoods(ctx, uid, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "yesterday", recent[0].Note)
	assert.Equal(t, "ten days", recent[1].Note)
	assert.InDelta(t, 9, recent[0].Mood, 1e-9)

	agg, err = s.MoodAggregate(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 3, agg.Count)
	require.NotNil(t, agg.Average)
	assert.InDelta(t, 5, *agg.Average, 1e-9)
}

func testMoodWindowLargeDays(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	uid := newUID()

	clock.Set(base.AddDate(-5, 0, 0))
	_, err := s.AddMood(ctx, uid, wellness.MoodEntry{Mood: 3, Note: "years ago"})
	require.NoError(t, err)
	clock.Set(base)
	_, err = s.AddMood(ctx, uid, wellness.MoodEntry{Mood: 7, Note: "today"})
	require.NoError(t, err)

	for _, days := range []int{store.MaxMoodWindowDays, 150000, math.MaxInt32, math.MaxInt} {
		entries, err := s.ListMoods(ctx, uid, days)
		require.NoError(t, err, "days=%d", days)
		require.Len(t, entries, 2, "days=%d", days)
		assert.Equal(t, "years ago", entries[0].Note)
		assert.Equal(t, "today", entries[1].Note)
	}
}

func testJournals(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	uid := newUID()

	entries := []wellness.JournalEntry{
		{Title: "one", Content: "first", ShareWithAI: true},
		{Title: "two", Content: "second"},
		{Title: "three", Content: "third", ShareWithAI: true},
	}
	for _, entry := range entries {
		saved, err := s.AddJournal(ctx, uid, entry)
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)
		assert.True(t, saved.CreatedAt.Equal(clock.Now()))
		clock.Advance(time.Hour)
	}

	all, err := s.ListJournals(ctx, uid, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "three", all[0].Title)
	assert.Equal(t, "one", all[2].Title)
	assert.True(t, all[0].ShareWithAI)

	limited, err := s.ListJournals(ctx, uid, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "two", limited[1].Title)

	shared, err := s.SharedJournals(ctx, uid, 3)
	require.NoError(t, err)
	require.Len(t, shared, 2)
	assert.Equal(t, "third", shared[0].Content)
	assert.Equal(t, "first", shared[1].Content)

	newest, err := s.SharedJournals(ctx, uid, 1)
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, "three", newest[0].Title)
}

func testGoals(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	uid := newUID()

	later, err := s.AddGoal(ctx, uid, wellness.Goal{Title: "run", Category: "Exercise", TargetDate: "2025-03-01"})
	require.NoError(t, err)
	clock.Advance(time.Minute)
	sooner, err := s.AddGoal(ctx, uid, wellness.Goal{Title: "sleep", Description: "8h", Category: wellness.DefaultGoalCategory, TargetDate: "2025-01-15"})
	require.NoError(t, err)

	goals, err := s.ListGoals(ctx, uid)
	require.NoError(t, err)
	require.Len(t, goals, 2)
	assert.Equal(t, sooner.ID, goals[0].ID)
	assert.Equal(t, later.ID, goals[1].ID)
	assert.Equal(t, "8h", goals[0].Description)
	assert.False(t, goals[0].Completed)

	// Same target date: the older goal comes first.
	clock.Advance(time.Minute)
	tied, err := s.AddGoal(ctx, uid, wellness.Goal{Title: "stretch", Category: "Exercise", TargetDate: "2025-01-15"})
	require.NoError(t, err)
	goals, err = s.ListGoals(ctx, uid)
	require.NoError(t, err)
	require.Len(t, goals, 3)
	assert.Equal(t, []string{sooner.ID, tied.ID, later.ID}, []string{goals[0].ID, goals[1].ID, goals[2].ID})

	clock.Advance(time.Minute)
	done := true
	title := "run 5k"
	updated, err := s.UpdateGoal(ctx, uid, later.ID, wellness.GoalPatch{Completed: &done, Title: &title})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.Equal(t, "run 5k", updated.Title)
	assert.Equal(t, "Exercise", updated.Category)
	assert.Equal(t, "2025-03-01", updated.TargetDate)
	assert.True(t, updated.UpdatedAt.After(later.UpdatedAt))

	got, err := s.GetGoal(ctx, uid, later.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.Equal(t, "run 5k", got.Title)
	assert.True(t, got.CreatedAt.Equal(later.CreatedAt))

	_, err = s.UpdateGoal(ctx, uid, "missing", wellness.GoalPatch{Completed: &done})
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.GetGoal(ctx, uid, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func testProfile(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	uid := newUID()

	doc, err := s.GetProfile(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, wellness.ProfileDoc{}, doc)

	bio := "hello"
	doc, err = s.SaveProfile(ctx, uid, wellness.ProfilePatch{Bio: &bio, Preferences: map[string]any{"theme": "dark"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Bio)

	name := "Sam"
	doc, err = s.SaveProfile(ctx, uid, wellness.ProfilePatch{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Sam", doc.DisplayName)
	assert.Equal(t, "hello", doc.Bio)

	got, err := s.GetProfile(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "Sam", got.DisplayName)
	assert.Equal(t, "hello", got.Bio)
	assert.Equal(t, map[string]any{"theme": "dark"}, got.Preferences)
}

func testCounts(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	uid := newUID()

	for _, kind := range []store.Kind{store.KindConversations, store.KindJournals, store.KindMoods, store.KindGoals, store.KindCompletedGoals} {
		n, err := s.Count(ctx, uid, kind)
		require.NoError(t, err)
		assert.Zero(t, n, kind)
	}

	_, err := s.AppendMessages(ctx, uid, "", chat.Message{Sender: chat.SenderUser, Content: "hi"})
	require.NoError(t, err)
	_, err = s.AddJournal(ctx, uid, wellness.JournalEntry{Title: "t", Content: "c"})
	require.NoError(t, err)
	for _, mood := range []float64{3, 7} {
		_, err = s.AddMood(ctx, uid, wellness.MoodEntry{Mood: mood})
		require.NoError(t, err)
	}
	goal, err := s.AddGoal(ctx, uid, wellness.Goal{Title: "g1", Category: "Other", TargetDate: "2025-02-01"})
	require.NoError(t, err)
	_, err = s.AddGoal(ctx, uid, wellness.Goal{Title: "g2", Category: "Other", TargetDate: "2025-02-02"})
	require.NoError(t, err)
	done := true
	_, err = s.UpdateGoal(ctx, uid, goal.ID, wellness.GoalPatch{Completed: &done})
	require.NoError(t, err)

	want := map[store.Kind]int{
		store.KindConversations:  1,
		store.KindJournals:       1,
		store.KindMoods:          2,
		store.KindGoals:          2,
		store.KindCompletedGoals: 1,
	}
	for kind, expected := range want {
		n, err := s.Count(ctx, uid, kind)
		require.NoError(t, err)
		assert.Equal(t, expected, n, kind)
	}

	_, err = s.Count(ctx, uid, store.Kind("bogus"))
	assert.Error(t, err)
}

func testOwnerIsolation(t *testing.T, s store.Store, _ *Clock) {
	ctx := context.Background()
	owner, other := newUID(), newUID()

	conv, err := s.AppendMessages(ctx, owner, "", chat.Message{Sender: chat.SenderUser, Content: "private"})
	require.NoError(t, err)
	goal, err := s.AddGoal(ctx, owner, wellness.Goal{Title: "mine", Category: "Other", TargetDate: "2025-01-01"})
	require.NoError(t, err)
	_, err = s.AddMood(ctx, owner, wellness.MoodEntry{Mood: 5})
	require.NoError(t, err)
	_, err = s.AddJournal(ctx, owner, wellness.JournalEntry{Title: "t", Content: "c", ShareWithAI: true})
	require.NoError(t, err)

	_, err = s.GetConversation(ctx, other, conv.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.GetGoal(ctx, other, goal.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	done := true
	_, err = s.UpdateGoal(ctx, other, goal.ID, wellness.GoalPatch{Completed: &done})
	assert.ErrorIs(t, err, model.ErrNotFound)

	convs, err := s.ListConversations(ctx, other, 0)
	require.NoError(t, err)
	assert.Empty(t, convs)
	moods, err := s.RecentMoods(ctx, other, 10)
	require.NoError(t, err)
	assert.Empty(t, moods)
	journals, err := s.SharedJournals(ctx, other, 3)
	require.NoError(t, err)
	assert.Empty(t, journals)

	owned, err := s.GetGoal(ctx, owner, goal.ID)
	require.NoError(t, err)
	assert.False(t, owned.Completed)
}
