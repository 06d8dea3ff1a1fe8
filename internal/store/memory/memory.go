// Package memory keeps every user's documents in process memory.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zhouzirui/serene/backend/internal/model"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/model/wellness"
	"github.com/zhouzirui/serene/backend/internal/store"
)

type conversation struct {
	summary  chat.Conversation
	messages []chat.Message
}

type userData struct {
	conversations map[string]*conversation
	moods         []wellness.MoodEntry
	journals      []wellness.JournalEntry
	goals         map[string]wellness.Goal
	profile       wellness.ProfileDoc
}

// Store is an in-memory store.Store.
type Store struct {
	mu    sync.RWMutex
	users map[string]*userData
	opts  store.Options
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New(opts ...store.Option) *Store {
	return &Store{
		users: make(map[string]*userData),
		opts:  store.Apply(opts...),
	}
}

func (s *Store) Close() error { return nil }

// user must be called with the write lock held.
func (s *Store) user(uid string) *userData {
	u, ok := s.users[uid]
	if !ok {
		u = &userData{
			conversations: make(map[string]*conversation),
			goals:         make(map[string]wellness.Goal),
		}
		s.users[uid] = u
	}
	return u
}

func (s *Store) lookup(uid string) (*userData, bool) {
	u, ok := s.users[uid]
	return u, ok
}

func (s *Store) AppendMessages(_ context.Context, uid, conversationID string, msgs ...chat.Message) (chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.user(uid)
	now := s.opts.Now()

	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	conv, ok := u.conversations[conversationID]
	if !ok {
		title := ""
		if len(msgs) > 0 {
			title = chat.DeriveTitle(msgs[0].Content)
		}
		conv = &conversation{summary: chat.Conversation{
			ID:        conversationID,
			Title:     title,
			CreatedAt: now,
			UpdatedAt: now,
		}}
		u.conversations[conversationID] = conv
	}

	times := store.MessageTimes(now, len(msgs))
	for i, msg := range msgs {
		msg.ID = uuid.NewString()
		msg.ConversationID = conversationID
		msg.Timestamp = times[i]
		conv.messages = append(conv.messages, msg)
		conv.summary.UpdatedAt = store.LaterOf(conv.summary.UpdatedAt, msg.Timestamp)
		if msg.Sender == chat.SenderUser {
			conv.summary.LastMessage = msg.Content
		}
	}

	return conv.summary, nil
}

func (s *Store) ListConversations(_ context.Context, uid string, limit int) ([]chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []chat.Conversation{}
	u, ok := s.lookup(uid)
	if !ok {
		return out, nil
	}
	for _, conv := range u.conversations {
		out = append(out, conv.summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetConversation(_ context.Context, uid, id string) (chat.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, err := s.conversation(uid, id)
	if err != nil {
		return chat.Transcript{}, err
	}
	messages := make([]chat.Message, len(conv.messages))
	copy(messages, conv.messages)
	return chat.Transcript{Conversation: conv.summary, Messages: messages}, nil
}

func (s *Store) RecentMessages(_ context.Context, uid, id string, n int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, err := s.conversation(uid, id)
	if err != nil {
		return nil, err
	}
	start := 0
	if n > 0 && len(conv.messages) > n {
		start = len(conv.messages) - n
	}
	out := make([]chat.Message, len(conv.messages)-start)
	copy(out, conv.messages[start:])
	return out, nil
}

func (s *Store) conversation(uid, id string) (*conversation, error) {
	u, ok := s.lookup(uid)
	if !ok {
		return nil, model.ErrNotFound
	}
	conv, ok := u.conversations[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return conv, nil
}

func (s *Store) AddMood(_ context.Context, uid string, entry wellness.MoodEntry) (wellness.MoodEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = uuid.NewString()
	entry.Timestamp = s.opts.Now()
	u := s.user(uid)
	u.moods = append(u.moods, entry)
	return entry, nil
}

func (s *Store) ListMoods(_ context.Context, uid string, days int) ([]wellness.MoodEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []wellness.MoodEntry{}
	u, ok := s.lookup(uid)
	if !ok {
		return out, nil
	}
	since := store.MoodWindowStart(s.opts.Now(), days)
	for _, entry := range u.moods {
		if !entry.Timestamp.Before(since) {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) RecentMoods(_ context.Context, uid string, limit int) ([]wellness.MoodEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []wellness.MoodEntry{}
	u, ok := s.lookup(uid)
	if !ok {
		return out, nil
	}
	for i := len(u.moods) - 1; i >= 0; i-- {
		out = append(out, u.moods[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MoodAggregate(_ context.Context, uid string) (wellness.MoodAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.lookup(uid)
	if !ok {
		return wellness.MoodAggregate{}, nil
	}
	values := make([]float64, 0, len(u.moods))
	for _, entry := range u.moods {
		values = append(values, entry.Mood)
	}
	return wellness.AggregateMoods(values), nil
}

func (s *Store) AddJournal(_ context.Context, uid string, entry wellness.JournalEntry) (wellness.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	entry.ID = uuid.NewString()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	u := s.user(uid)
	u.journals = append(u.journals, entry)
	return entry, nil
}

func (s *Store) ListJournals(_ context.Context, uid string, limit int) ([]wellness.JournalEntry, error) {
	return s.journals(uid, limit, false), nil
}

func (s *Store) SharedJournals(_ context.Context, uid string, limit int) ([]wellness.JournalEntry, error) {
	return s.journals(uid, limit, true), nil
}

func (s *Store) journals(uid string, limit int, sharedOnly bool) []wellness.JournalEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []wellness.JournalEntry{}
	u, ok := s.lookup(uid)
	if !ok {
		return out
	}
	for i := len(u.journals) - 1; i >= 0; i-- {
		entry := u.journals[i]
		if sharedOnly && !entry.ShareWithAI {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) AddGoal(_ context.Context, uid string, goal wellness.Goal) (wellness.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	goal.ID = uuid.NewString()
	goal.CreatedAt = now
	goal.UpdatedAt = now
	s.user(uid).goals[goal.ID] = goal
	return goal, nil
}

func (s *Store) ListGoals(_ context.Context, uid string) ([]wellness.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []wellness.Goal{}
	u, ok := s.lookup(uid)
	if !ok {
		return out, nil
	}
	for _, goal := range u.goals {
		out = append(out, goal)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TargetDate != out[j].TargetDate {
			return out[i].TargetDate < out[j].TargetDate
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetGoal(_ context.Context, uid, id string) (wellness.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.lookup(uid)
	if !ok {
		return wellness.Goal{}, model.ErrNotFound
	}
	goal, ok := u.goals[id]
	if !ok {
		return wellness.Goal{}, model.ErrNotFound
	}
	return goal, nil
}

func (s *Store) UpdateGoal(_ context.Context, uid, id string, patch wellness.GoalPatch) (wellness.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.lookup(uid)
	if !ok {
		return wellness.Goal{}, model.ErrNotFound
	}
	goal, ok := u.goals[id]
	if !ok {
		return wellness.Goal{}, model.ErrNotFound
	}
	patch.Apply(&goal)
	goal.UpdatedAt = store.LaterOf(goal.UpdatedAt, s.opts.Now())
	u.goals[id] = goal
	return goal, nil
}

func (s *Store) GetProfile(_ context.Context, uid string) (wellness.ProfileDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.lookup(uid)
	if !ok {
		return wellness.ProfileDoc{}, nil
	}
	return u.profile, nil
}

func (s *Store) SaveProfile(_ context.Context, uid string, patch wellness.ProfilePatch) (wellness.ProfileDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.user(uid)
	patch.Apply(&u.profile)
	return u.profile, nil
}

func (s *Store) Count(_ context.Context, uid string, kind store.Kind) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.lookup(uid)
	if !ok {
		return 0, nil
	}
	switch kind {
	case store.KindConversations:
		return len(u.conversations), nil
	case store.KindJournals:
		return len(u.journals), nil
	case store.KindMoods:
		return len(u.moods), nil
	case store.KindGoals:
		return len(u.goals), nil
	case store.KindCompletedGoals:
		completed := 0
		for _, goal := range u.goals {
			if goal.Completed {
				completed++
			}
		}
		return completed, nil
	default:
		return 0, store.UnknownKind(kind)
	}
}
