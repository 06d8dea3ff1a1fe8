// Package firestore stores user documents in Cloud Firestore using the collection layout
// conversations/{uid}/chats/{id}/messages, moods/{uid}/entries, journals/{uid}/entries,
// goals/{uid}/items and users/{uid}.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zhouzirui/serene/backend/internal/model"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/model/wellness"
	"github.com/zhouzirui/serene/backend/internal/store"
)

// Store implements store.Store on Firestore.
type Store struct {
	client *firestore.Client
	opts   store.Options
}

var _ store.Store = (*Store)(nil)

// New wraps an existing client. Close closes the client.
func New(client *firestore.Client, opts ...store.Option) *Store {
	return &Store{client: client, opts: store.Apply(opts...)}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) chats(uid string) *firestore.CollectionRef {
	return s.client.Collection("conversations").Doc(uid).Collection("chats")
}

func (s *Store) moods(uid string) *firestore.CollectionRef {
	return s.client.Collection("moods").Doc(uid).Collection("entries")
}

func (s *Store) journals(uid string) *firestore.CollectionRef {
	return s.client.Collection("journals").Doc(uid).Collection("entries")
}

func (s *Store) goals(uid string) *firestore.CollectionRef {
	return s.client.Collection("goals").Doc(uid).Collection("items")
}

func (s *Store) user(uid string) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(uid)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// each walks every document of q, decoding it into T.
func each[T any](ctx context.Context, q firestore.Query, fn func(id string, doc T) bool) error {
	iter := q.Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		var doc T
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode %s: %w", snap.Ref.Path, err)
		}
		if !fn(snap.Ref.ID, doc) {
			return nil
		}
	}
}

func (s *Store) AppendMessages(ctx context.Context, uid, conversationID string, msgs ...chat.Message) (chat.Conversation, error) {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	ref := s.chats(uid).Doc(conversationID)

	var conv chat.Conversation
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := s.opts.Now()

		var doc conversationDoc
		snap, err := tx.Get(ref)
		switch {
		case isNotFound(err):
			title := ""
			if len(msgs) > 0 {
				title = chat.DeriveTitle(msgs[0].Content)
			}
			doc = conversationDoc{Title: title, CreatedAt: now, UpdatedAt: now}
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode conversation: %w", err)
			}
		}

		times := store.MessageTimes(now, len(msgs))
		for i, msg := range msgs {
			if err := tx.Create(ref.Collection("messages").Doc(uuid.NewString()), newMessageDoc(msg, times[i])); err != nil {
				return err
			}
			doc.UpdatedAt = store.LaterOf(doc.UpdatedAt, times[i])
			if msg.Sender == chat.SenderUser {
				doc.LastMessage = msg.Content
			}
		}
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		conv = doc.model(conversationID)
		return nil
	})
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("append messages: %w", err)
	}
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context, uid string, limit int) ([]chat.Conversation, error) {
	q := s.chats(uid).OrderBy("updated_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	out := []chat.Conversation{}
	err := each(ctx, q, func(id string, doc conversationDoc) bool {
		out = append(out, doc.model(id))
		return true
	})
	return out, err
}

func (s *Store) getConversation(ctx context.Context, uid, id string) (chat.Conversation, error) {
	snap, err := s.chats(uid).Doc(id).Get(ctx)
	if isNotFound(err) {
		return chat.Conversation{}, model.ErrNotFound
	}
	if err != nil {
		return chat.Conversation{}, err
	}
	var doc conversationDoc
	if err := snap.DataTo(&doc); err != nil {
		return chat.Conversation{}, fmt.Errorf("decode conversation: %w", err)
	}
	return doc.model(id), nil
}

func (s *Store) GetConversation(ctx context.Context, uid, id string) (chat.Transcript, error) {
	conv, err := s.getConversation(ctx, uid, id)
	if err != nil {
		return chat.Transcript{}, err
	}
	q := s.chats(uid).Doc(id).Collection("messages").OrderBy("timestamp", firestore.Asc)
	messages := []chat.Message{}
	err = each(ctx, q, func(msgID string, doc messageDoc) bool {
		messages = append(messages, doc.model(msgID, id))
		return true
	})
	if err != nil {
		return chat.Transcript{}, err
	}
	return chat.Transcript{Conversation: conv, Messages: messages}, nil
}

func (s *Store) RecentMessages(ctx context.Context, uid, id string, n int) ([]chat.Message, error) {
	if _, err := s.getConversation(ctx, uid, id); err != nil {
		return nil, err
	}
	q := s.chats(uid).Doc(id).Collection("messages").OrderBy("timestamp", firestore.Desc)
	if n > 0 {
		q = q.Limit(n)
	}
	messages := []chat.Message{}
	err := each(ctx, q, func(msgID string, doc messageDoc) bool {
		messages = append(messages, doc.model(msgID, id))
		return true
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *Store) AddMood(ctx context.Context, uid string, entry wellness.MoodEntry) (wellness.MoodEntry, error) {
	entry.ID = uuid.NewString()
	entry.Timestamp = s.opts.Now()
	doc := moodDoc{Mood: entry.Mood, Note: entry.Note, Timestamp: entry.Timestamp}
	if _, err := s.moods(uid).Doc(entry.ID).Create(ctx, doc); err != nil {
		return wellness.MoodEntry{}, fmt.Errorf("add mood: %w", err)
	}
	return entry, nil
}

func (s *Store) ListMoods(ctx context.Context, uid string, days int) ([]wellness.MoodEntry, error) {
	since := store.MoodWindowStart(s.opts.Now(), days)
	q := s.moods(uid).Where("timestamp", ">=", since).OrderBy("timestamp", firestore.Asc)
	return s.queryMoods(ctx, q)
}

func (s *Store) RecentMoods(ctx context.Context, uid string, limit int) ([]wellness.MoodEntry, error) {
	q := s.moods(uid).OrderBy("timestamp", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	return s.queryMoods(ctx, q)
}

func (s *Store) queryMoods(ctx context.Context, q firestore.Query) ([]wellness.MoodEntry, error) {
	out := []wellness.MoodEntry{}
	err := each(ctx, q, func(id string, doc moodDoc) bool {
		out = append(out, doc.model(id))
		return true
	})
	return out, err
}

func (s *Store) MoodAggregate(ctx context.Context, uid string) (wellness.MoodAggregate, error) {
	var values []float64
	err := each(ctx, s.moods(uid).Select("mood"), func(_ string, doc moodDoc) bool {
		values = append(values, doc.Mood)
		return true
	})
	if err != nil {
		return wellness.MoodAggregate{}, err
	}
	return wellness.AggregateMoods(values), nil
}

func (s *Store) AddJournal(ctx context.Context, uid string, entry wellness.JournalEntry) (wellness.JournalEntry, error) {
	now := s.opts.Now()
	entry.ID = uuid.NewString()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	doc := journalDoc{
		Title:       entry.Title,
		Content:     entry.Content,
		ShareWithAI: entry.ShareWithAI,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.journals(uid).Doc(entry.ID).Create(ctx, doc); err != nil {
		return wellness.JournalEntry{}, fmt.Errorf("add journal: %w", err)
	}
	return entry, nil
}

func (s *Store) ListJournals(ctx context.Context, uid string, limit int) ([]wellness.JournalEntry, error) {
	q := s.journals(uid).OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}
	out := []wellness.JournalEntry{}
	err := each(ctx, q, func(id string, doc journalDoc) bool {
		out = append(out, doc.model(id))
		return true
	})
	return out, err
}

// SharedJournals filters while walking the newest entries so no composite index is needed.
func (s *Store) SharedJournals(ctx context.Context, uid string, limit int) ([]wellness.JournalEntry, error) {
	out := []wellness.JournalEntry{}
	err := each(ctx, s.journals(uid).OrderBy("created_at", firestore.Desc), func(id string, doc journalDoc) bool {
		if doc.ShareWithAI {
			out = append(out, doc.model(id))
		}
		return limit <= 0 || len(out) < limit
	})
	return out, err
}

func (s *Store) AddGoal(ctx context.Context, uid string, goal wellness.Goal) (wellness.Goal, error) {
	now := s.opts.Now()
	goal.ID = uuid.NewString()
	goal.CreatedAt = now
	goal.UpdatedAt = now
	if _, err := s.goals(uid).Doc(goal.ID).Create(ctx, newGoalDoc(goal)); err != nil {
		return wellness.Goal{}, fmt.Errorf("add goal: %w", err)
	}
	return goal, nil
}

func (s *Store) ListGoals(ctx context.Context, uid string) ([]wellness.Goal, error) {
	// A single-field order needs no composite index; ties are broken in memory.
	q := s.goals(uid).OrderBy("target_date", firestore.Asc)
	out := []wellness.Goal{}
	err := each(ctx, q, func(id string, doc goalDoc) bool {
		out = append(out, doc.model(id))
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
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

func (s *Store) GetGoal(ctx context.Context, uid, id string) (wellness.Goal, error) {
	snap, err := s.goals(uid).Doc(id).Get(ctx)
	if isNotFound(err) {
		return wellness.Goal{}, model.ErrNotFound
	}
	if err != nil {
		return wellness.Goal{}, err
	}
	var doc goalDoc
	if err := snap.DataTo(&doc); err != nil {
		return wellness.Goal{}, fmt.Errorf("decode goal: %w", err)
	}
	return doc.model(id), nil
}

func (s *Store) UpdateGoal(ctx context.Context, uid, id string, patch wellness.GoalPatch) (wellness.Goal, error) {
	ref := s.goals(uid).Doc(id)
	var goal wellness.Goal
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}
		var doc goalDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode goal: %w", err)
		}
		goal = doc.model(id)
		patch.Apply(&goal)
		goal.UpdatedAt = store.LaterOf(goal.UpdatedAt, s.opts.Now())
		return tx.Set(ref, newGoalDoc(goal))
	})
	if errors.Is(err, model.ErrNotFound) {
		return wellness.Goal{}, model.ErrNotFound
	}
	if err != nil {
		return wellness.Goal{}, fmt.Errorf("update goal: %w", err)
	}
	return goal, nil
}

func (s *Store) GetProfile(ctx context.Context, uid string) (wellness.ProfileDoc, error) {
	snap, err := s.user(uid).Get(ctx)
	if isNotFound(err) {
		return wellness.ProfileDoc{}, nil
	}
	if err != nil {
		return wellness.ProfileDoc{}, err
	}
	var doc wellness.ProfileDoc
	if err := snap.DataTo(&doc); err != nil {
		return wellness.ProfileDoc{}, fmt.Errorf("decode profile: %w", err)
	}
	return doc, nil
}

func (s *Store) SaveProfile(ctx context.Context, uid string, patch wellness.ProfilePatch) (wellness.ProfileDoc, error) {
	fields := map[string]any{}
	if patch.DisplayName != nil {
		fields["displayName"] = *patch.DisplayName
	}
	if patch.Bio != nil {
		fields["bio"] = *patch.Bio
	}
	if patch.Preferences != nil {
		fields["preferences"] = patch.Preferences
	}
	if patch.PhotoURL != nil {
		fields["photoURL"] = *patch.PhotoURL
	}
	if len(fields) > 0 {
		// Only the named top-level fields are written; preferences is replaced as a whole
		// and other fields of users/{uid} are left alone.
		paths := make([]firestore.FieldPath, 0, len(fields))
		for name := range fields {
			paths = append(paths, firestore.FieldPath{name})
		}
		if _, err := s.user(uid).Set(ctx, fields, firestore.Merge(paths...)); err != nil {
			return wellness.ProfileDoc{}, fmt.Errorf("save profile: %w", err)
		}
	}
	return s.GetProfile(ctx, uid)
}

func (s *Store) Count(ctx context.Context, uid string, kind store.Kind) (int, error) {
	var q firestore.Query
	switch kind {
	case store.KindConversations:
		q = s.chats(uid).Query
	case store.KindJournals:
		q = s.journals(uid).Query
	case store.KindMoods:
		q = s.moods(uid).Query
	case store.KindGoals:
		q = s.goals(uid).Query
	case store.KindCompletedGoals:
		q = s.goals(uid).Where("completed", "==", true)
	default:
		return 0, store.UnknownKind(kind)
	}

	result, err := q.NewAggregationQuery().WithCount("count").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	value, ok := result["count"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("count %s: unexpected aggregation result %T", kind, result["count"])
	}
	return int(value.GetIntegerValue()), nil
}
