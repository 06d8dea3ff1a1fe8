package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/serene/backend/internal/analysis/sentiment"
	"github.com/zhouzirui/serene/backend/internal/model"
	"github.com/zhouzirui/serene/backend/internal/model/chat"
	"github.com/zhouzirui/serene/backend/internal/model/wellness"
	"github.com/zhouzirui/serene/backend/internal/store"
)

// Store implements store.Store on a SQLite database. Timestamps are kept as Unix nanoseconds.
type Store struct {
	db   *sql.DB
	opts store.Options
}

var _ store.Store = (*Store)(nil)

// New opens the database at path and applies the schema.
func New(path string, opts ...store.Option) (*Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s, err := NewWithDB(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wires the store onto an existing connection.
func NewWithDB(db *sql.DB, opts ...store.Option) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db, opts: store.Apply(opts...)}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) now() time.Time {
	return s.opts.Now()
}

func nanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func (s *Store) AppendMessages(ctx context.Context, uid, conversationID string, msgs ...chat.Message) (chat.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Conversation{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	conv, err := scanConversation(tx.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at, last_message FROM conversations WHERE user_id = ? AND id = ?`,
		uid, conversationID))
	switch {
	case errors.Is(err, model.ErrNotFound):
		title := ""
		if len(msgs) > 0 {
			title = chat.DeriveTitle(msgs[0].Content)
		}
		conv = chat.Conversation{ID: conversationID, Title: title, CreatedAt: now, UpdatedAt: now}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (user_id, id, title, created_at, updated_at, last_message) VALUES (?,?,?,?,?,?)`,
			uid, conv.ID, conv.Title, nanos(conv.CreatedAt), nanos(conv.UpdatedAt), ""); err != nil {
			return chat.Conversation{}, fmt.Errorf("insert conversation: %w", err)
		}
	case err != nil:
		return chat.Conversation{}, err
	}

	times := store.MessageTimes(now, len(msgs))
	for i, msg := range msgs {
		var rawSentiment sql.NullString
		if msg.Sentiment != nil {
			b, err := json.Marshal(msg.Sentiment)
			if err != nil {
				return chat.Conversation{}, fmt.Errorf("encode sentiment: %w", err)
			}
			rawSentiment = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, user_id, conversation_id, sender, content, timestamp, sentiment) VALUES (?,?,?,?,?,?,?)`,
			uuid.NewString(), uid, conv.ID, msg.Sender, msg.Content, nanos(times[i]), rawSentiment); err != nil {
			return chat.Conversation{}, fmt.Errorf("insert message: %w", err)
		}
		conv.UpdatedAt = store.LaterOf(conv.UpdatedAt, times[i])
		if msg.Sender == chat.SenderUser {
			conv.LastMessage = msg.Content
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ?, last_message = ? WHERE user_id = ? AND id = ?`,
		nanos(conv.UpdatedAt), conv.LastMessage, uid, conv.ID); err != nil {
		return chat.Conversation{}, fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return chat.Conversation{}, err
	}
	return conv, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (chat.Conversation, error) {
	var (
		conv             chat.Conversation
		created, updated int64
	)
	if err := row.Scan(&conv.ID, &conv.Title, &created, &updated, &conv.LastMessage); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Conversation{}, model.ErrNotFound
		}
		return chat.Conversation{}, err
	}
	conv.CreatedAt = fromNanos(created)
	conv.UpdatedAt = fromNanos(updated)
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context, uid string, limit int) ([]chat.Conversation, error) {
	query := `SELECT id, title, created_at, updated_at, last_message FROM conversations WHERE user_id = ? ORDER BY updated_at DESC, id ASC`
	args := []any{uid}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []chat.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func (s *Store) GetConversation(ctx context.Context, uid, id string) (chat.Transcript, error) {
	conv, err := s.getConversation(ctx, uid, id)
	if err != nil {
		return chat.Transcript{}, err
	}
	messages, err := s.queryMessages(ctx,
		`SELECT id, conversation_id, sender, content, timestamp, sentiment FROM messages
		 WHERE user_id = ? AND conversation_id = ? ORDER BY timestamp ASC`, uid, id)
	if err != nil {
		return chat.Transcript{}, err
	}
	return chat.Transcript{Conversation: conv, Messages: messages}, nil
}

func (s *Store) RecentMessages(ctx context.Context, uid, id string, n int) ([]chat.Message, error) {
	if _, err := s.getConversation(ctx, uid, id); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = -1
	}
	messages, err := s.queryMessages(ctx,
		`SELECT id, conversation_id, sender, content, timestamp, sentiment FROM messages
		 WHERE user_id = ? AND conversation_id = ? ORDER BY timestamp DESC LIMIT ?`, uid, id, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *Store) getConversation(ctx context.Context, uid, id string) (chat.Conversation, error) {
	return scanConversation(s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at, last_message FROM conversations WHERE user_id = ? AND id = ?`,
		uid, id))
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []chat.Message{}
	for rows.Next() {
		var (
			msg          chat.Message
			ts           int64
			rawSentiment sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Content, &ts, &rawSentiment); err != nil {
			return nil, err
		}
		msg.Timestamp = fromNanos(ts)
		if rawSentiment.Valid {
			var result sentiment.Result
			if err := json.Unmarshal([]byte(rawSentiment.String), &result); err != nil {
				return nil, fmt.Errorf("decode sentiment of message %s: %w", msg.ID, err)
			}
			msg.Sentiment = &result
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *Store) AddMood(ctx context.Context, uid string, entry wellness.MoodEntry) (wellness.MoodEntry, error) {
	entry.ID = uuid.NewString()
	entry.Timestamp = s.now()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO moods (id, user_id, mood, note, timestamp) VALUES (?,?,?,?,?)`,
		entry.ID, uid, entry.Mood, entry.Note, nanos(entry.Timestamp)); err != nil {
		return wellness.MoodEntry{}, fmt.Errorf("insert mood: %w", err)
	}
	return entry, nil
}

func (s *Store) ListMoods(ctx context.Context, uid string, days int) ([]wellness.MoodEntry, error) {
	since := store.MoodWindowStart(s.now(), days)
	return s.queryMoods(ctx,
		`SELECT id, mood, note, timestamp FROM moods WHERE user_id = ? AND timestamp >= ? ORDER BY timestamp ASC, rowid ASC`,
		uid, nanos(since))
}

func (s *Store) RecentMoods(ctx context.Context, uid string, limit int) ([]wellness.MoodEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryMoods(ctx,
		`SELECT id, mood, note, timestamp FROM moods WHERE user_id = ? ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		uid, limit)
}

func (s *Store) queryMoods(ctx context.Context, query string, args ...any) ([]wellness.MoodEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []wellness.MoodEntry{}
	for rows.Next() {
		var (
			entry wellness.MoodEntry
			ts    int64
		)
		if err := rows.Scan(&entry.ID, &entry.Mood, &entry.Note, &ts); err != nil {
			return nil, err
		}
		entry.Timestamp = fromNanos(ts)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) MoodAggregate(ctx context.Context, uid string) (wellness.MoodAggregate, error) {
	var (
		count int
		avg   sql.NullFloat64
	)
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(mood) FROM moods WHERE user_id = ?`, uid).Scan(&count, &avg); err != nil {
		return wellness.MoodAggregate{}, err
	}
	agg := wellness.MoodAggregate{Count: count}
	if count > 0 && avg.Valid {
		mean := avg.Float64
		agg.Average = &mean
	}
	return agg, nil
}

func (s *Store) AddJournal(ctx context.Context, uid string, entry wellness.JournalEntry) (wellness.JournalEntry, error) {
	now := s.now()
	entry.ID = uuid.NewString()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO journals (id, user_id, title, content, share_with_ai, created_at, updated_at) VALUES (?,?,?,?,?,?,?)`,
		entry.ID, uid, entry.Title, entry.Content, entry.ShareWithAI, nanos(now), nanos(now)); err != nil {
		return wellness.JournalEntry{}, fmt.Errorf("insert journal: %w", err)
	}
	return entry, nil
}

func (s *Store) ListJournals(ctx context.Context, uid string, limit int) ([]wellness.JournalEntry, error) {
	return s.queryJournals(ctx, uid, limit, false)
}

func (s *Store) SharedJournals(ctx context.Context, uid string, limit int) ([]wellness.JournalEntry, error) {
	return s.queryJournals(ctx, uid, limit, true)
}

func (s *Store) queryJournals(ctx context.Context, uid string, limit int, sharedOnly bool) ([]wellness.JournalEntry, error) {
	query := `SELECT id, title, content, share_with_ai, created_at, updated_at FROM journals WHERE user_id = ?`
	if sharedOnly {
		query += ` AND share_with_ai = 1`
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, query, uid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []wellness.JournalEntry{}
	for rows.Next() {
		var (
			entry            wellness.JournalEntry
			created, updated int64
		)
		if err := rows.Scan(&entry.ID, &entry.Title, &entry.Content, &entry.ShareWithAI, &created, &updated); err != nil {
			return nil, err
		}
		entry.CreatedAt = fromNanos(created)
		entry.UpdatedAt = fromNanos(updated)
		out = append(out, entry)
	}
	return out, rows.Err()
}

const goalColumns = `id, title, description, category, target_date, completed, created_at, updated_at`

func scanGoal(row rowScanner) (wellness.Goal, error) {
	var (
		goal             wellness.Goal
		created, updated int64
	)
	if err := row.Scan(&goal.ID, &goal.Title, &goal.Description, &goal.Category, &goal.TargetDate, &goal.Completed, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wellness.Goal{}, model.ErrNotFound
		}
		return wellness.Goal{}, err
	}
	goal.CreatedAt = fromNanos(created)
	goal.UpdatedAt = fromNanos(updated)
	return goal, nil
}

func (s *Store) AddGoal(ctx context.Context, uid string, goal wellness.Goal) (wellness.Goal, error) {
	now := s.now()
	goal.ID = uuid.NewString()
	goal.CreatedAt = now
	goal.UpdatedAt = now
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO goals (`+goalColumns+`, user_id) VALUES (?,?,?,?,?,?,?,?,?)`,
		goal.ID, goal.Title, goal.Description, goal.Category, goal.TargetDate, goal.Completed,
		nanos(now), nanos(now), uid); err != nil {
		return wellness.Goal{}, fmt.Errorf("insert goal: %w", err)
	}
	return goal, nil
}

func (s *Store) ListGoals(ctx context.Context, uid string) ([]wellness.Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = ? ORDER BY target_date ASC, created_at ASC, id ASC`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []wellness.Goal{}
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, goal)
	}
	return out, rows.Err()
}

func (s *Store) GetGoal(ctx context.Context, uid, id string) (wellness.Goal, error) {
	return scanGoal(s.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = ? AND id = ?`, uid, id))
}

func (s *Store) UpdateGoal(ctx context.Context, uid, id string, patch wellness.GoalPatch) (wellness.Goal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wellness.Goal{}, err
	}
	defer func() { _ = tx.Rollback() }()

	goal, err := scanGoal(tx.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = ? AND id = ?`, uid, id))
	if err != nil {
		return wellness.Goal{}, err
	}

	patch.Apply(&goal)
	goal.UpdatedAt = store.LaterOf(goal.UpdatedAt, s.now())

	if _, err := tx.ExecContext(ctx,
		`UPDATE goals SET title = ?, description = ?, category = ?, target_date = ?, completed = ?, updated_at = ?
		 WHERE user_id = ? AND id = ?`,
		goal.Title, goal.Description, goal.Category, goal.TargetDate, goal.Completed, nanos(goal.UpdatedAt),
		uid, id); err != nil {
		return wellness.Goal{}, fmt.Errorf("update goal: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return wellness.Goal{}, err
	}
	return goal, nil
}

func (s *Store) GetProfile(ctx context.Context, uid string) (wellness.ProfileDoc, error) {
	return getProfile(ctx, s.db, uid)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getProfile(ctx context.Context, q queryRower, uid string) (wellness.ProfileDoc, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT doc FROM profiles WHERE user_id = ?`, uid).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return wellness.ProfileDoc{}, nil
	}
	if err != nil {
		return wellness.ProfileDoc{}, err
	}

	var doc wellness.ProfileDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return wellness.ProfileDoc{}, fmt.Errorf("decode profile: %w", err)
	}
	return doc, nil
}

func (s *Store) SaveProfile(ctx context.Context, uid string, patch wellness.ProfilePatch) (wellness.ProfileDoc, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wellness.ProfileDoc{}, err
	}
	defer func() { _ = tx.Rollback() }()

	doc, err := getProfile(ctx, tx, uid)
	if err != nil {
		return wellness.ProfileDoc{}, err
	}
	patch.Apply(&doc)

	raw, err := json.Marshal(doc)
	if err != nil {
		return wellness.ProfileDoc{}, fmt.Errorf("encode profile: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO profiles (user_id, doc) VALUES (?, ?) ON CONFLICT(user_id) DO UPDATE SET doc = excluded.doc`,
		uid, string(raw)); err != nil {
		return wellness.ProfileDoc{}, fmt.Errorf("save profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return wellness.ProfileDoc{}, err
	}
	return doc, nil
}

var countQueries = map[store.Kind]string{
	store.KindConversations:  `SELECT COUNT(*) FROM conversations WHERE user_id = ?`,
	store.KindJournals:       `SELECT COUNT(*) FROM journals WHERE user_id = ?`,
	store.KindMoods:          `SELECT COUNT(*) FROM moods WHERE user_id = ?`,
	store.KindGoals:          `SELECT COUNT(*) FROM goals WHERE user_id = ?`,
	store.KindCompletedGoals: `SELECT COUNT(*) FROM goals WHERE user_id = ? AND completed = 1`,
}

func (s *Store) Count(ctx context.Context, uid string, kind store.Kind) (int, error) {
	query, ok := countQueries[kind]
	if !ok {
		return 0, store.UnknownKind(kind)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, uid).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
