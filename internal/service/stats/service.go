package stats

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/serene/backend/internal/model/wellness"
	"github.com/zhouzirui/serene/backend/internal/store"
)

// Source is the part of the store the summary reads.
type Source interface {
	Count(ctx context.Context, uid string, kind store.Kind) (int, error)
	MoodAggregate(ctx context.Context, uid string) (wellness.MoodAggregate, error)
}

// Service computes per-user activity summaries.
type Service struct {
	source Source
}

func NewService(source Source) *Service {
	return &Service{source: source}
}

// Summary runs the five counts and the mood aggregate concurrently. Any failure fails the summary.
func (s *Service) Summary(ctx context.Context, uid string) (wellness.Stats, error) {
	var (
		out wellness.Stats
		agg wellness.MoodAggregate
	)

	g, ctx := errgroup.WithContext(ctx)
	counts := []struct {
		kind store.Kind
		dst  *int
	}{
		{store.KindConversations, &out.ConversationCount},
		{store.KindJournals, &out.JournalCount},
		{store.KindMoods, &out.MoodCount},
		{store.KindGoals, &out.GoalCount},
		{store.KindCompletedGoals, &out.CompletedGoalCount},
	}
	for _, c := range counts {
		g.Go(func() error {
			n, err := s.source.Count(ctx, uid, c.kind)
			if err != nil {
				return fmt.Errorf("count %s: %w", c.kind, err)
			}
			*c.dst = n
			return nil
		})
	}
	g.Go(func() error {
		a, err := s.source.MoodAggregate(ctx, uid)
		if err != nil {
			return fmt.Errorf("mood aggregate: %w", err)
		}
		agg = a
		return nil
	})

	if err := g.Wait(); err != nil {
		return wellness.Stats{}, err
	}

	out.AverageMood = agg.Average
	return out, nil
}
