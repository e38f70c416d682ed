package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Cfomodz/easemail/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func backends(t *testing.T) map[string]core.PreferenceStore {
	t.Helper()
	sqlite, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "prefs", "easemail.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]core.PreferenceStore{
		"memory": NewMemoryStore(zap.NewNop()),
		"sqlite": sqlite,
	}
}

func TestReinforceSaturates(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			p, err := s.Reinforce(ctx, core.PatternSender, "a@x.com", core.ActionDiscard)
			require.NoError(t, err)
			assert.InDelta(t, 0.6, p.Confidence, 1e-9)
			assert.Equal(t, 1, p.UsageCount)

			p, err = s.Reinforce(ctx, core.PatternSender, "a@x.com", core.ActionDiscard)
			require.NoError(t, err)
			assert.InDelta(t, 0.7, p.Confidence, 1e-9)
			assert.Equal(t, 2, p.UsageCount)

			for i := 0; i < 6; i++ {
				p, err = s.Reinforce(ctx, core.PatternSender, "a@x.com", core.ActionDiscard)
				require.NoError(t, err)
			}
			assert.InDelta(t, 1.0, p.Confidence, 1e-9)
			assert.Equal(t, 8, p.UsageCount)
		})
	}
}

func TestSamePatternDifferentActionsAreSeparate(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Reinforce(ctx, core.PatternDomain, "x.com", core.ActionDiscard)
			require.NoError(t, err)
			_, err = s.Reinforce(ctx, core.PatternDomain, "x.com", core.ActionDefer)
			require.NoError(t, err)

			all, err := s.All(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)
		})
	}
}

func TestMatch(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, r := range []struct {
				kind  core.PatternKind
				value string
			}{
				{core.PatternSender, "news@shop.com"},
				{core.PatternDomain, "shop.com"},
				{core.PatternSubjectKeyword, "invoice"},
				{core.PatternSubjectKeyword, "unrelated"},
				{core.PatternDomain, "other.com"},
			} {
				_, err := s.Reinforce(ctx, r.kind, r.value, core.ActionDefer)
				require.NoError(t, err)
			}

			got, err := s.Match(ctx, &core.Item{Sender: "news@shop.com", Subject: "Your INVOICE is ready"})
			require.NoError(t, err)
			values := make(map[string]bool)
			for _, p := range got {
				values[p.Value] = true
			}
			assert.Equal(t, map[string]bool{"news@shop.com": true, "shop.com": true, "invoice": true}, values)

			got, err = s.Match(ctx, &core.Item{})
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestAllOrdering(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			reinforce := func(value string, times int) {
				for i := 0; i < times; i++ {
					_, err := s.Reinforce(ctx, core.PatternSubjectKeyword, value, core.ActionActNow)
					require.NoError(t, err)
				}
			}
			reinforce("weak", 1)
			reinforce("strong", 3)
			reinforce("medium", 2)

			all, err := s.All(ctx)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "strong", all[0].Value)
			assert.Equal(t, "medium", all[1].Value)
			assert.Equal(t, "weak", all[2].Value)
		})
	}
}

func TestDecisionLog(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			records := []core.DecisionRecord{
				{ID: core.NewID(now), ItemID: "m1", Action: core.ActionDiscard, Auto: true, DecidedAt: now},
				{ID: core.NewID(now), ItemID: "m2", Action: core.ActionDiscard, DecidedAt: now},
				{ID: core.NewID(now), ItemID: "m3", Action: core.ActionMarkSpam, DecidedAt: now},
			}
			for i := range records {
				require.NoError(t, s.RecordDecision(ctx, &records[i]))
			}

			counts, err := s.DecisionCounts(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, counts.Total)
			assert.Equal(t, 1, counts.Auto)
			assert.Equal(t, 2, counts.ByAction[core.ActionDiscard])
			assert.Equal(t, 1, counts.ByAction[core.ActionMarkSpam])
		})
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "easemail.db")

	s, err := NewSQLiteStore(ctx, path, zap.NewNop())
	require.NoError(t, err)
	_, err = s.Reinforce(ctx, core.PatternSender, "a@x.com", core.ActionDiscard)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(ctx, path, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()
	p, err := s.Reinforce(ctx, core.PatternSender, "a@x.com", core.ActionDiscard)
	require.NoError(t, err)
	assert.Equal(t, 2, p.UsageCount)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestClosedStoreReportsUnavailable(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "easemail.db"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Match(context.Background(), &core.Item{Sender: "a@x.com"})
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestSetSeedsAndOverrides(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			p, err := s.Set(ctx, core.PatternDomain, "shop.com", core.ActionDiscard, 0.85)
			require.NoError(t, err)
			assert.InDelta(t, 0.85, p.Confidence, 1e-9)
			assert.Zero(t, p.UsageCount)
			assert.NotZero(t, p.ID)

			matched, err := s.Match(ctx, &core.Item{Sender: "deals@shop.com"})
			require.NoError(t, err)
			require.Len(t, matched, 1)
			assert.Equal(t, p.ID, matched[0].ID)

			_, err = s.Reinforce(ctx, core.PatternDomain, "shop.com", core.ActionDiscard)
			require.NoError(t, err)
			again, err := s.Set(ctx, core.PatternDomain, "shop.com", core.ActionDiscard, 0.5)
			require.NoError(t, err)
			assert.Equal(t, p.ID, again.ID)
			assert.InDelta(t, 0.5, again.Confidence, 1e-9)
			assert.Zero(t, again.UsageCount)

			all, err := s.All(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestDeletePreference(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			keep, err := s.Reinforce(ctx, core.PatternSender, "a@x.com", core.ActionDefer)
			require.NoError(t, err)
			gone, err := s.Set(ctx, core.PatternSubjectKeyword, "invoice", core.ActionActNow, 0.9)
			require.NoError(t, err)

			require.NoError(t, s.Delete(ctx, gone.ID))
			err = s.Delete(ctx, gone.ID)
			assert.ErrorIs(t, err, core.ErrPreferenceNotFound)
			assert.NotErrorIs(t, err, core.ErrStoreUnavailable)

			all, err := s.All(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, keep.ID, all[0].ID)
		})
	}
}
