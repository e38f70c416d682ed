package optout

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestLedger(t *testing.T, path string, c *clock) *Ledger {
	l, err := NewLedger(path, 7*24*time.Hour, zap.NewNop(), WithClock(c.now))
	require.NoError(t, err)
	return l
}

func TestRepeatOffenderNeedsSpan(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	l := newTestLedger(t, filepath.Join(t.TempDir(), "ledger.json"), c)
	ctx := context.Background()

	rec, err := l.RecordRequest(ctx, "news@shop.com")
	require.NoError(t, err)
	assert.Equal(t, "shop.com", rec.Domain)
	assert.Equal(t, 1, rec.RequestCount)
	assert.False(t, rec.RepeatOffender)

	c.t = c.t.Add(3 * 24 * time.Hour)
	rec, err = l.RecordRequest(ctx, "deals@shop.com")
	require.NoError(t, err)
	assert.Equal(t, 2, rec.RequestCount)
	assert.False(t, rec.RepeatOffender)

	c.t = c.t.Add(4 * 24 * time.Hour)
	rec, err = l.RecordRequest(ctx, "news@Shop.com")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.RequestCount)
	assert.True(t, rec.RepeatOffender)
	assert.Equal(t, 7*24*time.Hour, rec.LastRequest.Sub(rec.FirstRequest))
}

func TestLedgerPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.json")
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	ctx := context.Background()

	l := newTestLedger(t, path, c)
	_, err := l.RecordRequest(ctx, "a@one.com")
	require.NoError(t, err)
	c.t = c.t.Add(10 * 24 * time.Hour)
	_, err = l.RecordRequest(ctx, "b@one.com")
	require.NoError(t, err)
	_, err = l.RecordRequest(ctx, "c@two.com")
	require.NoError(t, err)

	reopened := newTestLedger(t, path, c)
	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Domains)
	assert.Equal(t, 1, stats.RepeatOffenders)
	assert.Equal(t, 3, stats.TotalRequests)
}

func TestEmptyLedgerStats(t *testing.T) {
	l := newTestLedger(t, filepath.Join(t.TempDir(), "missing.json"), &clock{})
	stats, err := l.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Domains)
	assert.Zero(t, stats.TotalRequests)
}

func TestErasureSubject(t *testing.T) {
	assert.Equal(t, "Re: Weekly deals - Data Erasure Request", ErasureSubject("Weekly deals"))
	assert.Equal(t, "RE: Weekly deals - Data Erasure Request", ErasureSubject("RE: Weekly deals"))
	assert.Equal(t, "Re: Weekly deals - Data Erasure Request", ErasureSubject("Re: Weekly deals - Data Erasure Request"))
	assert.Equal(t, "Re: Your data erasure request", ErasureSubject("Your data erasure request"))
}

func TestErasureDraft(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := newTestLedger(t, filepath.Join(t.TempDir(), "ledger.json"), &clock{t: now})

	d := l.ErasureDraft("news@shop.com", "Weekly deals")
	assert.Equal(t, "news@shop.com", d.To)
	assert.Equal(t, "Re: Weekly deals - Data Erasure Request", d.Subject)
	assert.Contains(t, d.Body, "Article 17")
	assert.Contains(t, d.Body, "withdrawn")
	assert.Equal(t, now, d.CreatedAt)
}

func TestRecordSurvivesSaveFailure(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	path := filepath.Join(t.TempDir(), "ledger.json")
	l := newTestLedger(t, path, c)
	ctx := context.Background()

	_, err := l.RecordRequest(ctx, "news@shop.com")
	require.NoError(t, err)

	// a directory where the temp file goes makes the next save fail
	require.NoError(t, os.Mkdir(path+".tmp", 0o755))
	c.t = c.t.Add(8 * 24 * time.Hour)
	rec, err := l.RecordRequest(ctx, "news@shop.com")
	assert.Error(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.RequestCount)
	assert.True(t, rec.RepeatOffender)
}
