package journal

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func i64(v int64) *int64 { return &v }

func exerciseJournal(t *testing.T, j Journal) {
	t.Helper()
	ctx := context.Background()

	require.Error(t, j.Record(ctx, CycleRecord{}))

	require.NoError(t, j.Record(ctx, CycleRecord{
		CycleID:            "c1",
		StartedAtMs:        100,
		Model:              "gpt-4.1",
		Styles:             []string{"office", "fun"},
		Outcome:            OutcomeComplete,
		TimeToFirstTokenMs: i64(120),
		TotalTimeMs:        i64(900),
		Deltas:             12,
		InputTokens:        3,
		OutputTokens:       40,
	}))
	require.NoError(t, j.Record(ctx, CycleRecord{
		CycleID:      "c2",
		StartedAtMs:  200,
		Model:        "gpt-4.1",
		Styles:       []string{"default"},
		Outcome:      OutcomeError,
		TotalTimeMs:  i64(15),
		HTTPStatus:   429,
		ErrorMessage: "Rate limit exceeded. Please wait a moment before trying again.",
	}))

	got, err := j.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c2", got[0].CycleID)
	require.Nil(t, got[0].TimeToFirstTokenMs)
	require.Equal(t, int64(15), *got[0].TotalTimeMs)
	require.Equal(t, 429, got[0].HTTPStatus)

	require.Equal(t, "c1", got[1].CycleID)
	require.Equal(t, []string{"office", "fun"}, got[1].Styles)
	require.Equal(t, int64(120), *got[1].TimeToFirstTokenMs)
	require.Equal(t, 40, got[1].OutputTokens)

	// re-recording a cycle replaces it
	require.NoError(t, j.Record(ctx, CycleRecord{
		CycleID:     "c1",
		StartedAtMs: 100,
		Styles:      []string{"office", "fun"},
		Outcome:     OutcomeError,
	}))
	got, err = j.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "c2", got[0].CycleID)

	// style ids are opaque, separators included
	require.NoError(t, j.Record(ctx, CycleRecord{
		CycleID:     "c3",
		StartedAtMs: 300,
		Styles:      []string{"tone,formal", "plain"},
		Outcome:     OutcomeComplete,
	}))
	got, err = j.List(ctx, math.MaxInt)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []string{"tone,formal", "plain"}, got[0].Styles)
}

func TestInMemoryJournal(t *testing.T) {
	exerciseJournal(t, NewInMemoryJournal(10))
}

func TestInMemoryJournal_EvictsOldest(t *testing.T) {
	j := NewInMemoryJournal(2)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, j.Record(ctx, CycleRecord{CycleID: id, Outcome: OutcomeComplete}))
	}
	got, err := j.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c", got[0].CycleID)
	require.Equal(t, "b", got[1].CycleID)
}

func TestSQLiteJournal(t *testing.T) {
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	j, err := NewSQLiteJournal(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	exerciseJournal(t, j)
}

func TestSQLiteJournal_EmptyDSN(t *testing.T) {
	_, err := NewSQLiteJournal("")
	require.Error(t, err)
}
