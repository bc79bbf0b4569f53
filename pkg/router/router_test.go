package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/rephrase/pkg/frames"
	"github.com/go-go-golems/rephrase/pkg/history"
)

func newRouter(t *testing.T, styles ...string) (*Router, *history.Store, []string) {
	t.Helper()
	store := history.NewStore()
	store.Append(history.Turn{Role: history.RoleUser, Content: "input"})
	ids := make([]string, 0, len(styles))
	for _, s := range styles {
		ids = append(ids, store.Append(history.Turn{Role: history.RoleAssistant, Style: s}))
	}
	return New(ids, store), store, ids
}

func route(r *Router, fs ...frames.Frame) {
	for _, f := range fs {
		r.Route(f)
	}
}

func TestRouter_SingleStyleWithoutMarkers(t *testing.T) {
	r, store, ids := newRouter(t, "office")
	route(r, frames.TextDelta{Text: "Hello"}, frames.TextDelta{Text: " there"})

	got, _ := store.Get(ids[0])
	require.Equal(t, "Hello there", got.Content)
	require.Equal(t, history.StatusStreaming, got.Status)
	require.Equal(t, 2, r.Deltas())
}

func TestRouter_InterleavedStyles(t *testing.T) {
	r, store, ids := newRouter(t, "office", "fun")
	route(r,
		frames.StyleBegin{Index: 0}, frames.TextDelta{Text: "A"},
		frames.StyleBegin{Index: 1}, frames.TextDelta{Text: "B"},
		frames.StyleBegin{Index: 0}, frames.TextDelta{Text: "C"},
	)
	require.Equal(t, []string{"AC", "B"}, r.Contents())

	t0, _ := store.Get(ids[0])
	t1, _ := store.Get(ids[1])
	require.Equal(t, "AC", t0.Content)
	require.Equal(t, "B", t1.Content)
}

func TestRouter_ArrivalOrderDoesNotReorderTurns(t *testing.T) {
	r, store, _ := newRouter(t, "office", "fun", "slack")
	route(r,
		frames.StyleBegin{Index: 2}, frames.TextDelta{Text: "third"}, frames.StyleEnd{Index: 2},
		frames.StyleBegin{Index: 0}, frames.TextDelta{Text: "first"}, frames.StyleEnd{Index: 0},
		frames.StyleBegin{Index: 1}, frames.TextDelta{Text: "second"}, frames.StyleEnd{Index: 1},
	)
	snap := store.Snapshot()
	require.Equal(t, []string{"input", "first", "second", "third"}, []string{
		snap[0].Content, snap[1].Content, snap[2].Content, snap[3].Content,
	})
	require.Equal(t, []string{"office", "fun", "slack"}, []string{snap[1].Style, snap[2].Style, snap[3].Style})
	require.True(t, r.Ended(0))
	require.True(t, r.Begun(2))
}

func TestRouter_StyleEndIsAdvisory(t *testing.T) {
	r, _, _ := newRouter(t, "office", "fun")
	route(r,
		frames.StyleBegin{Index: 1}, frames.TextDelta{Text: "x"},
		frames.StyleEnd{Index: 1}, frames.TextDelta{Text: "y"},
	)
	require.Equal(t, []string{"", "xy"}, r.Contents())
	require.Equal(t, 1, r.Current())
}

func TestRouter_OutOfRangeIndexClampsToZero(t *testing.T) {
	r, _, _ := newRouter(t, "office", "fun")
	route(r,
		frames.StyleBegin{Index: 1}, frames.TextDelta{Text: "b"},
		frames.StyleBegin{Index: 7}, frames.TextDelta{Text: "a"},
		frames.StyleBegin{Index: -1}, frames.TextDelta{Text: "z"},
	)
	require.Equal(t, []string{"az", "b"}, r.Contents())
	require.Equal(t, 2, r.Clamped())
}

func TestRouter_FinalizeSkipsFailedSlots(t *testing.T) {
	r, store, ids := newRouter(t, "office", "fun")
	route(r, frames.StyleBegin{Index: 0}, frames.TextDelta{Text: "ok"})
	store.Update(ids[1], history.StatusPatch(history.StatusError))
	r.MarkFailed(1)
	require.True(t, r.Failed(1))
	require.False(t, r.Failed(0))
	require.False(t, r.Failed(7))
	r.Finalize(history.StatusPatch(history.StatusComplete))

	t0, _ := store.Get(ids[0])
	t1, _ := store.Get(ids[1])
	require.Equal(t, history.StatusComplete, t0.Status)
	require.Equal(t, history.StatusError, t1.Status)
}

func TestRouter_ClearedStoreAbsorbsUpdates(t *testing.T) {
	r, store, _ := newRouter(t, "office")
	route(r, frames.TextDelta{Text: "before"})
	store.Clear()
	route(r, frames.TextDelta{Text: " after"})
	r.Finalize(history.StatusPatch(history.StatusComplete))

	require.Empty(t, store.Snapshot())
	require.Equal(t, []string{"before after"}, r.Contents())
}

func TestRouter_ReplayIsDeterministic(t *testing.T) {
	stream := []frames.Frame{
		frames.StyleBegin{Index: 1}, frames.TextDelta{Text: "β"},
		frames.StyleBegin{Index: 0}, frames.TextDelta{Text: "α"}, frames.TextDelta{Text: "α"},
		frames.StyleEnd{Index: 0}, frames.End{Sentinel: true},
	}
	r1, _, _ := newRouter(t, "a", "b")
	r2, _, _ := newRouter(t, "a", "b")
	route(r1, stream...)
	route(r2, stream...)
	require.Equal(t, r1.Contents(), r2.Contents())
}
