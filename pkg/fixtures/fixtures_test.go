package fixtures

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/rephrase/pkg/catalog"
	"github.com/go-go-golems/rephrase/pkg/coordinator"
	"github.com/go-go-golems/rephrase/pkg/history"
)

const interleaved = `
delay: 1ms
frames:
  - style_start: 0
  - content: "A"
  - style_start: 1
  - content: "B"
  - raw: "data: {broken"
  - style_start: 0
  - content: "C"
  - done: true
styles:
  - id: pirate
    label: Pirate
    icon: "🏴‍☠️"
    description: Arr
models:
  models: [m1, m2]
  default: m2
`

func start(t *testing.T, script *Script) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(script).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestParseScript(t *testing.T) {
	s, err := ParseScript([]byte(interleaved))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, s.Status)
	require.Len(t, s.Frames, 9)
	require.Equal(t, "m2", s.Models.Default)

	_, err = ParseScript([]byte("frames:\n  - content: a\n    done: true\n"))
	require.Error(t, err)
	_, err = ParseScript([]byte("frames:\n  - {}\n"))
	require.Error(t, err)
}

func TestReplay_AgainstCoordinator(t *testing.T) {
	s, err := ParseScript([]byte(interleaved))
	require.NoError(t, err)
	srv := start(t, s)

	store := history.NewStore()
	c, err := coordinator.New(store, srv.URL)
	require.NoError(t, err)
	res, err := c.Submit(context.Background(), coordinator.Submission{Text: "x", Styles: coordinator.StyleList{"a", "b"}})
	require.NoError(t, err)
	require.Equal(t, coordinator.OutcomeComplete, res.Outcome)
	require.Equal(t, []string{"AC", "B"}, res.Contents)
}

func TestReplay_EchoWithoutFrames(t *testing.T) {
	srv := start(t, nil)
	store := history.NewStore()
	c, err := coordinator.New(store, srv.URL)
	require.NoError(t, err)

	res, err := c.Submit(context.Background(), coordinator.Submission{Text: "hi", Styles: coordinator.StyleList{"office", "fun"}})
	require.NoError(t, err)
	require.Equal(t, []string{"[office] hi", "[fun] hi"}, res.Contents)
}

func TestReplay_StatusBeforeStream(t *testing.T) {
	srv := start(t, &Script{Status: http.StatusUnauthorized})
	c, err := coordinator.New(history.NewStore(), srv.URL)
	require.NoError(t, err)

	res, err := c.Submit(context.Background(), coordinator.SingleStyle("x", "fun", ""))
	require.NoError(t, err)
	require.Equal(t, coordinator.OutcomeError, res.Outcome)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Contains(t, res.Message, "Authentication error")
}

func TestReplay_StreamHeaders(t *testing.T) {
	srv := start(t, nil)
	resp, err := http.Post(srv.URL+"/api/rephrase", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/rephrase", "application/json", strings.NewReader(`{"text":"x","style":"fun"}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	require.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
}

func TestCatalogEndpoints(t *testing.T) {
	s, err := ParseScript([]byte(interleaved))
	require.NoError(t, err)
	srv := start(t, s)
	cl := catalog.NewClient(srv.URL, nil)

	styles, err := cl.Styles(context.Background())
	require.NoError(t, err)
	require.Equal(t, "pirate", styles[0].ID)

	models, err := cl.Models(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"m1", "m2"}, models.Models)

	plain := catalog.NewClient(start(t, nil).URL, nil)
	styles, err = plain.Styles(context.Background())
	require.NoError(t, err)
	require.Equal(t, catalog.FallbackStyles(), styles)
}
