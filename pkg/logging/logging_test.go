package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })
	var buf bytes.Buffer
	l, err := New(&buf, Settings{Level: "warn", Format: "json"}, true)
	require.NoError(t, err)

	l.Info().Msg("hidden")
	l.Warn().Str("component", "test").Msg("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"component":"test"`)
	require.Contains(t, buf.String(), `"level":"warn"`)
}

func TestNew_AutoIsJSONWithoutTerminal(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })
	var buf bytes.Buffer
	l, err := New(&buf, Settings{}, false)
	require.NoError(t, err)
	l.Info().Msg("hello")
	require.Contains(t, buf.String(), `"message":"hello"`)
}

func TestNew_Console(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })
	var buf bytes.Buffer
	l, err := New(&buf, Settings{Format: "console"}, false)
	require.NoError(t, err)
	l.Info().Msg("hello")
	require.Contains(t, buf.String(), "hello")
	require.NotContains(t, buf.String(), `"message"`)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Settings{Level: "loud"}, false)
	require.Error(t, err)
	_, err = New(&bytes.Buffer{}, Settings{Format: "xml"}, false)
	require.Error(t, err)
}
