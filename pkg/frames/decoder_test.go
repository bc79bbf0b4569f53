package frames

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, d *Decoder) ([]Frame, error) {
	t.Helper()
	var out []Frame
	for f, err := range d.All() {
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
	return out, nil
}

func TestDecoder_SingleStyleWithSentinel(t *testing.T) {
	in := "data: {\"content\":\"Hello\"}\n\ndata: {\"content\":\" there\"}\n\ndata: [DONE]\n\n"
	frames, err := collect(t, NewDecoder(strings.NewReader(in)))
	require.NoError(t, err)
	require.Equal(t, []Frame{
		TextDelta{Text: "Hello"},
		TextDelta{Text: " there"},
		End{Sentinel: true},
	}, frames)
}

func TestDecoder_OneByteReads(t *testing.T) {
	in := "data: {\"style_start\":true,\"style_index\":1}\r\ndata: {\"content\":\"héllo\"}\n" +
		"data: {\"style_end\":true,\"style_index\":1}\ndata: [DONE]\n"
	d := NewDecoder(iotest.OneByteReader(strings.NewReader(in)))
	frames, err := collect(t, d)
	require.NoError(t, err)
	require.Equal(t, []Frame{
		StyleBegin{Index: 1},
		TextDelta{Text: "héllo"},
		StyleEnd{Index: 1},
		End{Sentinel: true},
	}, frames)
}

func TestDecoder_SentinelStopsReading(t *testing.T) {
	in := "data: {\"content\":\"a\"}\ndata: [DONE]\ndata: {\"content\":\"never\"}\n"
	d := NewDecoder(strings.NewReader(in))
	frames, err := collect(t, d)
	require.NoError(t, err)
	require.Equal(t, []Frame{TextDelta{Text: "a"}, End{Sentinel: true}}, frames)

	_, err = d.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoder_CleanEOFWithoutSentinel(t *testing.T) {
	in := "data: {\"content\":\"a\"}\ndata: {\"content\":\"b\"}"
	frames, err := collect(t, NewDecoder(strings.NewReader(in)))
	require.NoError(t, err)
	require.Equal(t, []Frame{TextDelta{Text: "a"}, TextDelta{Text: "b"}, End{Sentinel: false}}, frames)
}

func TestDecoder_SkipsMalformedAndForeignLines(t *testing.T) {
	in := strings.Join([]string{
		": keepalive",
		"event: message",
		"data: {\"content\":\"one\"}",
		"data: this is not json",
		"data: {\"unknown\":1}",
		"data: {\"content\":\"\"}",
		"data: {\"style_index\":\"x\",\"style_start\":true}",
		"data:{\"content\":\"no space\"}",
		"data: {\"content\":\"two\"}",
		"data: [DONE]",
	}, "\n")
	d := NewDecoder(strings.NewReader(in))
	frames, err := collect(t, d)
	require.NoError(t, err)
	require.Equal(t, []Frame{TextDelta{Text: "one"}, TextDelta{Text: "two"}, End{Sentinel: true}}, frames)
	require.Equal(t, 3, d.Skipped())
}

func TestDecoder_StyleMarkerWithoutIndexDefaultsToZero(t *testing.T) {
	frames, err := collect(t, NewDecoder(strings.NewReader("data: {\"style_start\":true}\n")))
	require.NoError(t, err)
	require.Equal(t, []Frame{StyleBegin{Index: 0}, End{}}, frames)
}

func TestDecoder_BackendError(t *testing.T) {
	in := "data: {\"error\":\"OpenAI API error: boom\",\"error_code\":\"API_ERROR\"}\n"
	frames, err := collect(t, NewDecoder(strings.NewReader(in)))
	require.NoError(t, err)
	require.Equal(t, BackendError{Message: "OpenAI API error: boom", Code: "API_ERROR"}, frames[0])
}

func TestDecoder_TransportFailure(t *testing.T) {
	boom := errors.New("connection reset by peer")
	r := io.MultiReader(strings.NewReader("data: {\"content\":\"partial\"}\n"), iotest.ErrReader(boom))
	d := NewDecoder(r)

	f, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, TextDelta{Text: "partial"}, f)

	_, err = d.Next()
	var te *TransportError
	require.ErrorAs(t, err, &te)
	require.ErrorIs(t, err, boom)

	_, err = d.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestEncoder_RoundTripsThroughDecoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	in := []Frame{
		StyleBegin{Index: 0},
		TextDelta{Text: "line\nbreak \"quoted\""},
		StyleEnd{Index: 0},
		BackendError{Message: "nope", Code: "CONFIG_ERROR"},
		End{Sentinel: true},
	}
	for _, f := range in {
		require.NoError(t, enc.Encode(f))
	}
	out, err := collect(t, NewDecoder(&buf))
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestDecoder_OversizedLineIsSkipped(t *testing.T) {
	in := "data: {\"content\":\"" + strings.Repeat("x", 100) + "\"}\n" +
		"data: {\"content\":\"ok\"}\n" +
		"data: [DONE]\n"
	d := NewDecoder(iotest.HalfReader(strings.NewReader(in)), WithBufferSize(16), WithMaxLineSize(32))
	frames, err := collect(t, d)
	require.NoError(t, err)
	require.Equal(t, []Frame{TextDelta{Text: "ok"}, End{Sentinel: true}}, frames)
	require.Equal(t, 1, d.Skipped())
}

func TestDecoder_LongLineWithinLimitSpansBuffers(t *testing.T) {
	long := strings.Repeat("é", 200)
	in := "data: {\"content\":\"" + long + "\"}\n"
	frames, err := collect(t, NewDecoder(strings.NewReader(in), WithBufferSize(16)))
	require.NoError(t, err)
	require.Equal(t, []Frame{TextDelta{Text: long}, End{}}, frames)
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	require.Equal(t, "é…", truncate("ééé", 3))
	require.Equal(t, "ab…", truncate("abcd", 2))
	require.Equal(t, "abc", truncate("abc", 3))
}
