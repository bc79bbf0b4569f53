package frames

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Encoder writes frames in the wire format understood by Decoder. It is the
// server half of the protocol and is used by the fixture backend.
type Encoder struct {
	w       io.Writer
	flusher http.Flusher
}

func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// Encode writes one frame followed by a blank line and flushes.
func (e *Encoder) Encode(f Frame) error {
	var body any
	switch v := f.(type) {
	case TextDelta:
		body = map[string]any{"content": v.Text}
	case StyleBegin:
		body = map[string]any{"style_start": true, "style_index": v.Index}
	case StyleEnd:
		body = map[string]any{"style_end": true, "style_index": v.Index}
	case BackendError:
		m := map[string]any{"error": v.Message}
		if v.Code != "" {
			m["error_code"] = v.Code
		}
		body = m
	case End:
		return e.WriteRaw(DataPrefix + Sentinel + "\n\n")
	default:
		return errors.Errorf("frames: cannot encode %T", f)
	}
	b, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "frames: marshal payload")
	}
	return e.WriteRaw(DataPrefix + string(b) + "\n\n")
}

// WriteRaw writes s verbatim and flushes. It lets fixtures emit padding,
// comments or deliberately malformed payloads.
func (e *Encoder) WriteRaw(s string) error {
	if _, err := io.WriteString(e.w, s); err != nil {
		return errors.Wrap(err, "frames: write")
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}
