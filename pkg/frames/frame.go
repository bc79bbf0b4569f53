// Package frames decodes the multiplexed rewrite stream returned by the backend.
//
// The backend answers a rephrase request with a chunked body made of
// `data: <payload>` lines. Each payload is either the `[DONE]` sentinel or a
// small JSON object. The decoder turns those lines into a closed set of Frame
// values so that downstream code never has to inspect raw JSON again.
package frames

import "fmt"

// Frame is one decoded logical record of the response stream.
//
// The set of implementations is closed: TextDelta, StyleBegin, StyleEnd, End
// and BackendError.
type Frame interface {
	isFrame()
	String() string
}

// TextDelta carries a piece of generated text for the currently selected style.
type TextDelta struct {
	Text string
}

// StyleBegin selects the accumulation slot for the following deltas.
type StyleBegin struct {
	Index int
}

// StyleEnd marks the end of a style. It is advisory only.
type StyleEnd struct {
	Index int
}

// End terminates the stream. Sentinel is true when the backend sent `[DONE]`,
// false when the transport was closed cleanly without it.
type End struct {
	Sentinel bool
}

// BackendError is emitted by the backend when generation failed after the
// response had already started.
type BackendError struct {
	Message string
	Code    string
}

func (TextDelta) isFrame()    {}
func (StyleBegin) isFrame()   {}
func (StyleEnd) isFrame()     {}
func (End) isFrame()          {}
func (BackendError) isFrame() {}

func (f TextDelta) String() string  { return fmt.Sprintf("text_delta(%q)", f.Text) }
func (f StyleBegin) String() string { return fmt.Sprintf("style_begin(%d)", f.Index) }
func (f StyleEnd) String() string   { return fmt.Sprintf("style_end(%d)", f.Index) }

func (f End) String() string {
	if f.Sentinel {
		return "end([DONE])"
	}
	return "end(eof)"
}

func (f BackendError) String() string {
	if f.Code == "" {
		return fmt.Sprintf("backend_error(%q)", f.Message)
	}
	return fmt.Sprintf("backend_error(%s: %q)", f.Code, f.Message)
}

// Sentinel is the payload the backend sends to mark normal completion.
const Sentinel = "[DONE]"

// DataPrefix starts every line that carries a payload.
const DataPrefix = "data: "
