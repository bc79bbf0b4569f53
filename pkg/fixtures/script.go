// Package fixtures serves a scripted stand-in for the rewrite backend. A
// script lists the frames to stream, so protocol edge cases can be replayed
// against the real client.
package fixtures

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/rephrase/pkg/catalog"
	"github.com/go-go-golems/rephrase/pkg/frames"
)

// Step is one scripted frame. Exactly one field is expected to be set.
type Step struct {
	Content    *string `yaml:"content,omitempty"`
	StyleStart *int    `yaml:"style_start,omitempty"`
	StyleEnd   *int    `yaml:"style_end,omitempty"`
	Error      *string `yaml:"error,omitempty"`
	ErrorCode  string  `yaml:"error_code,omitempty"`

	// Raw is written verbatim, followed by a newline.
	Raw   *string       `yaml:"raw,omitempty"`
	Done  bool          `yaml:"done,omitempty"`
	Sleep time.Duration `yaml:"sleep,omitempty"`
}

type Script struct {
	// Status other than 200 is returned before any byte of the stream.
	Status int           `yaml:"status"`
	Delay  time.Duration `yaml:"delay"`

	// Frames empty means: echo the input once per requested style.
	Frames []Step          `yaml:"frames"`
	Styles []catalog.Style `yaml:"styles"`
	Models *catalog.Models `yaml:"models"`
}

func LoadScript(path string) (*Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read fixture script")
	}
	return ParseScript(b)
}

func ParseScript(b []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrap(err, "parse fixture script")
	}
	if s.Status == 0 {
		s.Status = 200
	}
	for i, st := range s.Frames {
		if st.count() != 1 {
			return nil, errors.Errorf("fixture frame %d: exactly one of content, style_start, style_end, error, raw, done must be set", i)
		}
	}
	return &s, nil
}

func (s Step) count() int {
	n := 0
	for _, set := range []bool{s.Content != nil, s.StyleStart != nil, s.StyleEnd != nil, s.Error != nil, s.Raw != nil, s.Done} {
		if set {
			n++
		}
	}
	return n
}

func (s Step) frame() frames.Frame {
	switch {
	case s.Content != nil:
		return frames.TextDelta{Text: *s.Content}
	case s.StyleStart != nil:
		return frames.StyleBegin{Index: *s.StyleStart}
	case s.StyleEnd != nil:
		return frames.StyleEnd{Index: *s.StyleEnd}
	case s.Error != nil:
		return frames.BackendError{Message: *s.Error, Code: s.ErrorCode}
	case s.Done:
		return frames.End{Sentinel: true}
	}
	return nil
}
