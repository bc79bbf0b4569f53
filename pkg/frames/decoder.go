package frames

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TransportError reports that the underlying byte stream failed before the
// stream was terminated. Frames returned before the failure stay valid.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "frames: transport read failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// payload mirrors every JSON shape the backend may send. Pointers distinguish
// "absent" from zero values so that validation can happen in one place.
type payload struct {
	Content    *string `json:"content"`
	StyleStart *bool   `json:"style_start"`
	StyleEnd   *bool   `json:"style_end"`
	StyleIndex *int    `json:"style_index"`
	Error      *string `json:"error"`
	ErrorCode  string  `json:"error_code"`
}

// Decoder turns a byte stream into a lazy sequence of frames.
//
// Line boundaries do not need to be aligned with reads on the underlying
// reader: partial lines are buffered until their newline arrives.
type Decoder struct {
	r       *bufio.Reader
	logger  zerolog.Logger
	maxLine int
	line    []byte
	done    bool
	skipped int
}

// DefaultMaxLineSize bounds a single line. Longer lines are dropped and
// counted as skipped.
const DefaultMaxLineSize = 1 << 20

type DecoderOption func(*Decoder)

// WithLogger sets the logger used to report skipped frames.
func WithLogger(l zerolog.Logger) DecoderOption {
	return func(d *Decoder) {
		d.logger = l
	}
}

// WithMaxLineSize overrides DefaultMaxLineSize.
func WithMaxLineSize(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxLine = n
		}
	}
}

// WithBufferSize sets the initial read buffer size. Lines longer than the
// buffer are still decoded.
func WithBufferSize(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.r = bufio.NewReaderSize(d.r, n)
		}
	}
}

func NewDecoder(r io.Reader, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		r:       bufio.NewReader(r),
		logger:  log.With().Str("component", "frames").Logger(),
		maxLine: DefaultMaxLineSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Skipped returns how many malformed or oversized lines were dropped so far.
func (d *Decoder) Skipped() int {
	return d.skipped
}

// Next returns the next frame. After an End frame has been returned, Next
// returns io.EOF. A failing transport is reported as *TransportError.
func (d *Decoder) Next() (Frame, error) {
	if d.done {
		return nil, io.EOF
	}
	for {
		line, oversized, readErr := d.readLine()
		if oversized {
			d.skipped++
			d.logger.Warn().Int("max_line_size", d.maxLine).Msg("skipping oversized line")
		} else if len(line) > 0 {
			if f, ok := d.decodeLine(line); ok {
				if _, isEnd := f.(End); isEnd {
					d.done = true
				}
				return f, nil
			}
		}
		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			d.done = true
			return End{Sentinel: false}, nil
		}
		d.done = true
		return nil, &TransportError{Err: readErr}
	}
}

// All exposes the decoder as a range-able sequence. Iteration stops after the
// End frame or after yielding a terminal error.
func (d *Decoder) All() iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for {
			f, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(f, err) || err != nil {
				return
			}
		}
	}
}

// readLine reads up to and including the next newline. The returned slice is
// only valid until the next call. An oversized line is consumed but not kept.
func (d *Decoder) readLine() ([]byte, bool, error) {
	d.line = d.line[:0]
	oversized := false
	for {
		chunk, err := d.r.ReadSlice('\n')
		if !oversized {
			if len(d.line)+len(chunk) > d.maxLine {
				oversized = true
				d.line = d.line[:0]
			} else {
				d.line = append(d.line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return d.line, oversized, err
	}
}

func (d *Decoder) decodeLine(line []byte) (Frame, bool) {
	line = bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(line, []byte(DataPrefix)) {
		return nil, false
	}
	data := line[len(DataPrefix):]
	if strings.TrimSpace(string(data)) == Sentinel {
		return End{Sentinel: true}, true
	}
	f, err := ParsePayload(data)
	if err != nil {
		d.skipped++
		d.logger.Debug().Err(err).Str("payload", truncate(string(data), 200)).Msg("skipping malformed frame")
		return nil, false
	}
	if f == nil {
		return nil, false
	}
	return f, true
}

// ParsePayload validates one JSON payload and converts it into a frame.
// A nil frame with a nil error means the payload is well-formed but carries
// nothing to act on (for example an empty content delta).
func ParsePayload(data []byte) (Frame, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "invalid frame payload")
	}
	index := 0
	if p.StyleIndex != nil {
		index = *p.StyleIndex
	}
	switch {
	case p.StyleStart != nil && *p.StyleStart:
		return StyleBegin{Index: index}, nil
	case p.StyleEnd != nil && *p.StyleEnd:
		return StyleEnd{Index: index}, nil
	case p.Error != nil:
		return BackendError{Message: *p.Error, Code: p.ErrorCode}, nil
	case p.Content != nil:
		if *p.Content == "" {
			return nil, nil
		}
		return TextDelta{Text: *p.Content}, nil
	}
	return nil, errors.New("frame payload has no known field")
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
