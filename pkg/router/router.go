// Package router demultiplexes a decoded frame sequence into per-style slots.
package router

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/rephrase/pkg/frames"
	"github.com/go-go-golems/rephrase/pkg/history"
)

// Sink receives partial updates for the turn bound to a slot.
// *history.Store implements it.
type Sink interface {
	Update(id string, patch history.Patch) bool
}

// Router owns one accumulation buffer per requested style. Slot i is bound
// to turnIDs[i]; the binding never changes, so the order of turns in the
// history is the request order no matter which style_index the stream claims.
type Router struct {
	turnIDs []string
	sink    Sink
	logger  zerolog.Logger

	buffers []strings.Builder
	current int
	begun   []bool
	ended   []bool
	failed  []bool
	clamped int
	deltas  int
}

type Option func(*Router)

func WithLogger(l zerolog.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// New returns a router for len(turnIDs) slots. It panics on zero slots,
// callers always request at least one style.
func New(turnIDs []string, sink Sink, opts ...Option) *Router {
	if len(turnIDs) == 0 {
		panic("router: at least one slot is required")
	}
	r := &Router{
		turnIDs: append([]string(nil), turnIDs...),
		sink:    sink,
		logger:  log.With().Str("component", "router").Logger(),
		buffers: make([]strings.Builder, len(turnIDs)),
		begun:   make([]bool, len(turnIDs)),
		ended:   make([]bool, len(turnIDs)),
		failed:  make([]bool, len(turnIDs)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Slots returns the number of slots.
func (r *Router) Slots() int { return len(r.turnIDs) }

// Current returns the selected slot index.
func (r *Router) Current() int { return r.current }

// Clamped counts style indices that were out of range and redirected to slot 0.
func (r *Router) Clamped() int { return r.clamped }

// Deltas counts routed text deltas.
func (r *Router) Deltas() int { return r.deltas }

// Route applies one frame. It returns the slot a text delta was written to,
// or -1 for frames that carry no text.
func (r *Router) Route(f frames.Frame) int {
	switch v := f.(type) {
	case frames.StyleBegin:
		// Selecting a slot again continues it: a slot's content is every delta
		// delivered while it was selected, however the styles interleave.
		i := r.clamp(v.Index)
		r.current = i
		r.begun[i] = true
		r.ended[i] = false
		return -1
	case frames.StyleEnd:
		r.ended[r.clamp(v.Index)] = true
		return -1
	case frames.TextDelta:
		i := r.current
		r.buffers[i].WriteString(v.Text)
		r.deltas++
		if r.sink != nil {
			r.sink.Update(r.turnIDs[i], history.ContentPatch(r.buffers[i].String()))
		}
		return i
	default:
		return -1
	}
}

// Begun reports whether the backend opened slot i with a style marker.
func (r *Router) Begun(i int) bool {
	if i < 0 || i >= len(r.begun) {
		return false
	}
	return r.begun[i]
}

// Ended reports whether the backend sent an end marker for slot i.
func (r *Router) Ended(i int) bool {
	if i < 0 || i >= len(r.ended) {
		return false
	}
	return r.ended[i]
}

// Contents returns a copy of every slot's accumulated text, in request order.
func (r *Router) Contents() []string {
	out := make([]string, len(r.buffers))
	for i := range r.buffers {
		out[i] = r.buffers[i].String()
	}
	return out
}

// TurnIDs returns the turn ids bound to the slots, in request order.
func (r *Router) TurnIDs() []string {
	return append([]string(nil), r.turnIDs...)
}

// MarkFailed excludes slot i from Finalize.
func (r *Router) MarkFailed(i int) {
	if i >= 0 && i < len(r.failed) {
		r.failed[i] = true
	}
}

// Failed reports whether slot i was marked failed.
func (r *Router) Failed(i int) bool {
	return i >= 0 && i < len(r.failed) && r.failed[i]
}

// Finalize applies patch to every slot that was not marked failed.
func (r *Router) Finalize(patch history.Patch) {
	if r.sink == nil {
		return
	}
	for i, id := range r.turnIDs {
		if r.failed[i] {
			continue
		}
		r.sink.Update(id, patch)
	}
}

func (r *Router) clamp(i int) int {
	if i >= 0 && i < len(r.turnIDs) {
		return i
	}
	r.clamped++
	r.logger.Warn().Int("style_index", i).Int("slots", len(r.turnIDs)).Msg("style index out of range, routing to slot 0")
	return 0
}
