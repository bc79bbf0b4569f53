// Package timing measures request-level latency for one rewrite cycle.
package timing

import (
	"sync"
	"time"
)

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

// Observer records start, first token and end of one request cycle.
//
// Time to first token is a property of the request, not of a single style:
// the first delta on any slot sets it.
type Observer struct {
	now Clock

	mu         sync.Mutex
	start      time.Time
	firstToken time.Time
	end        time.Time
	started    bool
	hasFirst   bool
	finished   bool
}

func NewObserver(clock Clock) *Observer {
	if clock == nil {
		clock = time.Now
	}
	return &Observer{now: clock}
}

// Start records the request issuance time. Calling it again restarts nothing.
func (o *Observer) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return
	}
	o.start = o.now()
	o.started = true
}

// MarkFirstToken records the first token time and reports whether this call
// was the one that set it.
func (o *Observer) MarkFirstToken() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.hasFirst || !o.started || o.finished {
		return false
	}
	o.firstToken = o.now()
	o.hasFirst = true
	return true
}

// Finish records the end of the cycle, success or error. Only the first call counts.
func (o *Observer) Finish() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.finished || !o.started {
		return
	}
	o.end = o.now()
	o.finished = true
}

// TimeToFirstToken is nil until a token was observed.
func (o *Observer) TimeToFirstToken() *int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.hasFirst {
		return nil
	}
	ttft := millis(o.firstToken.Sub(o.start))
	if o.finished {
		// rounding both values separately must not invert them
		if total := millis(o.end.Sub(o.start)); ttft > total {
			ttft = total
		}
	}
	return &ttft
}

// TotalTime is nil until Finish was called.
func (o *Observer) TotalTime() *int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.finished {
		return nil
	}
	total := millis(o.end.Sub(o.start))
	return &total
}

func millis(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return d.Round(time.Millisecond).Milliseconds()
}
