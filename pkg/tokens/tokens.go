// Package tokens estimates token counts for cycle telemetry.
package tokens

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/weaviate/tiktoken-go"
)

const DefaultEncoding = "cl100k_base"

type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a plain function to Counter.
type CounterFunc func(text string) int

func (f CounterFunc) Count(text string) int { return f(text) }

// Estimate is the fallback used when no encoding is available: roughly four
// bytes per token, never less than one for non-empty text.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	return max(1, (len(text)+3)/4)
}

// Tiktoken counts tokens with a BPE encoding. Loading the encoding may hit
// the network, so it happens in the background: until it is ready, or when it
// failed, Count returns Estimate. Count never blocks.
type Tiktoken struct {
	encoding string
	loader   func(string) (*tiktoken.Tiktoken, error)

	once  sync.Once
	ready chan struct{}
	enc   *tiktoken.Tiktoken
}

var _ Counter = &Tiktoken{}

func NewTiktoken(encoding string) *Tiktoken {
	return newTiktoken(encoding, tiktoken.GetEncoding)
}

func newTiktoken(encoding string, loader func(string) (*tiktoken.Tiktoken, error)) *Tiktoken {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Tiktoken{encoding: encoding, loader: loader, ready: make(chan struct{})}
}

// Warm starts loading the encoding if that has not happened yet. The returned
// channel is closed once loading finished, successfully or not.
func (t *Tiktoken) Warm() <-chan struct{} {
	t.once.Do(func() {
		go func() {
			defer close(t.ready)
			enc, err := t.loader(t.encoding)
			if err != nil {
				log.Warn().Err(errors.Wrapf(err, "load encoding %s", t.encoding)).Str("component", "tokens").Msg("falling back to byte estimate")
				return
			}
			t.enc = enc
		}()
	})
	return t.ready
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	select {
	case <-t.Warm():
		if t.enc != nil {
			return len(t.enc.Encode(text, nil, nil))
		}
	default:
	}
	return Estimate(text)
}
