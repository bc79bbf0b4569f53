package events

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// Cursor positions an envelope for clients. Seq is strictly increasing per
// forwarder; StreamID is the Redis stream id when the bus is Redis-backed.
type Cursor struct {
	StreamID string
	Seq      uint64
}

// Forwarder consumes history envelopes from a subscriber and hands them to a
// callback in delivery order.
type Forwarder struct {
	topic      string
	subscriber message.Subscriber
	onEnvelope func(Envelope, Cursor)
	seq        seqCursor

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewForwarder(topic string, subscriber message.Subscriber, onEnvelope func(Envelope, Cursor)) *Forwarder {
	if topic == "" {
		topic = TopicHistory
	}
	return &Forwarder{
		topic:      topic,
		subscriber: subscriber,
		onEnvelope: onEnvelope,
	}
}

// Start subscribes before returning, so nothing published afterwards is
// missed, and consumes in the background until Stop or ctx cancellation.
func (f *Forwarder) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	msgs, err := f.subscriber.Subscribe(runCtx, f.topic)
	if err != nil {
		cancel()
		return err
	}
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.consume(msgs, f.done)
	return nil
}

// Done is closed once consumption has stopped. It is nil before Start.
func (f *Forwarder) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Run starts the forwarder and blocks until ctx is done or the subscription ends.
func (f *Forwarder) Run(ctx context.Context) error {
	if err := f.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		f.Stop()
		<-f.Done()
	case <-f.Done():
	}
	return nil
}

func (f *Forwarder) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *Forwarder) consume(msgs <-chan *message.Message, done chan struct{}) {
	defer close(done)
	logger := log.With().Str("component", "events").Str("topic", f.topic).Logger()
	logger.Debug().Msg("forwarder started")
	for msg := range msgs {
		env, err := DecodeEnvelope(msg.Payload)
		if err != nil {
			logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable envelope")
			msg.Ack()
			continue
		}
		streamID := msg.Metadata.Get("xid")
		if streamID == "" {
			streamID = msg.Metadata.Get("redis_xid")
		}
		cur := Cursor{StreamID: streamID, Seq: f.seq.next(streamID, time.Now())}
		if f.onEnvelope != nil {
			f.onEnvelope(env, cur)
		}
		msg.Ack()
	}
	logger.Debug().Msg("forwarder stopped")
}

// seqCursor hands out strictly increasing sequence numbers. Redis stream ids
// "ms-n" map onto ms*1e6+n so that reconnecting clients can compare cursors
// across forwarder restarts; without a stream id the wall clock is used.
type seqCursor struct {
	mu   sync.Mutex
	last uint64
}

func (c *seqCursor) next(streamID string, now time.Time) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	candidate, ok := seqFromStreamID(streamID)
	if !ok {
		candidate = uint64(now.UnixMilli()) * 1_000_000
	}
	c.last = max(candidate, c.last+1)
	return c.last
}

func seqFromStreamID(streamID string) (uint64, bool) {
	ms, n, ok := strings.Cut(streamID, "-")
	if !ok {
		return 0, false
	}
	msv, err := strconv.ParseUint(ms, 10, 64)
	if err != nil {
		return 0, false
	}
	nv, err := strconv.ParseUint(n, 10, 64)
	if err != nil {
		return 0, false
	}
	return msv*1_000_000 + nv, true
}
