package events

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/rephrase/pkg/history"
)

const (
	KindSnapshot = "snapshot"
	KindAppended = string(history.ChangeAppended)
	KindUpdated  = string(history.ChangeUpdated)
	KindCleared  = string(history.ChangeCleared)
)

// Envelope is the wire form of a history change.
type Envelope struct {
	Kind    string         `json:"kind"`
	Version uint64         `json:"version"`
	Turn    *history.Turn  `json:"turn,omitempty"`
	Turns   []history.Turn `json:"turns,omitempty"`
}

func EnvelopeFromChange(c history.Change) Envelope {
	return Envelope{Kind: string(c.Kind), Version: c.Version, Turn: c.Turn}
}

func SnapshotEnvelope(store *history.Store) Envelope {
	return Envelope{Kind: KindSnapshot, Version: store.Version(), Turns: store.Snapshot()}
}

func DecodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Envelope{}, errors.Wrap(err, "decode envelope")
	}
	if env.Kind == "" {
		return Envelope{}, errors.New("envelope without kind")
	}
	return env, nil
}

// HistoryPublisher publishes every change of a store on a topic.
type HistoryPublisher struct {
	pub   message.Publisher
	topic string
}

func NewHistoryPublisher(pub message.Publisher, topic string) *HistoryPublisher {
	if topic == "" {
		topic = TopicHistory
	}
	return &HistoryPublisher{pub: pub, topic: topic}
}

// Attach subscribes to store and returns the detach func.
func (p *HistoryPublisher) Attach(store *history.Store) func() {
	return store.Subscribe(func(c history.Change) {
		if err := p.Publish(EnvelopeFromChange(c)); err != nil {
			log.Warn().Err(err).Str("component", "events").Str("kind", string(c.Kind)).Msg("publish history change")
		}
	})
}

func (p *HistoryPublisher) Publish(env Envelope) error {
	if p == nil || p.pub == nil {
		return errors.New("history publisher is not initialized")
	}
	b, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}
	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set("kind", env.Kind)
	return p.pub.Publish(p.topic, msg)
}
