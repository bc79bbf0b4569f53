// Package events carries history changes over watermill, in memory or over
// Redis Streams, to consumers such as the websocket forwarder.
package events

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// TopicHistory carries one Envelope per history change.
const TopicHistory = "rephrase.history"

// RedisSettings configures the optional Redis Streams transport.
type RedisSettings struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Group    string `mapstructure:"group" yaml:"group"`
	Consumer string `mapstructure:"consumer" yaml:"consumer"`
}

func DefaultRedisSettings() RedisSettings {
	return RedisSettings{
		Addr:     "localhost:6379",
		Group:    "rephrase-ui",
		Consumer: "ui-1",
	}
}

// Bus pairs a publisher with a subscriber on the same transport.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	redis      *redis.Client
	settings   RedisSettings
}

// BuildBus returns an in-memory bus, or a Redis Streams bus when enabled.
func BuildBus(s RedisSettings) (*Bus, error) {
	logger := NewWatermillLogger(log.Logger)
	if !s.Enabled {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		return &Bus{Publisher: ch, Subscriber: ch, settings: s}, nil
	}
	if s.Addr == "" {
		return nil, errors.New("redis transport enabled without an address")
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "redis subscriber")
	}
	return &Bus{Publisher: pub, Subscriber: sub, redis: client, settings: s}, nil
}

func (b *Bus) RedisEnabled() bool {
	return b != nil && b.redis != nil
}

// EnsureGroupAtTail creates the consumer group for stream at "$" so a new UI
// consumer does not replay old history. An existing group is left alone.
func (b *Bus) EnsureGroupAtTail(ctx context.Context, stream string) error {
	if !b.RedisEnabled() {
		return nil
	}
	err := b.redis.XGroupCreateMkStream(ctx, stream, b.settings.Group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Info().Str("component", "events").Str("stream", stream).Str("group", b.settings.Group).Msg("created redis consumer group at $ (tail)")
	return nil
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	var errs []error
	if b.Publisher != nil {
		if err := b.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.Subscriber != nil && any(b.Subscriber) != any(b.Publisher) {
		if err := b.Subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Wrapf(errs[0], "close bus (%d errors)", len(errs))
	}
	return nil
}
