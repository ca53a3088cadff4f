// Package kafka publishes lookup results to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/weather-lookup-service/internal/state"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Snapshot is the published message body.
type Snapshot struct {
	State       state.State `json:"state"`
	PublishedAt time.Time   `json:"published_at"`
}

// Publisher writes completed lookups (Success and Error states) to Kafka.
// Idle, Loading and selection-only changes are not published.
type Publisher struct {
	writer messageWriter
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w, clock: clockwork.NewRealClock(), logger: logger}
}

// Publish writes s when it is a completed lookup and reports whether it did.
func (p *Publisher) Publish(ctx context.Context, s state.State) (bool, error) {
	if s.Kind != state.KindSuccess && s.Kind != state.KindError {
		return false, nil
	}
	msg, err := serializeToMessage(s, p.clock.Now())
	if err != nil {
		return false, err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return false, fmt.Errorf("publish %s snapshot: %w", s.Kind, err)
	}
	return true, nil
}

// Run publishes every completed lookup received on updates until ctx is done
// or updates is closed. Each lookup run is published once; later snapshots of
// the same run (selection or view changes) are skipped. Publish failures are
// logged and do not stop the loop.
func (p *Publisher) Run(ctx context.Context, updates <-chan state.State) {
	var (
		lastRun   uint64
		published bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-updates:
			if !ok {
				return
			}
			if published && s.Run == lastRun {
				continue
			}
			sent, err := p.Publish(ctx, s)
			if err != nil {
				p.logger.Warn("publish snapshot failed", "kind", s.Kind, "run", s.Run, "error", err)
				continue
			}
			if sent {
				lastRun, published = s.Run, true
			}
		}
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a state snapshot into a Kafka message keyed by
// location, or by error kind for failures.
func serializeToMessage(s state.State, now time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(Snapshot{State: s, PublishedAt: now.UTC()})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize state snapshot: %w", err)
	}

	key := s.Location()
	if s.Error != nil {
		key = string(s.Error.Kind)
	}

	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "state_kind", Value: []byte(s.Kind)},
			{Key: "published_at", Value: []byte(now.UTC().Format(time.RFC3339))},
		},
	}, nil
}
