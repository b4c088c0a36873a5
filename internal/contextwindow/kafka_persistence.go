package contextwindow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/ImitationGameLabs/ephemera-ai/internal/loomclient"
	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
)

// kafkaWriter is the subset of *kafka.Writer this package depends on,
// grounded on the teacher's own Writer interface
// (internal/tools/kafka/kafka.go) that lets tests substitute a fake
// producer instead of dialing a real broker.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPersister durably queues fragment-persist requests onto a Kafka topic
// rather than committing them to Loom synchronously, so a slow or
// unreachable Loom never blocks the agent loop — the same durable-queue role
// the teacher's internal/tools/kafka producer plays in front of the
// orchestrator's command topic. It satisfies loomclient.FragmentPersister, so
// it drops straight into contextwindow.New wherever the direct HTTP
// persister would otherwise go.
type KafkaPersister struct {
	writer kafkaWriter
	topic  string
}

// NewKafkaPersister wraps an existing *kafka.Writer (its Topic field must be
// left empty; every message is addressed to topic explicitly). Accepting the
// kafkaWriter interface rather than the concrete type lets tests substitute
// a fake producer, mirroring the teacher's own kafka.Writer abstraction.
func NewKafkaPersister(writer kafkaWriter, topic string) *KafkaPersister {
	return &KafkaPersister{writer: writer, topic: topic}
}

func (p *KafkaPersister) PersistFragment(ctx context.Context, fragment memory.MemoryFragment) error {
	payload, err := json.Marshal(fragment)
	if err != nil {
		return fmt.Errorf("marshal fragment for kafka persist: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(strconv.FormatInt(fragment.ID, 10)),
		Value: payload,
	})
}

var _ loomclient.FragmentPersister = (*KafkaPersister)(nil)

// kafkaReader is the subset of *kafka.Reader this package depends on.
type kafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaPersistConsumer drains the durable persist topic KafkaPersister
// writes to and forwards each fragment to the real persister (Loom's HTTP
// client). Kafka's delivery guarantee, not its own, is what makes this safe
// to retry-free: a failed PersistFragment here is logged and the message
// stays committed, matching the at-most-once semantics the direct channel
// path already had.
type KafkaPersistConsumer struct {
	reader    kafkaReader
	persister loomclient.FragmentPersister
	log       *zerolog.Logger
}

func NewKafkaPersistConsumer(reader kafkaReader, persister loomclient.FragmentPersister, log *zerolog.Logger) *KafkaPersistConsumer {
	if log == nil {
		l := zerolog.Nop()
		log = &l
	}
	return &KafkaPersistConsumer{reader: reader, persister: persister, log: log}
}

// Run blocks, consuming messages until ctx is canceled or the reader fails
// terminally.
func (c *KafkaPersistConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kafka persist consumer: %w", err)
		}

		var fragment memory.MemoryFragment
		if err := json.Unmarshal(msg.Value, &fragment); err != nil {
			c.log.Warn().Err(err).Msg("context_window_kafka_decode_failed")
			continue
		}
		if err := c.persister.PersistFragment(ctx, fragment); err != nil {
			c.log.Warn().Err(err).Int64("fragment_id", fragment.ID).Msg("context_window_kafka_persist_failed")
		}
	}
}
