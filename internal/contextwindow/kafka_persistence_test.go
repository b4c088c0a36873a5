package contextwindow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
)

// fakeKafkaWriter is a mock Kafka producer, grounded on the teacher's own
// MockWriter (internal/tools/kafka/kafka_test.go).
type fakeKafkaWriter struct {
	lastMessage kafka.Message
	err         error
}

var _ kafkaWriter = (*fakeKafkaWriter)(nil)

func (w *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	if len(msgs) > 0 {
		w.lastMessage = msgs[0]
	}
	return nil
}

func TestKafkaPersister_PersistFragment_PublishesEncodedFragment(t *testing.T) {
	writer := &fakeKafkaWriter{}
	p := NewKafkaPersister(writer, "ephemera.context.persist")

	frag := activityFragment(42, "durable queue me")
	require.NoError(t, p.PersistFragment(context.Background(), frag))

	require.Equal(t, "ephemera.context.persist", writer.lastMessage.Topic)
	require.Equal(t, "42", string(writer.lastMessage.Key))

	var decoded memory.MemoryFragment
	require.NoError(t, json.Unmarshal(writer.lastMessage.Value, &decoded))
	require.Equal(t, frag.Content, decoded.Content)
}

func TestKafkaPersister_PersistFragment_SurfacesWriterError(t *testing.T) {
	writer := &fakeKafkaWriter{err: errors.New("broker unreachable")}
	p := NewKafkaPersister(writer, "ephemera.context.persist")

	err := p.PersistFragment(context.Background(), activityFragment(1, "x"))
	require.ErrorIs(t, err, writer.err)
}

// fakeKafkaReader replays a fixed sequence of messages, then blocks until ctx
// is canceled — enough to exercise KafkaPersistConsumer.Run without a broker.
type fakeKafkaReader struct {
	messages []kafka.Message
	next     int
}

var _ kafkaReader = (*fakeKafkaReader)(nil)

func (r *fakeKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if r.next < len(r.messages) {
		msg := r.messages[r.next]
		r.next++
		return msg, nil
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeKafkaReader) Close() error { return nil }

func TestKafkaPersistConsumer_Run_ForwardsDecodedFragmentsToPersister(t *testing.T) {
	frag := activityFragment(7, "from kafka")
	payload, err := json.Marshal(frag)
	require.NoError(t, err)

	reader := &fakeKafkaReader{messages: []kafka.Message{{Value: payload}}}
	persister := &fakePersister{}
	consumer := NewKafkaPersistConsumer(reader, persister, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	waitUntil(t, func() bool { return persister.count() == 1 })
	cancel()
	<-done
}

func TestKafkaPersistConsumer_Run_SkipsUndecodableMessagesWithoutStopping(t *testing.T) {
	reader := &fakeKafkaReader{messages: []kafka.Message{
		{Value: []byte("not json")},
		{Value: mustMarshal(t, activityFragment(9, "valid after garbage"))},
	}}
	persister := &fakePersister{}
	consumer := NewKafkaPersistConsumer(reader, persister, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	waitUntil(t, func() bool { return persister.count() == 1 })
	cancel()
	<-done
}

func mustMarshal(t *testing.T, fragment memory.MemoryFragment) []byte {
	t.Helper()
	b, err := json.Marshal(fragment)
	require.NoError(t, err)
	return b
}
