package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/orderhub/pkg/event"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWriter は書き込まれたメッセージを記録するmessageWriter。
type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

// fakeReader はチャネルからメッセージを返し、コミットを記録するmessageReader。
type fakeReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.msgs:
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestKafkaPublisher_Publish(t *testing.T) {
	t.Parallel()

	t.Run("注文IDをキーとしてメッセージが書き込まれること", func(t *testing.T) {
		t.Parallel()

		w := &fakeWriter{}
		p := &KafkaPublisher{writer: w}
		e := newOrderEvent(t, "order-7")

		require.NoError(t, p.Publish(context.Background(), event.TopicOrdersPlaced, e))
		require.Len(t, w.msgs, 1)
		msg := w.msgs[0]
		assert.Equal(t, event.TopicOrdersPlaced, msg.Topic)
		assert.Equal(t, "order-7", string(msg.Key))
		require.Len(t, msg.Headers, 1)
		assert.Equal(t, string(event.TypeOrderPlaced), string(msg.Headers[0].Value))

		decoded, err := event.Decode(msg.Value)
		require.NoError(t, err)
		assert.Equal(t, e.ID, decoded.ID)
	})

	t.Run("書き込みに失敗した場合はErrPublishFailedになること", func(t *testing.T) {
		t.Parallel()

		p := &KafkaPublisher{writer: &fakeWriter{err: kafka.LeaderNotAvailable}}
		err := p.Publish(context.Background(), event.TopicOrdersPlaced, newOrderEvent(t, "order-7"))
		require.ErrorIs(t, err, ErrPublishFailed)
		assert.ErrorIs(t, err, kafka.LeaderNotAvailable)
	})
}

func TestKafkaConsumer_Consume(t *testing.T) {
	t.Parallel()

	t.Run("処理に成功したメッセージのみコミットされること", func(t *testing.T) {
		t.Parallel()

		raw, err := event.Encode(newOrderEvent(t, "order-1"))
		require.NoError(t, err)
		reader := newFakeReader(
			kafka.Message{Offset: 10, Value: raw},
			kafka.Message{Offset: 11, Value: []byte("not json")},
		)
		c := NewKafkaConsumer([]string{"localhost:9092"}, time.Millisecond, nil, nil)
		c.newReader = func(string, string) messageReader { return reader }

		var mu sync.Mutex
		attempts := 0
		handler := func(context.Context, *event.Event) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts == 1 {
				assert.Empty(t, reader.commits(), "処理前にコミットされた")
				return errors.New("一時的な失敗")
			}
			return nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- c.Consume(ctx, event.TopicOrdersPlaced, "email-group", handler) }()

		require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, 2*time.Second, time.Millisecond)
		cancel()
		require.NoError(t, <-done)

		assert.Equal(t, []int64{10, 11}, reader.commits())
		mu.Lock()
		assert.Equal(t, 2, attempts)
		mu.Unlock()
	})
}
