package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/orderhub/pkg/event"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newOrderEvent はテスト用のOrderPlacedイベントを生成する。
func newOrderEvent(t *testing.T, orderID string) *event.Event {
	t.Helper()
	e, err := event.NewOrderPlaced(event.OrderPlacedData{
		OrderID:        orderID,
		CustomerID:     "42",
		RestaurantID:   "rest-1",
		TotalAmount:    decimal.RequireFromString("10.00"),
		Status:         event.OrderStatusPending,
		RecipientEmail: "alice@example.com",
	})
	require.NoError(t, err)
	return e
}

// startConsumer はバックグラウンドで購読を開始し、テスト終了時に停止する。
func startConsumer(t *testing.T, c Consumer, topic, group string, h Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx, topic, group, h) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("購読が停止しない")
		}
	})
}

func TestMemoryBus_GroupsAreIndependent(t *testing.T) {
	t.Parallel()

	b := NewMemoryBus(WithMemoryRetryDelay(5 * time.Millisecond))
	t.Cleanup(func() { _ = b.Close() })

	var emailed atomic.Int32
	startConsumer(t, b, event.TopicOrdersPlaced, "restaurant-group", func(context.Context, *event.Event) error {
		return errors.New("キッチンが停止中")
	})
	startConsumer(t, b, event.TopicOrdersPlaced, "email-group", func(context.Context, *event.Event) error {
		emailed.Add(1)
		return nil
	})

	for i := range 3 {
		require.NoError(t, b.Publish(context.Background(), event.TopicOrdersPlaced, newOrderEvent(t, fmt.Sprintf("order-%d", i))))
	}

	require.Eventually(t, func() bool { return emailed.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, b.Offset(event.TopicOrdersPlaced, "email-group"))
	assert.Equal(t, 0, b.Offset(event.TopicOrdersPlaced, "restaurant-group"))
}

func TestMemoryBus_PreservesOrderPerKey(t *testing.T) {
	t.Parallel()

	b := NewMemoryBus()
	t.Cleanup(func() { _ = b.Close() })

	var mu sync.Mutex
	var seen []string
	startConsumer(t, b, "orders.updated", "tracker", func(_ context.Context, e *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.ID)
		return nil
	})

	var want []string
	for range 20 {
		e := newOrderEvent(t, "order-1")
		want = append(want, e.ID)
		require.NoError(t, b.Publish(context.Background(), "orders.updated", e))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(want)
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, seen)
}

func TestMemoryBus_RedeliversUntilSuccess(t *testing.T) {
	t.Parallel()

	b := NewMemoryBus(WithMemoryRetryDelay(time.Millisecond))
	t.Cleanup(func() { _ = b.Close() })

	var attempts atomic.Int32
	startConsumer(t, b, event.TopicOrdersPlaced, "email-group", func(context.Context, *event.Event) error {
		if attempts.Add(1) < 3 {
			return errors.New("メールサーバーに接続できません")
		}
		return nil
	})
	require.NoError(t, b.Publish(context.Background(), event.TopicOrdersPlaced, newOrderEvent(t, "order-1")))

	require.Eventually(t, func() bool { return b.Offset(event.TopicOrdersPlaced, "email-group") == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestMemoryBus_LateGroupReadsFromStart(t *testing.T) {
	t.Parallel()

	b := NewMemoryBus()
	t.Cleanup(func() { _ = b.Close() })
	require.NoError(t, b.Publish(context.Background(), event.TopicOrdersPlaced, newOrderEvent(t, "order-1")))
	require.NoError(t, b.Publish(context.Background(), event.TopicOrdersPlaced, newOrderEvent(t, "order-2")))

	var got atomic.Int32
	startConsumer(t, b, event.TopicOrdersPlaced, "late-group", func(context.Context, *event.Event) error {
		got.Add(1)
		return nil
	})
	require.Eventually(t, func() bool { return got.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, b.Len(event.TopicOrdersPlaced))
}

func TestMemoryBus_GroupActive(t *testing.T) {
	t.Parallel()

	b := NewMemoryBus()
	t.Cleanup(func() { _ = b.Close() })
	started := make(chan struct{})
	startConsumer(t, b, event.TopicOrdersPlaced, "email-group", func(context.Context, *event.Event) error {
		close(started)
		return nil
	})
	require.NoError(t, b.Publish(context.Background(), event.TopicOrdersPlaced, newOrderEvent(t, "order-1")))
	<-started

	err := b.Consume(context.Background(), event.TopicOrdersPlaced, "email-group", func(context.Context, *event.Event) error { return nil })
	assert.ErrorIs(t, err, ErrGroupActive)
}

func TestMemoryBus_PublishFailure(t *testing.T) {
	t.Parallel()

	t.Run("クローズ後の発行はErrPublishFailedになること", func(t *testing.T) {
		t.Parallel()

		b := NewMemoryBus()
		require.NoError(t, b.Close())

		err := b.Publish(context.Background(), event.TopicOrdersPlaced, newOrderEvent(t, "order-1"))
		require.ErrorIs(t, err, ErrPublishFailed)
		require.ErrorIs(t, err, ErrClosed)

		var pubErr *PublishError
		require.ErrorAs(t, err, &pubErr)
		assert.Equal(t, "order-1", pubErr.Key)
		assert.Equal(t, event.TopicOrdersPlaced, pubErr.Topic)
	})

	t.Run("キャンセル済みのコンテキストでの発行はErrPublishFailedになること", func(t *testing.T) {
		t.Parallel()

		b := NewMemoryBus()
		t.Cleanup(func() { _ = b.Close() })
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := b.Publish(ctx, event.TopicOrdersPlaced, newOrderEvent(t, "order-1"))
		require.ErrorIs(t, err, ErrPublishFailed)
		assert.Equal(t, 0, b.Len(event.TopicOrdersPlaced))
	})
}

func TestMemoryBus_DuplicateDeliveryIsIdempotent(t *testing.T) {
	t.Parallel()

	b := NewMemoryBus()
	t.Cleanup(func() { _ = b.Close() })

	var sent atomic.Int32
	dedup := NewMemoryDeduplicator(time.Hour, 100)
	startConsumer(t, b, event.TopicOrdersPlaced, "email-group", Idempotent("email-group", dedup, func(context.Context, *event.Event) error {
		sent.Add(1)
		return nil
	}, nil))

	e := newOrderEvent(t, "order-1")
	require.NoError(t, b.Publish(context.Background(), event.TopicOrdersPlaced, e))
	require.NoError(t, b.Publish(context.Background(), event.TopicOrdersPlaced, e))

	require.Eventually(t, func() bool { return b.Offset(event.TopicOrdersPlaced, "email-group") == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), sent.Load())
}
