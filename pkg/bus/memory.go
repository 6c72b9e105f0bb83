package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/orderhub/pkg/event"
	"github.com/nao1215/orderhub/pkg/logger"
	"github.com/nao1215/orderhub/pkg/metrics"
)

// MemoryBus は単一プロセス内で動作するバス。
// トピックごとの追記専用ログと、グループごとのオフセットを持つ。
// 新しいグループはログの先頭から購読を開始する。
type MemoryBus struct {
	// mu はtopicsとclosedを保護する。
	mu sync.Mutex
	// topics はトピック名ごとのログ。
	topics map[string]*memoryTopic
	// closed はClose済みであるかを表す。
	closed bool
	// retryDelay は処理に失敗したイベントを再配信するまでの待機時間。
	retryDelay time.Duration
	// logger はログの出力先。
	logger *slog.Logger
	// metrics は発行と処理の結果の記録先。
	metrics *metrics.Metrics
}

// memoryTopic は1トピック分のログ。
type memoryTopic struct {
	// log は発行されたイベントのJSON。発行後は変更されない。
	log [][]byte
	// offsets はグループ名ごとの次に処理するオフセット。
	offsets map[string]int
	// active は購読中のグループ。
	active map[string]bool
	// signal は新しいイベントが追加されるとクローズされる。
	signal chan struct{}
}

// MemoryOption はMemoryBusの設定を変更する。
type MemoryOption func(*MemoryBus)

// WithMemoryRetryDelay は再配信までの待機時間を設定する。
func WithMemoryRetryDelay(d time.Duration) MemoryOption {
	return func(b *MemoryBus) {
		b.retryDelay = d
	}
}

// WithMemoryLogger はログの出力先を設定する。
func WithMemoryLogger(l *slog.Logger) MemoryOption {
	return func(b *MemoryBus) {
		b.logger = l
	}
}

// WithMemoryMetrics はメトリクスの記録先を設定する。
func WithMemoryMetrics(m *metrics.Metrics) MemoryOption {
	return func(b *MemoryBus) {
		b.metrics = m
	}
}

// NewMemoryBus は新しいMemoryBusを生成する。
func NewMemoryBus(opts ...MemoryOption) *MemoryBus {
	b := &MemoryBus{
		topics:     make(map[string]*memoryTopic),
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logger.OrDiscard(b.logger)
	return b
}

// topic はトピックのログを返す。存在しなければ作成する。b.muを保持して呼ぶ。
func (b *MemoryBus) topic(name string) *memoryTopic {
	t, ok := b.topics[name]
	if !ok {
		t = &memoryTopic{
			offsets: make(map[string]int),
			active:  make(map[string]bool),
			signal:  make(chan struct{}),
		}
		b.topics[name] = t
	}
	return t
}

// Publish はイベントをトピックのログに追記する。
func (b *MemoryBus) Publish(ctx context.Context, topic string, e *event.Event) (err error) {
	defer func() { b.metrics.Published(topic, err) }()

	if err := ctx.Err(); err != nil {
		return &PublishError{Topic: topic, Key: e.Key(), Err: err}
	}
	raw, err := event.Encode(e)
	if err != nil {
		return &PublishError{Topic: topic, Key: e.Key(), Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return &PublishError{Topic: topic, Key: e.Key(), Err: ErrClosed}
	}
	t := b.topic(topic)
	t.log = append(t.log, raw)
	close(t.signal)
	t.signal = make(chan struct{})
	return nil
}

// Consume はグループのオフセットからイベントを順に処理する。
// 同じグループで同時に購読できるのは1つだけで、2つ目は ErrGroupActive を返す。
func (b *MemoryBus) Consume(ctx context.Context, topic, group string, handler Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	t := b.topic(topic)
	if t.active[group] {
		b.mu.Unlock()
		return ErrGroupActive
	}
	t.active[group] = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		t.active[group] = false
		b.mu.Unlock()
	}()

	b.logger.Info("購読を開始します", "topic", topic, "group", group)
	record := func(err error) { b.metrics.Consumed(topic, group, err) }
	for {
		raw, ok := b.next(ctx, t, group)
		if !ok {
			return nil
		}

		e, err := event.Decode(raw)
		if err != nil {
			b.logger.Error("解釈できないイベントをスキップします", "topic", topic, "group", group, "error", err)
			b.commit(t, group)
			continue
		}
		if err := deliver(ctx, b.logger, topic, group, handler, e, b.retryDelay, record); err != nil {
			return nil
		}
		b.commit(t, group)
	}
}

// next はグループの次のイベントを待つ。ctxが終了した場合はfalseを返す。
func (b *MemoryBus) next(ctx context.Context, t *memoryTopic, group string) ([]byte, bool) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, false
		}
		if off := t.offsets[group]; off < len(t.log) {
			raw := t.log[off]
			b.mu.Unlock()
			return raw, true
		}
		signal := t.signal
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-signal:
		}
	}
}

// commit はグループのオフセットを1つ進める。
func (b *MemoryBus) commit(t *memoryTopic, group string) {
	b.mu.Lock()
	t.offsets[group]++
	b.mu.Unlock()
}

// Offset はグループが次に処理するオフセットを返す。
func (b *MemoryBus) Offset(topic, group string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[topic]
	if !ok {
		return 0
	}
	return t.offsets[group]
}

// Len はトピックに発行されたイベント数を返す。
func (b *MemoryBus) Len(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[topic]
	if !ok {
		return 0
	}
	return len(t.log)
}

// Close はバスを閉じ、購読中のグループを停止させる。
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, t := range b.topics {
		close(t.signal)
		t.signal = make(chan struct{})
	}
	return nil
}
