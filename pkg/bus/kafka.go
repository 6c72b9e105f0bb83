package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/orderhub/pkg/event"
	"github.com/nao1215/orderhub/pkg/logger"
	"github.com/nao1215/orderhub/pkg/metrics"
	"github.com/segmentio/kafka-go"
)

// headerEventType はKafkaメッセージヘッダーに付与するイベント種別のキー。
const headerEventType = "event_type"

// messageWriter はkafka.Writerのうち発行に使うメソッド。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// messageReader はkafka.Readerのうち購読に使うメソッド。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher はKafkaにイベントを発行する。
// 注文IDをメッセージキーとしてハッシュで振り分けるため、同じ注文のイベントは同じパーティションに入る。
type KafkaPublisher struct {
	// writer はメッセージの書き込み先。
	writer messageWriter
	// metrics は発行結果の記録先。
	metrics *metrics.Metrics
}

// NewKafkaPublisher はブローカーに接続するKafkaPublisherを生成する。
// すべての同期レプリカが書き込みを確認するまでPublishはブロックする。
func NewKafkaPublisher(brokers []string, m *metrics.Metrics) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		metrics: m,
	}
}

// Publish はイベントをKafkaに書き込む。
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, e *event.Event) (err error) {
	defer func() { p.metrics.Published(topic, err) }()

	raw, err := event.Encode(e)
	if err != nil {
		return &PublishError{Topic: topic, Key: e.Key(), Err: err}
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(e.Key()),
		Value: raw,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(e.EventType)},
		},
		Time: e.CreatedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return &PublishError{Topic: topic, Key: e.Key(), Err: err}
	}
	return nil
}

// Close は送信中のメッセージを書き出して接続を閉じる。
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer はKafkaのコンシューマーグループとしてイベントを購読する。
// 処理に成功したメッセージのみオフセットをコミットする。
type KafkaConsumer struct {
	// brokers はブローカーのアドレス。
	brokers []string
	// retryDelay は処理に失敗したイベントを再配信するまでの待機時間。
	retryDelay time.Duration
	// logger はログの出力先。
	logger *slog.Logger
	// metrics は処理結果の記録先。
	metrics *metrics.Metrics
	// newReader はトピックとグループからリーダーを生成する。
	newReader func(topic, group string) messageReader
}

// NewKafkaConsumer はブローカーに接続するKafkaConsumerを生成する。
func NewKafkaConsumer(brokers []string, retryDelay time.Duration, l *slog.Logger, m *metrics.Metrics) *KafkaConsumer {
	c := &KafkaConsumer{
		brokers:    brokers,
		retryDelay: retryDelay,
		logger:     logger.OrDiscard(l),
		metrics:    m,
	}
	c.newReader = func(topic, group string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.brokers,
			GroupID:     group,
			Topic:       topic,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.FirstOffset,
		})
	}
	return c
}

// Consume はctxが終了するまでメッセージを取得し、処理に成功したらコミットする。
// 解釈できないメッセージはログに記録してコミットし、パーティションを止めない。
func (c *KafkaConsumer) Consume(ctx context.Context, topic, group string, handler Handler) error {
	r := c.newReader(topic, group)
	defer func() {
		if err := r.Close(); err != nil {
			c.logger.Warn("Kafkaリーダーのクローズに失敗", "topic", topic, "group", group, "error", err)
		}
	}()

	c.logger.Info("購読を開始します", "topic", topic, "group", group)
	record := func(err error) { c.metrics.Consumed(topic, group, err) }
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("メッセージの取得に失敗: %w", err)
		}

		e, err := event.Decode(msg.Value)
		if err != nil {
			c.logger.Error("解釈できないイベントをスキップします",
				"topic", topic, "group", group, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		} else if err := deliver(ctx, c.logger, topic, group, handler, e, c.retryDelay, record); err != nil {
			return nil
		}

		if err := r.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("オフセットのコミットに失敗: %w", err)
		}
	}
}
