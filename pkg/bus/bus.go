package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/orderhub/pkg/event"
)

// Handler は配信されたイベントを処理する。エラーを返すと同じイベントが再配信される。
type Handler func(ctx context.Context, e *event.Event) error

// Publisher はイベントをトピックに発行する。
type Publisher interface {
	// Publish はトランスポートがイベントを受理するまでブロックする。
	// 失敗した場合は ErrPublishFailed をラップしたエラーを返す。自動リトライは行わない。
	Publish(ctx context.Context, topic string, e *event.Event) error
	// Close は送信中のイベントを書き出して接続を閉じる。
	Close() error
}

// Consumer はトピックをコンシューマーグループとして購読する。
type Consumer interface {
	// Consume はctxが終了するまでイベントを順にhandlerへ渡す。
	// ctxの終了による停止ではnilを返す。
	Consume(ctx context.Context, topic, group string, handler Handler) error
}

var (
	// ErrPublishFailed はイベントの発行に失敗したことを表す。注文作成にとって致命的なエラー。
	ErrPublishFailed = errors.New("イベントの発行に失敗しました")
	// ErrClosed はクローズ済みのバスを使用したことを表す。
	ErrClosed = errors.New("バスはクローズされています")
	// ErrGroupActive は同じグループの購読がすでに動作中であることを表す。
	ErrGroupActive = errors.New("コンシューマーグループはすでに購読中です")
)

// PublishError は発行に失敗したイベントの情報を保持する。
type PublishError struct {
	// Topic は発行先のトピック。
	Topic string
	// Key はイベントのキー。
	Key string
	// Err は元のエラー。
	Err error
}

// Error はエラーメッセージを返す。
func (e *PublishError) Error() string {
	return fmt.Sprintf("%s: topic=%s, key=%s: %v", ErrPublishFailed, e.Topic, e.Key, e.Err)
}

// Unwrap は ErrPublishFailed と元のエラーの両方で errors.Is を成立させる。
func (e *PublishError) Unwrap() []error {
	return []error{ErrPublishFailed, e.Err}
}

// deliver はhandlerが成功するまで同じイベントを渡し続ける。
// ctxが終了した場合はctxのエラーを返す。
func deliver(ctx context.Context, l *slog.Logger, topic, group string, handler Handler, e *event.Event, retryDelay time.Duration, record func(error)) error {
	for attempt := 1; ; attempt++ {
		err := handler(ctx, e)
		record(err)
		if err == nil {
			return nil
		}
		l.Warn("イベント処理に失敗したため再配信します",
			"topic", topic,
			"group", group,
			"event_id", e.ID,
			"key", e.Key(),
			"attempt", attempt,
			"error", err,
		)

		timer := time.NewTimer(retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
