package bus

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/orderhub/pkg/event"
	"github.com/nao1215/orderhub/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// DefaultLease は処理中のキーを保持する既定の期間。
// 処理中にプロセスが停止した場合、この期間を過ぎると再配信で再び処理できる。
const DefaultLease = 30 * time.Second

// releaseTimeout は記録の確定と取り消しに使う上限時間。
const releaseTimeout = 5 * time.Second

// ErrInFlight は同じキーが別の配信で処理中であることを表す。
// 処理済みではないため、呼び出し側はイベントを確認応答せずに再配信を待つ。
var ErrInFlight = errors.New("同じイベントを処理中です")

// Deduplicator は処理中と処理済みのキーを一定期間記録する。
type Deduplicator interface {
	// Reserve はキーが未記録であれば処理中として短期間記録してtrueを返す。
	// 処理済みであればfalseを、処理中であれば ErrInFlight を返す。
	Reserve(ctx context.Context, key string) (bool, error)
	// Commit は処理中のキーを処理済みとして保持期間いっぱいまで記録する。
	Commit(ctx context.Context, key string) error
	// Release は処理に失敗したキーの記録を取り消す。
	Release(ctx context.Context, key string) error
}

// MemoryDeduplicator はプロセス内に処理済みキーを保持する。
// 保持期間を過ぎたキーと、上限を超えた古いキーは破棄される。
type MemoryDeduplicator struct {
	// mu はentriesとorderを保護する。
	mu sync.Mutex
	// entries はキーからorderの要素への索引。
	entries map[string]*list.Element
	// order は最後に更新した順のキー。先頭が最も古い。
	order *list.List
	// ttl は処理済みキーの保持期間。
	ttl time.Duration
	// lease は処理中キーの保持期間。
	lease time.Duration
	// capacity は保持するキーの上限。
	capacity int
	// now は現在時刻を返す関数。
	now func() time.Time
}

// dedupEntry はMemoryDeduplicatorの1件分の記録。
type dedupEntry struct {
	key       string
	done      bool
	expiresAt time.Time
}

// NewMemoryDeduplicator は新しいMemoryDeduplicatorを生成する。
func NewMemoryDeduplicator(ttl time.Duration, capacity int) *MemoryDeduplicator {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryDeduplicator{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		ttl:      ttl,
		lease:    DefaultLease,
		capacity: capacity,
		now:      time.Now,
	}
}

// Reserve はキーが未記録であれば処理中として記録してtrueを返す。
func (d *MemoryDeduplicator) Reserve(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.evictExpired(now)
	if el, ok := d.entries[key]; ok {
		entry := el.Value.(*dedupEntry)
		switch {
		case !entry.expiresAt.After(now):
			d.remove(el)
		case entry.done:
			return false, nil
		default:
			return false, ErrInFlight
		}
	}
	d.entries[key] = d.order.PushBack(&dedupEntry{key: key, expiresAt: now.Add(d.lease)})
	for d.order.Len() > d.capacity {
		d.remove(d.order.Front())
	}
	return true, nil
}

// Commit はキーを処理済みとして記録する。
func (d *MemoryDeduplicator) Commit(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	el, ok := d.entries[key]
	if !ok {
		el = d.order.PushBack(&dedupEntry{key: key})
		d.entries[key] = el
	}
	entry := el.Value.(*dedupEntry)
	entry.done = true
	entry.expiresAt = d.now().Add(d.ttl)
	d.order.MoveToBack(el)
	for d.order.Len() > d.capacity {
		d.remove(d.order.Front())
	}
	return nil
}

// Release はキーの記録を取り消す。
func (d *MemoryDeduplicator) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.entries[key]; ok {
		d.remove(el)
	}
	return nil
}

// evictExpired は保持期間を過ぎたキーを先頭から破棄する。
// 期間の異なるキーが混在するため、先頭が期限内であればそこで止める。
func (d *MemoryDeduplicator) evictExpired(now time.Time) {
	for el := d.order.Front(); el != nil; el = d.order.Front() {
		if el.Value.(*dedupEntry).expiresAt.After(now) {
			return
		}
		d.remove(el)
	}
}

// remove は要素を破棄する。
func (d *MemoryDeduplicator) remove(el *list.Element) {
	d.order.Remove(el)
	delete(d.entries, el.Value.(*dedupEntry).key)
}

// Redisに保存する値。
const (
	redisInFlight = "processing"
	redisDone     = "done"
)

// RedisDeduplicator はRedisに処理済みキーを保持する。
// 複数のインスタンスで同じグループを購読する場合に使う。
type RedisDeduplicator struct {
	// client はRedisクライアント。
	client redis.UniversalClient
	// prefix はキーの接頭辞。
	prefix string
	// ttl は処理済みキーの保持期間。
	ttl time.Duration
	// lease は処理中キーの保持期間。
	lease time.Duration
}

// NewRedisDeduplicator は新しいRedisDeduplicatorを生成する。
func NewRedisDeduplicator(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, prefix: prefix, ttl: ttl, lease: DefaultLease}
}

// Reserve は SET NX PX で処理中のキーを記録する。
// 記録済みの場合は値から処理済みか処理中かを判定する。
func (d *RedisDeduplicator) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, redisInFlight, d.lease).Result()
	if err != nil {
		return false, fmt.Errorf("処理中キーの記録に失敗: %w", err)
	}
	if ok {
		return true, nil
	}

	v, err := d.client.Get(ctx, d.prefix+key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// SETNXとGETの間に期限切れになった場合は次の再配信に任せる
		return false, ErrInFlight
	case err != nil:
		return false, fmt.Errorf("処理済みキーの取得に失敗: %w", err)
	case v == redisDone:
		return false, nil
	}
	return false, ErrInFlight
}

// Commit はキーを処理済みに書き換え、保持期間を延ばす。
func (d *RedisDeduplicator) Commit(ctx context.Context, key string) error {
	if err := d.client.Set(ctx, d.prefix+key, redisDone, d.ttl).Err(); err != nil {
		return fmt.Errorf("処理済みキーの確定に失敗: %w", err)
	}
	return nil
}

// Release はキーを削除する。
func (d *RedisDeduplicator) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("処理済みキーの削除に失敗: %w", err)
	}
	return nil
}

// Idempotent はhandlerを注文IDごとに1回だけ実行するHandlerを返す。
// キーはグループとイベント種別と注文IDから作るため、グループ間で干渉しない。
//
// キーは処理中として短期間だけ予約し、handlerが成功した後に処理済みとして確定する。
// handlerが失敗した場合は予約を取り消す。取り消しと確定はhandlerのctxが終了していても行う。
// 取り消せなかった予約や、処理中に停止したプロセスの予約は DefaultLease で失効する。
func Idempotent(group string, dedup Deduplicator, handler Handler, l *slog.Logger) Handler {
	l = logger.OrDiscard(l)
	return func(ctx context.Context, e *event.Event) error {
		key := fmt.Sprintf("%s:%s:%s", group, e.EventType, e.Key())
		reserved, err := dedup.Reserve(ctx, key)
		if err != nil {
			return err
		}
		if !reserved {
			l.Info("処理済みのイベントをスキップします", "group", group, "event_id", e.ID, "key", e.Key())
			return nil
		}

		herr := handler(ctx, e)
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()

		if herr != nil {
			if err := dedup.Release(bctx, key); err != nil {
				l.Error("処理中キーの取り消しに失敗", "key", key, "error", err)
			}
			return herr
		}
		if err := dedup.Commit(bctx, key); err != nil {
			// 副作用は完了しているため確認応答する。予約は失効後に再処理され得る
			l.Error("処理済みキーの確定に失敗", "key", key, "error", err)
		}
		return nil
	}
}
