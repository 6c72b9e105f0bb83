package bus

import (
	"log/slog"
	"time"

	"github.com/nao1215/orderhub/pkg/logger"
	"github.com/nao1215/orderhub/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// Transport は1つのプロセスが使う発行側と購読側の組。
type Transport struct {
	Publisher Publisher
	Consumer  Consumer
}

// Open はbrokersが空ならMemoryBus、そうでなければKafkaの発行側と購読側を返す。
// MemoryBusはプロセス内でしか配信されないため、開発とテスト以外では使わないこと。
func Open(brokers []string, retryDelay time.Duration, l *slog.Logger, m *metrics.Metrics) Transport {
	l = logger.OrDiscard(l)
	if len(brokers) == 0 {
		l.Warn("KAFKA_BROKERSが未設定のためプロセス内のイベントバスを使用します")
		b := NewMemoryBus(WithMemoryRetryDelay(retryDelay), WithMemoryLogger(l), WithMemoryMetrics(m))
		return Transport{Publisher: b, Consumer: b}
	}
	return Transport{
		Publisher: NewKafkaPublisher(brokers, m),
		Consumer:  NewKafkaConsumer(brokers, retryDelay, l, m),
	}
}

// OpenDeduplicator はredisAddrが空ならMemoryDeduplicator、そうでなければRedisDeduplicatorを返す。
// 返り値の関数で接続を閉じる。
func OpenDeduplicator(redisAddr, prefix string, ttl time.Duration) (Deduplicator, func() error) {
	if redisAddr == "" {
		return NewMemoryDeduplicator(ttl, 0), func() error { return nil }
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return NewRedisDeduplicator(client, prefix, ttl), client.Close
}
