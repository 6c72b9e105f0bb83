package restaurant

import (
	"time"

	"github.com/nao1215/orderhub/pkg/config"
	"github.com/nao1215/orderhub/pkg/resilience"
)

// Config はレストランサービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// DatabasePath はSQLiteデータベースのパス。
	DatabasePath string
	// EdgeSecret はゲートウェイが伝播ヘッダーに付ける署名の鍵。
	EdgeSecret string
	// ReadPolicy は一覧取得に適用するサーキットブレーカーとリトライの設定。
	ReadPolicy resilience.Policy
	// KafkaBrokers はKafkaブローカーのアドレス。空の場合はプロセス内のバスを使う。
	KafkaBrokers []string
	// RedisAddr は処理済みキーを記録するRedisのアドレス。空の場合はメモリに記録する。
	RedisAddr string
	// DedupTTL は処理済みキーの保持期間。
	DedupTTL time.Duration
	// RedeliveryDelay は処理に失敗したイベントを再配信するまでの待機時間。
	RedeliveryDelay time.Duration
}

// ConfigFromEnv は環境変数から設定を読み込む。
func ConfigFromEnv() Config {
	return Config{
		Port:            config.String("PORT", "8083"),
		DatabasePath:    config.String("DATABASE_PATH", "/data/restaurant.db"),
		EdgeSecret:      config.String("EDGE_SECRET", ""),
		ReadPolicy:      resilience.PolicyFromEnv("restaurant-read"),
		KafkaBrokers:    config.List("KAFKA_BROKERS", nil),
		RedisAddr:       config.String("REDIS_ADDR", ""),
		DedupTTL:        config.Duration("DEDUP_TTL", 24*time.Hour),
		RedeliveryDelay: config.Duration("REDELIVERY_DELAY", time.Second),
	}
}
