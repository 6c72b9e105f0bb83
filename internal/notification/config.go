package notification

import (
	"time"

	"github.com/nao1215/orderhub/pkg/config"
	"github.com/nao1215/orderhub/pkg/resilience"
)

// Config は通知サービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// DatabasePath はSQLiteデータベースのパス。
	DatabasePath string
	// EdgeSecret はゲートウェイが伝播ヘッダーに付ける署名の鍵。
	EdgeSecret string
	// MailRelayURL はメール中継サービスのURL。空の場合はログに出力する。
	MailRelayURL string
	// MailRetry はメール送信のリトライ設定。
	MailRetry resilience.RetryConfig
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
		Port:            config.String("PORT", "8086"),
		DatabasePath:    config.String("DATABASE_PATH", "/data/notification.db"),
		EdgeSecret:      config.String("EDGE_SECRET", ""),
		MailRelayURL:    config.String("MAIL_RELAY_URL", ""),
		MailRetry:       resilience.PolicyFromEnv("mail").Retry,
		KafkaBrokers:    config.List("KAFKA_BROKERS", nil),
		RedisAddr:       config.String("REDIS_ADDR", ""),
		DedupTTL:        config.Duration("DEDUP_TTL", 24*time.Hour),
		RedeliveryDelay: config.Duration("REDELIVERY_DELAY", time.Second),
	}
}
