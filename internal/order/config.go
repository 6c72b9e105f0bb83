package order

import (
	"time"

	"github.com/nao1215/orderhub/pkg/config"
	"github.com/nao1215/orderhub/pkg/resilience"
)

// Config は注文サービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// DatabasePath はSQLiteデータベースのパス。
	DatabasePath string
	// EdgeSecret はゲートウェイが伝播ヘッダーに付ける署名の鍵。
	EdgeSecret string
	// PublishTimeout はイベント発行を待つ上限。
	PublishTimeout time.Duration
	// ReadPolicy は一覧取得に適用するサーキットブレーカーとリトライの設定。
	ReadPolicy resilience.Policy
	// KafkaBrokers はKafkaブローカーのアドレス。空の場合はプロセス内のバスを使う。
	KafkaBrokers []string
}

// ConfigFromEnv は環境変数から設定を読み込む。
func ConfigFromEnv() Config {
	return Config{
		Port:           config.String("PORT", "8082"),
		DatabasePath:   config.String("DATABASE_PATH", "/data/order.db"),
		EdgeSecret:     config.String("EDGE_SECRET", ""),
		PublishTimeout: config.Duration("PUBLISH_TIMEOUT", 5*time.Second),
		ReadPolicy:     resilience.PolicyFromEnv("order-read"),
		KafkaBrokers:   config.List("KAFKA_BROKERS", nil),
	}
}
