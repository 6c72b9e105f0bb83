package gateway

import (
	"time"

	"github.com/nao1215/orderhub/pkg/config"
)

// Config はゲートウェイの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// JWTSecret はBase64エンコードされたトークン署名鍵。
	JWTSecret string
	// EdgeSecret は伝播ヘッダーに付ける署名の鍵。空の場合は署名しない。
	EdgeSecret string
	// FrontendURL はCORSで許可するオリジン。
	FrontendURL string
	// AuthURL は認証サービスのURL。
	AuthURL string
	// OrderURL は注文サービスのURL。
	OrderURL string
	// RestaurantURL はレストランサービスのURL。
	RestaurantURL string
	// NotificationURL は通知サービスのURL。
	NotificationURL string
	// ProxyTimeout は下流サービスの応答を待つ上限。
	ProxyTimeout time.Duration
}

// ConfigFromEnv は環境変数から設定を読み込む。JWT_SECRETは必須。
func ConfigFromEnv() (Config, error) {
	if err := config.Require("JWT_SECRET"); err != nil {
		return Config{}, err
	}
	return Config{
		Port:            config.String("PORT", "8080"),
		JWTSecret:       config.String("JWT_SECRET", ""),
		EdgeSecret:      config.String("EDGE_SECRET", ""),
		FrontendURL:     config.String("FRONTEND_URL", "http://localhost:3000"),
		AuthURL:         config.String("AUTH_URL", "http://localhost:8081"),
		OrderURL:        config.String("ORDER_URL", "http://localhost:8082"),
		RestaurantURL:   config.String("RESTAURANT_URL", "http://localhost:8083"),
		NotificationURL: config.String("NOTIFICATION_URL", "http://localhost:8086"),
		ProxyTimeout:    config.Duration("PROXY_TIMEOUT", 30*time.Second),
	}, nil
}
