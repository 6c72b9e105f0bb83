package auth

import (
	"time"

	"github.com/nao1215/orderhub/pkg/config"
)

// Config は認証サービスの設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// DatabasePath はSQLiteデータベースのパス。
	DatabasePath string
	// JWTSecret はBase64エンコードされたトークン署名鍵。
	JWTSecret string
	// AccessTokenTTL はアクセストークンの有効期間。
	AccessTokenTTL time.Duration
	// RefreshTokenTTL はリフレッシュトークンの有効期間。
	RefreshTokenTTL time.Duration
	// EdgeSecret はゲートウェイが伝播ヘッダーに付ける署名の鍵。空の場合はネットワーク境界を信頼する。
	EdgeSecret string
}

// ConfigFromEnv は環境変数から設定を読み込む。JWT_SECRETは必須。
func ConfigFromEnv() (Config, error) {
	if err := config.Require("JWT_SECRET"); err != nil {
		return Config{}, err
	}
	return Config{
		Port:            config.String("PORT", "8081"),
		DatabasePath:    config.String("DATABASE_PATH", "/data/auth.db"),
		JWTSecret:       config.String("JWT_SECRET", ""),
		AccessTokenTTL:  config.Duration("TOKEN_TTL", time.Hour),
		RefreshTokenTTL: config.Duration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		EdgeSecret:      config.String("EDGE_SECRET", ""),
	}, nil
}
