// API Gatewayサービスのエントリポイント。
// Bearerトークンを検証し、検証済みの利用者情報を付けて各サービスへリクエストを転送する。
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/orderhub/internal/gateway"
	"github.com/nao1215/orderhub/pkg/config"
	"github.com/nao1215/orderhub/pkg/logger"
	"github.com/nao1215/orderhub/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Gatewayサービスが異常終了: %v", err)
	}
}

func run() error {
	config.Load()
	l := logger.New(config.String("LOG_LEVEL", "info"), "gateway")

	cfg, err := gateway.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("ゲートウェイの設定の読み込みに失敗: %w", err)
	}

	server, err := gateway.NewServer(cfg, metrics.New("gateway"), l)
	if err != nil {
		return fmt.Errorf("ゲートウェイサーバーの初期化に失敗: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l.Info("Gatewayサービスを起動します", "port", cfg.Port)
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("ゲートウェイサービスの起動に失敗: %w", err)
	}
	return nil
}
