// 認証サービスのエントリポイント。
// ユーザー登録、ログイン、トークンの再発行を担当する。
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/orderhub/internal/auth"
	"github.com/nao1215/orderhub/pkg/config"
	"github.com/nao1215/orderhub/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("認証サービスが異常終了: %v", err)
	}
}

func run() error {
	config.Load()
	l := logger.New(config.String("LOG_LEVEL", "info"), "auth")

	cfg, err := auth.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("認証サービスの設定の読み込みに失敗: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := auth.NewServer(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("認証サーバーの初期化に失敗: %w", err)
	}
	defer server.Close()

	l.Info("認証サービスを起動します", "port", cfg.Port)
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("認証サービスの起動に失敗: %w", err)
	}
	return nil
}
