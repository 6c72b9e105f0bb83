// 注文サービスのエントリポイント。
// 注文を保存し、orders.placed トピックへ注文確定イベントを発行する。
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/orderhub/internal/order"
	"github.com/nao1215/orderhub/pkg/bus"
	"github.com/nao1215/orderhub/pkg/config"
	"github.com/nao1215/orderhub/pkg/logger"
	"github.com/nao1215/orderhub/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("注文サービスが異常終了: %v", err)
	}
}

func run() error {
	config.Load()
	l := logger.New(config.String("LOG_LEVEL", "info"), "order")
	m := metrics.New("order")
	cfg := order.ConfigFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport := bus.Open(cfg.KafkaBrokers, time.Second, l, m)
	defer func() {
		if err := transport.Publisher.Close(); err != nil {
			l.Error("イベントバスのクローズに失敗", "error", err)
		}
	}()

	server, err := order.NewServer(ctx, cfg, transport.Publisher, m, l)
	if err != nil {
		return fmt.Errorf("注文サーバーの初期化に失敗: %w", err)
	}
	defer server.Close()

	l.Info("注文サービスを起動します", "port", cfg.Port)
	if err := server.Run(ctx); err != nil {
		return fmt.Errorf("注文サービスの起動に失敗: %w", err)
	}
	return nil
}
