// 通知サービスのエントリポイント。
// email-group として注文確定イベントを購読し、確認メールを送って通知を保存する。
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/orderhub/internal/notification"
	"github.com/nao1215/orderhub/pkg/bus"
	"github.com/nao1215/orderhub/pkg/config"
	"github.com/nao1215/orderhub/pkg/logger"
	"github.com/nao1215/orderhub/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("通知サービスが異常終了: %v", err)
	}
}

func run() error {
	config.Load()
	l := logger.New(config.String("LOG_LEVEL", "info"), "notification")
	m := metrics.New("notification")
	cfg := notification.ConfigFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport := bus.Open(cfg.KafkaBrokers, cfg.RedeliveryDelay, l, m)
	defer transport.Publisher.Close()
	dedup, closeDedup := bus.OpenDeduplicator(cfg.RedisAddr, "orderhub:dedup:", cfg.DedupTTL)
	defer closeDedup()

	server, err := notification.NewServer(ctx, cfg, nil, m, l)
	if err != nil {
		return fmt.Errorf("通知サーバーの初期化に失敗: %w", err)
	}
	defer server.Close()

	l.Info("通知サービスを起動します", "port", cfg.Port)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error { return server.Consume(ctx, transport.Consumer, dedup) })
	return g.Wait()
}
