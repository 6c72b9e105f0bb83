// レストランサービスのエントリポイント。
// レストランの管理APIを提供し、restaurant-group として注文確定イベントを購読する。
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/orderhub/internal/restaurant"
	"github.com/nao1215/orderhub/pkg/bus"
	"github.com/nao1215/orderhub/pkg/config"
	"github.com/nao1215/orderhub/pkg/logger"
	"github.com/nao1215/orderhub/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("レストランサービスが異常終了: %v", err)
	}
}

func run() error {
	config.Load()
	l := logger.New(config.String("LOG_LEVEL", "info"), "restaurant")
	m := metrics.New("restaurant")
	cfg := restaurant.ConfigFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport := bus.Open(cfg.KafkaBrokers, cfg.RedeliveryDelay, l, m)
	defer transport.Publisher.Close()
	dedup, closeDedup := bus.OpenDeduplicator(cfg.RedisAddr, "orderhub:dedup:", cfg.DedupTTL)
	defer closeDedup()

	server, err := restaurant.NewServer(ctx, cfg, m, l)
	if err != nil {
		return fmt.Errorf("レストランサーバーの初期化に失敗: %w", err)
	}
	defer server.Close()

	l.Info("レストランサービスを起動します", "port", cfg.Port)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })
	g.Go(func() error { return server.Consume(ctx, transport.Consumer, dedup) })
	return g.Wait()
}
