// Package httpserver はサービスのHTTPサーバーの起動と停止を扱う。
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nao1215/orderhub/pkg/logger"
)

// ShutdownTimeout は停止時に処理中のリクエストを待つ時間。
const ShutdownTimeout = 5 * time.Second

// Run はaddrでhandlerを提供し、ctxが終了したらサーバーを停止する。
// ctxの終了による停止ではnilを返す。
func Run(ctx context.Context, addr string, handler http.Handler, l *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("リッスンに失敗: %w", err)
	}
	return Serve(ctx, ln, handler, l)
}

// Serve はlnでhandlerを提供する。
func Serve(ctx context.Context, ln net.Listener, handler http.Handler, l *slog.Logger) error {
	l = logger.OrDiscard(l)
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("HTTPサーバーを起動します", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPサーバーが停止しました: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	l.Info("HTTPサーバーを停止しました")
	return nil
}
