// Package logger は全サービスで共通の構造化ロガーを生成する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New は指定レベルのテキスト形式slogロガーを生成する。
// serviceはすべてのログ行に service 属性として付与される。
func New(level, service string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, service)
}

// NewWithWriter は出力先を指定してロガーを生成する。
func NewWithWriter(w io.Writer, level, service string) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	l := slog.New(handler)
	if service != "" {
		l = l.With("service", service)
	}
	return l
}

// Discard は何も出力しないロガーを返す。テストや未設定時に使う。
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrDiscard はlがnilならDiscardを返す。
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// ParseLevel はレベル文字列をslog.Levelに変換する。未知の値はInfoになる。
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
