// Package config は環境変数と .env ファイルから設定値を読み込む。
//
// 各サービスは起動時に Load を一度呼び、型付きのゲッターで既定値付きの値を取得する。
// 必須値の欠落は Require が ErrMissing として返し、起動時の致命的エラーとして扱う。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissing は必須の設定値が存在しないことを表す。
var ErrMissing = errors.New("必須の環境変数が設定されていません")

// Load は .env ファイルを読み込み、未設定の環境変数のみを補う。
// ファイルが存在しない場合は何もしない。
func Load(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			slog.Warn("設定ファイルの読み込みに失敗", "file", f, "error", err)
		}
	}
}

// String は環境変数を文字列で返す。未設定または空の場合はdefを返す。
func String(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// Int は環境変数を整数で返す。解釈できない場合は警告を出してdefを返す。
func Int(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("整数として解釈できない設定値のため既定値を使用", "key", key, "default", def, "error", err)
		return def
	}
	return i
}

// Float は環境変数を浮動小数点数で返す。
func Float(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("数値として解釈できない設定値のため既定値を使用", "key", key, "default", def, "error", err)
		return def
	}
	return f
}

// Duration は環境変数を time.Duration で返す（例: "5s"）。
func Duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("期間として解釈できない設定値のため既定値を使用", "key", key, "default", def, "error", err)
		return def
	}
	return d
}

// List は環境変数をカンマ区切りのリストで返す。空要素は捨てる。
func List(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Require は指定された環境変数がすべて設定されていることを確認する。
func Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if String(k, "") == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}
	return nil
}
