package main

import (
	"path/filepath"
	"testing"
)

func TestRun(t *testing.T) {
	t.Run("初期化に失敗した場合はプロセスを終了せずエラーを返すこと", func(t *testing.T) {
		t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "missing", "restaurant.db"))
		t.Setenv("KAFKA_BROKERS", "")
		t.Setenv("REDIS_ADDR", "")

		if err := run(); err == nil {
			t.Fatal("run()がエラーを返さない")
		}
	})
}
