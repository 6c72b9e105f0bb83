package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// t.Setenvを使うためこのファイルのテストは並列実行しない。

// TestGetters は型付きゲッターを検証する。
func TestGetters(t *testing.T) {
	t.Setenv("CFG_STRING", "value")
	t.Setenv("CFG_INT", "12")
	t.Setenv("CFG_BAD_INT", "twelve")
	t.Setenv("CFG_FLOAT", "0.5")
	t.Setenv("CFG_DURATION", "250ms")
	t.Setenv("CFG_LIST", " a, b ,,c ")

	if got := String("CFG_STRING", "def"); got != "value" {
		t.Errorf("String() = %q, want %q", got, "value")
	}
	if got := String("CFG_UNSET", "def"); got != "def" {
		t.Errorf("String() = %q, want %q", got, "def")
	}
	if got := Int("CFG_INT", 1); got != 12 {
		t.Errorf("Int() = %d, want %d", got, 12)
	}
	if got := Int("CFG_BAD_INT", 3); got != 3 {
		t.Errorf("Int() = %d, want %d", got, 3)
	}
	if got := Float("CFG_FLOAT", 0); got != 0.5 {
		t.Errorf("Float() = %v, want %v", got, 0.5)
	}
	if got := Duration("CFG_DURATION", time.Second); got != 250*time.Millisecond {
		t.Errorf("Duration() = %v, want %v", got, 250*time.Millisecond)
	}
	if got := List("CFG_LIST", nil); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("List() = %v, want [a b c]", got)
	}
}

// TestRequire は必須値の検査を検証する。
func TestRequire(t *testing.T) {
	t.Setenv("CFG_PRESENT", "x")

	if err := Require("CFG_PRESENT"); err != nil {
		t.Errorf("Require()でエラーが発生: %v", err)
	}
	if err := Require("CFG_PRESENT", "CFG_ABSENT"); !errors.Is(err, ErrMissing) {
		t.Errorf("err = %v, want ErrMissing", err)
	}
}

// TestLoad は.envファイルが未設定の値だけを補うことを検証する。
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("CFG_FROM_FILE=file\nCFG_OVERRIDE=file\n"), 0o600); err != nil {
		t.Fatalf("ファイルの作成に失敗: %v", err)
	}
	t.Setenv("CFG_OVERRIDE", "env")
	t.Setenv("CFG_FROM_FILE", "")
	os.Unsetenv("CFG_FROM_FILE")

	Load(path, filepath.Join(dir, "missing.env"))

	if got := String("CFG_FROM_FILE", ""); got != "file" {
		t.Errorf("CFG_FROM_FILE = %q, want %q", got, "file")
	}
	if got := String("CFG_OVERRIDE", ""); got != "env" {
		t.Errorf("CFG_OVERRIDE = %q, want %q", got, "env")
	}
}
