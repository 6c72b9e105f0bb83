package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nao1215/orderhub/pkg/httpclient"
	"github.com/nao1215/orderhub/pkg/logger"
)

// TestRelaySender はRelaySenderを検証する。
func TestRelaySender(t *testing.T) {
	t.Parallel()

	t.Run("中継サービスにメッセージがPOSTされること", func(t *testing.T) {
		t.Parallel()

		var got Message
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/send" {
				t.Errorf("Path = %q, want %q", r.URL.Path, "/send")
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("リクエストボディのパースに失敗: %v", err)
			}
			w.WriteHeader(http.StatusAccepted)
		}))
		t.Cleanup(server.Close)

		msg := Message{To: "alice@example.com", Subject: "ご注文を受け付けました", Body: "order-1"}
		if err := NewRelaySender(httpclient.New(server.URL)).Send(context.Background(), msg); err != nil {
			t.Fatalf("Send()でエラーが発生: %v", err)
		}
		if got != msg {
			t.Errorf("受信したメッセージ = %+v, want %+v", got, msg)
		}
	})

	t.Run("中継サービスのエラーが返ること", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		t.Cleanup(server.Close)

		err := NewRelaySender(httpclient.New(server.URL)).Send(context.Background(), Message{To: "a@example.com"})
		var se *httpclient.StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
			t.Errorf("err = %v, want StatusError(502)", err)
		}
	})

	t.Run("宛先が空の場合は送信しないこと", func(t *testing.T) {
		t.Parallel()

		err := NewRelaySender(httpclient.New("http://127.0.0.1:1")).Send(context.Background(), Message{})
		if !errors.Is(err, ErrNoRecipient) {
			t.Errorf("err = %v, want %v", err, ErrNoRecipient)
		}
	})
}

// TestNewSender は中継先の有無による送信手段の選択を検証する。
func TestNewSender(t *testing.T) {
	t.Parallel()

	if _, ok := NewSender("", nil).(*LogSender); !ok {
		t.Error("URLが空の場合はLogSenderを返すこと")
	}
	if _, ok := NewSender("http://mail:8025", nil).(*RelaySender); !ok {
		t.Error("URLがある場合はRelaySenderを返すこと")
	}

	var buf bytes.Buffer
	s := NewLogSender(logger.NewWithWriter(&buf, "info", "notification"))
	if err := s.Send(context.Background(), Message{To: "bob@example.com", Subject: "確認"}); err != nil {
		t.Fatalf("Send()でエラーが発生: %v", err)
	}
	if !strings.Contains(buf.String(), "bob@example.com") {
		t.Errorf("ログに宛先が含まれていない: %s", buf.String())
	}
}
