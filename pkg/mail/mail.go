// Package mail は注文確認メールの送信手段を提供する。
//
// 本番ではメール中継サービスへHTTPで送信し、中継先が設定されていない環境ではログに出力する。
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/orderhub/pkg/httpclient"
	"github.com/nao1215/orderhub/pkg/logger"
)

// ErrNoRecipient は宛先が空のメッセージを表す。
var ErrNoRecipient = errors.New("メールの宛先が指定されていません")

// Message は送信するメール。
type Message struct {
	// To は宛先のメールアドレス。
	To string `json:"to"`
	// Subject は件名。
	Subject string `json:"subject"`
	// Body は本文。
	Body string `json:"body"`
}

// Sender はメールを送信する。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// RelaySender はメール中継サービスのHTTP APIでメールを送信する。
type RelaySender struct {
	// client は中継サービスへの通信クライアント。
	client *httpclient.Client
	// path は送信APIのパス。
	path string
}

// NewRelaySender は中継サービスへのクライアントを指定してRelaySenderを生成する。
func NewRelaySender(client *httpclient.Client) *RelaySender {
	return &RelaySender{client: client, path: "/send"}
}

// Send は中継サービスへメールをPOSTする。
func (s *RelaySender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	if err := s.client.PostJSON(ctx, s.path, msg, nil); err != nil {
		return fmt.Errorf("メール中継サービスへの送信に失敗: %w", err)
	}
	return nil
}

// LogSender はメールを送信せずにログへ出力する。
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender は新しいLogSenderを生成する。
func NewLogSender(l *slog.Logger) *LogSender {
	return &LogSender{logger: logger.OrDiscard(l)}
}

// Send はメールの宛先と件名をログに出力する。
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	s.logger.Info("メールを送信しました", "to", msg.To, "subject", msg.Subject)
	return nil
}

// NewSender は中継サービスのURLが空ならLogSender、そうでなければRelaySenderを返す。
func NewSender(relayURL string, l *slog.Logger) Sender {
	if relayURL == "" {
		return NewLogSender(l)
	}
	return NewRelaySender(httpclient.New(relayURL))
}
