package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/orderhub/pkg/bus"
	"github.com/nao1215/orderhub/pkg/event"
	"github.com/nao1215/orderhub/pkg/httpclient"
	"github.com/nao1215/orderhub/pkg/mail"
	"github.com/nao1215/orderhub/pkg/resilience"
)

// GroupEmail は通知サービスのコンシューマーグループ名。
const GroupEmail = "email-group"

// Consume はorders.placedをemail-groupとして購読し、ctxが終了するまでブロックする。
func (s *Server) Consume(ctx context.Context, consumer bus.Consumer, dedup bus.Deduplicator) error {
	handler := bus.Idempotent(GroupEmail, dedup, s.handleOrderPlaced, s.logger)
	return consumer.Consume(ctx, event.TopicOrdersPlaced, GroupEmail, handler)
}

// handleOrderPlaced は注文確認メールを送信し、通知を記録する。
// 通知が記録済みの注文はメールを送らずに終了する。
func (s *Server) handleOrderPlaced(ctx context.Context, e *event.Event) error {
	if e.EventType != event.TypeOrderPlaced {
		return nil
	}
	data, err := event.DecodeData[event.OrderPlacedData](e)
	if err != nil {
		s.logger.Error("OrderPlacedイベントを解釈できないため破棄します", "event_id", e.ID, "error", err)
		return nil
	}

	exists, err := s.store.ExistsForOrder(ctx, data.OrderID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	n := Notification{
		ID:        uuid.New().String(),
		UserID:    data.CustomerID,
		OrderID:   data.OrderID,
		Title:     "ご注文を受け付けました",
		Message:   fmt.Sprintf("注文 %s（%s円）を受け付けました。", data.OrderID, data.TotalAmount.StringFixed(2)),
		CreatedAt: time.Now().UTC(),
	}

	if data.RecipientEmail != "" {
		if err := s.sendMail(ctx, mail.Message{To: data.RecipientEmail, Subject: n.Title, Body: n.Message}); err != nil {
			return err
		}
		n.RecipientEmail = data.RecipientEmail
	}

	if err := s.store.Create(ctx, n); err != nil {
		return err
	}
	s.logger.Info("注文確認の通知を記録しました", "order_id", data.OrderID, "user_id", data.CustomerID)
	return nil
}

// sendMail はメールを送信する。中継サービスの4xxはリトライしても変わらないため、
// ログに記録して送信済みとして扱う。
func (s *Server) sendMail(ctx context.Context, msg mail.Message) error {
	_, err := resilience.Retry(ctx, s.mailRetry, func(ctx context.Context) error {
		err := s.sender.Send(ctx, msg)
		if httpclient.IsClientError(err) || errors.Is(err, mail.ErrNoRecipient) {
			return resilience.Permanent(err)
		}
		return err
	})
	if resilience.IsPermanent(err) {
		s.logger.Error("メール中継サービスが送信を拒否しました", "to", msg.To, "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("確認メールの送信に失敗: %w", err)
	}
	return nil
}
