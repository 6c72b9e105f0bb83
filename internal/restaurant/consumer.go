package restaurant

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/orderhub/pkg/bus"
	"github.com/nao1215/orderhub/pkg/event"
)

// GroupFulfillment はレストランサービスのコンシューマーグループ名。
const GroupFulfillment = "restaurant-group"

// Consume はorders.placedをrestaurant-groupとして購読し、ctxが終了するまでブロックする。
func (s *Server) Consume(ctx context.Context, consumer bus.Consumer, dedup bus.Deduplicator) error {
	handler := bus.Idempotent(GroupFulfillment, dedup, s.handleOrderPlaced, s.logger)
	return consumer.Consume(ctx, event.TopicOrdersPlaced, GroupFulfillment, handler)
}

// handleOrderPlaced は注文に対応する調理チケットを作成する。
// 同じ注文のチケットがすでにある場合は何もしない。
func (s *Server) handleOrderPlaced(ctx context.Context, e *event.Event) error {
	if e.EventType != event.TypeOrderPlaced {
		return nil
	}
	data, err := event.DecodeData[event.OrderPlacedData](e)
	if err != nil {
		// 再配信しても解釈できないため破棄する
		s.logger.Error("OrderPlacedイベントを解釈できないため破棄します", "event_id", e.ID, "error", err)
		return nil
	}

	created, err := s.store.SaveTicket(ctx, Ticket{
		ID:           uuid.New().String(),
		OrderID:      data.OrderID,
		RestaurantID: data.RestaurantID,
		CustomerID:   data.CustomerID,
		TotalAmount:  data.TotalAmount,
		Status:       TicketStatusPreparing,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if created {
		s.logger.Info("調理を開始しました", "order_id", data.OrderID, "restaurant_id", data.RestaurantID)
	}
	return nil
}
