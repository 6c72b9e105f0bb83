package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/orderhub/pkg/event"
	"github.com/nao1215/orderhub/pkg/identity"
	"github.com/shopspring/decimal"
)

// ErrInvalidOrder は注文内容が不正であることを表す。イベントは発行されない。
var ErrInvalidOrder = errors.New("注文内容が不正です")

// placeRequest は注文受付の入力。
type placeRequest struct {
	// RestaurantID は注文先レストランの識別子。
	RestaurantID string `json:"restaurant_id"`
	// TotalAmount は注文金額。0.01以上。
	TotalAmount decimal.Decimal `json:"total_amount"`
	// Status は初期状態。省略時はPENDING。
	Status event.OrderStatus `json:"status"`
}

// validate は入力を検証し、既定値を補う。
func (r *placeRequest) validate() error {
	r.RestaurantID = strings.TrimSpace(r.RestaurantID)
	if r.RestaurantID == "" {
		return fmt.Errorf("%w: restaurant_idは必須です", ErrInvalidOrder)
	}
	if r.TotalAmount.LessThan(event.MinTotalAmount) {
		return fmt.Errorf("%w: total_amountは%s以上である必要があります", ErrInvalidOrder, event.MinTotalAmount)
	}
	if r.Status == "" {
		r.Status = event.OrderStatusPending
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: 不明なstatus %q", ErrInvalidOrder, r.Status)
	}
	return nil
}

// place は注文を保存してOrderPlacedイベントを発行する。
//
// 保存と発行は1つのトランザクションで扱い、発行が失敗した場合はロールバックして
// bus.ErrPublishFailed をラップしたエラーを返す。入力が不正な場合は何も書き込まず、
// 何も発行せずに ErrInvalidOrder を返す。
func (s *Server) place(ctx context.Context, p *identity.Principal, req placeRequest) (Order, error) {
	if err := req.validate(); err != nil {
		return Order{}, err
	}

	o := Order{
		ID:           uuid.New().String(),
		CustomerID:   p.UserID,
		RestaurantID: req.RestaurantID,
		TotalAmount:  req.TotalAmount,
		Status:       req.Status,
		CreatedAt:    time.Now().UTC(),
	}
	e, err := event.NewOrderPlaced(event.OrderPlacedData{
		OrderID:        o.ID,
		CustomerID:     o.CustomerID,
		RestaurantID:   o.RestaurantID,
		TotalAmount:    o.TotalAmount,
		Status:         o.Status,
		RecipientEmail: p.Email,
	})
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.orders.Save(ctx, tx, o); err != nil {
		return Order{}, err
	}

	pctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pctx, event.TopicOrdersPlaced, e); err != nil {
		return Order{}, err
	}

	if err := tx.Commit(); err != nil {
		// イベントは発行済みのため、購読側は存在しない注文を受け取る。
		s.logger.Error("イベント発行後のコミットに失敗", "order_id", o.ID, "event_id", e.ID, "error", err)
		return Order{}, fmt.Errorf("トランザクションのコミットに失敗: %w", err)
	}
	return o, nil
}
