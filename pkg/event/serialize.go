package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidEnvelope はイベントが必須項目や不変条件を満たさないことを表す。
var ErrInvalidEnvelope = errors.New("イベントが不正です")

// New は新しいイベントを生成する。
// dataにはイベント固有のデータ構造体を渡す。JSON形式にシリアライズされる。
func New(aggregateID string, aggregateType AggregateType, eventType Type, version int64, data any) (*Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}

	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Version:       version,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// NewOrderPlaced はOrderPlacedイベントを検証してから生成する。
func NewOrderPlaced(data OrderPlacedData) (*Event, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return New(data.OrderID, AggregateTypeOrder, TypeOrderPlaced, 1, data)
}

// Validate はOrderPlacedDataの不変条件を検証する。
func (d OrderPlacedData) Validate() error {
	switch {
	case d.OrderID == "":
		return fmt.Errorf("%w: order_idが空です", ErrInvalidEnvelope)
	case d.CustomerID == "":
		return fmt.Errorf("%w: customer_idが空です", ErrInvalidEnvelope)
	case d.RestaurantID == "":
		return fmt.Errorf("%w: restaurant_idが空です", ErrInvalidEnvelope)
	case d.TotalAmount.LessThan(MinTotalAmount):
		return fmt.Errorf("%w: total_amountは%s以上である必要があります", ErrInvalidEnvelope, MinTotalAmount)
	case !d.Status.Valid():
		return fmt.Errorf("%w: 不明なstatus %q", ErrInvalidEnvelope, d.Status)
	}
	return nil
}

// DecodeData はイベントのDataフィールドを指定された型にデシリアライズする。
func DecodeData[T any](e *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}

// Encode はイベントを配信用のJSONに変換する。
func Encode(e *Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("イベントのシリアライズに失敗: %w", err)
	}
	return b, nil
}

// Decode は配信されたJSONをイベントに変換する。
// 未知のフィールドは無視する。
func Decode(b []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if e.ID == "" || e.AggregateID == "" || e.EventType == "" {
		return nil, fmt.Errorf("%w: id, aggregate_id, event_typeは必須です", ErrInvalidEnvelope)
	}
	return &e, nil
}
