package event

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TopicOrdersPlaced は注文確定イベントを配信するトピック名。
const TopicOrdersPlaced = "orders.placed"

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeOrder は注文エンティティを表す。
	AggregateTypeOrder AggregateType = "Order"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeOrderPlaced は注文が受け付けられたことを表す。
	TypeOrderPlaced Type = "OrderPlaced"
)

// Event はバスで配信される不変のイベントレコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。注文イベントでは注文IDで、パーティションキーになる。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// Version はスキーマのバージョン。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// Key は同一注文のイベントを同じ順序で配信するためのキーを返す。
func (e *Event) Key() string {
	return e.AggregateID
}

// OrderStatus は注文の状態。
type OrderStatus string

const (
	// OrderStatusPending は受付直後の状態。
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusConfirmed はレストランが受注を確定した状態。
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// OrderStatusPreparing は調理中の状態。
	OrderStatusPreparing OrderStatus = "PREPARING"
	// OrderStatusOutForDelivery は配達中の状態。
	OrderStatusOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	// OrderStatusDelivered は配達完了の状態。
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled は取り消された状態。
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Valid は定義済みの状態であるかを返す。
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// MinTotalAmount は注文金額の下限。
var MinTotalAmount = decimal.RequireFromString("0.01")

// OrderPlacedData はOrderPlacedイベントのデータ。
type OrderPlacedData struct {
	// OrderID は注文の識別子。
	OrderID string `json:"order_id"`
	// CustomerID は注文した顧客のユーザーID。
	CustomerID string `json:"customer_id"`
	// RestaurantID は注文先レストランの識別子。
	RestaurantID string `json:"restaurant_id"`
	// TotalAmount は注文金額。0.01以上。
	TotalAmount decimal.Decimal `json:"total_amount"`
	// Status は発行時点の注文状態。
	Status OrderStatus `json:"status"`
	// RecipientEmail は確認メールの宛先。空の場合はメールを送らない。
	RecipientEmail string `json:"recipient_email"`
}
