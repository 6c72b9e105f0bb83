package event

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// validOrderPlaced はテスト用の正しいOrderPlacedDataを返す。
func validOrderPlaced() OrderPlacedData {
	return OrderPlacedData{
		OrderID:        "order-1",
		CustomerID:     "42",
		RestaurantID:   "rest-1",
		TotalAmount:    decimal.RequireFromString("25.50"),
		Status:         OrderStatusPending,
		RecipientEmail: "alice@example.com",
	}
}

// TestNewOrderPlaced はOrderPlacedイベントの生成を検証する。
func TestNewOrderPlaced(t *testing.T) {
	t.Parallel()

	t.Run("注文IDをキーとするイベントが生成されること", func(t *testing.T) {
		t.Parallel()

		before := time.Now().UTC()
		ev, err := NewOrderPlaced(validOrderPlaced())
		if err != nil {
			t.Fatalf("NewOrderPlaced()でエラーが発生: %v", err)
		}
		if ev.ID == "" {
			t.Error("IDが空文字列")
		}
		if ev.Key() != "order-1" {
			t.Errorf("Key() = %q, want %q", ev.Key(), "order-1")
		}
		if ev.AggregateType != AggregateTypeOrder || ev.EventType != TypeOrderPlaced {
			t.Errorf("種類 = %s/%s, want Order/OrderPlaced", ev.AggregateType, ev.EventType)
		}
		if ev.CreatedAt.Before(before) {
			t.Errorf("CreatedAt = %v, want >= %v", ev.CreatedAt, before)
		}
	})

	t.Run("金額の境界値が検証されること", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			amount  string
			wantErr bool
		}{
			{amount: "0.00", wantErr: true},
			{amount: "-1", wantErr: true},
			{amount: "0.009", wantErr: true},
			{amount: "0.01", wantErr: false},
			{amount: "100", wantErr: false},
		}
		for _, tt := range tests {
			data := validOrderPlaced()
			data.TotalAmount = decimal.RequireFromString(tt.amount)
			_, err := NewOrderPlaced(data)
			if tt.wantErr != errors.Is(err, ErrInvalidEnvelope) {
				t.Errorf("amount=%s: err = %v, wantErr %v", tt.amount, err, tt.wantErr)
			}
		}
	})

	t.Run("必須項目や状態が不正な場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		mutations := map[string]func(*OrderPlacedData){
			"order_id":      func(d *OrderPlacedData) { d.OrderID = "" },
			"customer_id":   func(d *OrderPlacedData) { d.CustomerID = "" },
			"restaurant_id": func(d *OrderPlacedData) { d.RestaurantID = "" },
			"status":        func(d *OrderPlacedData) { d.Status = "SHIPPED" },
		}
		for name, mutate := range mutations {
			data := validOrderPlaced()
			mutate(&data)
			if _, err := NewOrderPlaced(data); !errors.Is(err, ErrInvalidEnvelope) {
				t.Errorf("%s: err = %v, want ErrInvalidEnvelope", name, err)
			}
		}
	})
}

// TestDecode は配信されたJSONからの復元を検証する。
func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("エンコードしたイベントのデータを復元できること", func(t *testing.T) {
		t.Parallel()

		ev, err := NewOrderPlaced(validOrderPlaced())
		if err != nil {
			t.Fatalf("NewOrderPlaced()でエラーが発生: %v", err)
		}
		b, err := Encode(ev)
		if err != nil {
			t.Fatalf("Encode()でエラーが発生: %v", err)
		}
		got, err := Decode(b)
		if err != nil {
			t.Fatalf("Decode()でエラーが発生: %v", err)
		}
		data, err := DecodeData[OrderPlacedData](got)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if !data.TotalAmount.Equal(decimal.RequireFromString("25.5")) {
			t.Errorf("TotalAmount = %s, want 25.5", data.TotalAmount)
		}
	})

	t.Run("未知のフィールドを含むイベントも復元できること", func(t *testing.T) {
		t.Parallel()

		raw := `{"id":"e1","aggregate_id":"order-9","aggregate_type":"Order","event_type":"OrderPlaced",` +
			`"data":{"order_id":"order-9","total_amount":"1.00","coupon":"X"},"version":2,"trace_id":"abc"}`
		ev, err := Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Decode()でエラーが発生: %v", err)
		}
		data, err := DecodeData[OrderPlacedData](ev)
		if err != nil {
			t.Fatalf("DecodeData()でエラーが発生: %v", err)
		}
		if data.OrderID != "order-9" {
			t.Errorf("OrderID = %q, want %q", data.OrderID, "order-9")
		}
	})

	t.Run("必須項目のないイベントはエラーになること", func(t *testing.T) {
		t.Parallel()

		for _, raw := range []string{`{}`, `not json`, `{"id":"e1","event_type":"OrderPlaced"}`} {
			if _, err := Decode([]byte(raw)); !errors.Is(err, ErrInvalidEnvelope) {
				t.Errorf("Decode(%s) err = %v, want ErrInvalidEnvelope", raw, err)
			}
		}
	})
}
