package order

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nao1215/orderhub/pkg/event"
	"github.com/shopspring/decimal"
)

// Order は注文。
type Order struct {
	ID           string
	CustomerID   string
	RestaurantID string
	TotalAmount  decimal.Decimal
	Status       event.OrderStatus
	CreatedAt    time.Time
}

// execer はsql.DBとsql.Txの共通部分。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// orderStore はordersテーブルへのクエリを実行する。
type orderStore struct {
	db *sql.DB
}

// Save は注文を保存する。トランザクション内で呼ぶ場合はtxを渡す。
func (s *orderStore) Save(ctx context.Context, ex execer, o Order) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO orders (id, customer_id, restaurant_id, total_amount, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.CustomerID, o.RestaurantID, o.TotalAmount.String(), string(o.Status), o.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("注文の保存に失敗: %w", err)
	}
	return nil
}

// FindAll はすべての注文を新しい順に返す。
func (s *orderStore) FindAll(ctx context.Context) ([]Order, error) {
	return s.query(ctx, `SELECT id, customer_id, restaurant_id, total_amount, status, created_at FROM orders ORDER BY created_at DESC`)
}

// FindByCustomer は顧客の注文を新しい順に返す。
func (s *orderStore) FindByCustomer(ctx context.Context, customerID string) ([]Order, error) {
	return s.query(ctx, `SELECT id, customer_id, restaurant_id, total_amount, status, created_at FROM orders WHERE customer_id = ? ORDER BY created_at DESC`, customerID)
}

func (s *orderStore) query(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("注文一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	orders := make([]Order, 0)
	for rows.Next() {
		var (
			o                 Order
			amount, createdAt string
			status            string
		)
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.RestaurantID, &amount, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("注文の読み取りに失敗: %w", err)
		}
		if o.TotalAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("注文金額の解析に失敗: %w", err)
		}
		if o.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("注文日時の解析に失敗: %w", err)
		}
		o.Status = event.OrderStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
