package restaurant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrRestaurantNotFound はレストランが存在しないことを表す。
var ErrRestaurantNotFound = errors.New("レストランが見つかりません")

// Restaurant はレストラン。
type Restaurant struct {
	ID        string
	OwnerID   string
	Name      string
	Address   string
	Cuisine   string
	CreatedAt time.Time
}

// Ticket は1注文分の調理チケット。
type Ticket struct {
	ID           string
	OrderID      string
	RestaurantID string
	CustomerID   string
	TotalAmount  decimal.Decimal
	Status       string
	CreatedAt    time.Time
}

// TicketStatusPreparing は調理を開始したチケットの状態。
const TicketStatusPreparing = "PREPARING"

// store はrestaurantsテーブルとticketsテーブルへのクエリを実行する。
type store struct {
	db *sql.DB
}

// SaveRestaurant はレストランを保存する。
func (s *store) SaveRestaurant(ctx context.Context, r Restaurant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO restaurants (id, owner_id, name, address, cuisine, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.OwnerID, r.Name, r.Address, r.Cuisine, r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("レストランの保存に失敗: %w", err)
	}
	return nil
}

// UpdateRestaurant は所有者が一致するレストランの店名と住所と料理のジャンルを更新する。
func (s *store) UpdateRestaurant(ctx context.Context, r Restaurant) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE restaurants SET name = ?, address = ?, cuisine = ? WHERE id = ? AND owner_id = ?`,
		r.Name, r.Address, r.Cuisine, r.ID, r.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("レストランの更新に失敗: %w", err)
	}
	return expectOneRow(res)
}

// DeleteRestaurant は所有者が一致するレストランを削除する。作成済みのチケットは残す。
func (s *store) DeleteRestaurant(ctx context.Context, id, ownerID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM restaurants WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("レストランの削除に失敗: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrRestaurantNotFound
	}
	return nil
}

const selectRestaurants = `SELECT id, owner_id, name, address, cuisine, created_at FROM restaurants`

// FindByID はIDでレストランを取得する。
func (s *store) FindByID(ctx context.Context, id string) (Restaurant, error) {
	rs, err := s.queryRestaurants(ctx, selectRestaurants+` WHERE id = ?`, id)
	if err != nil {
		return Restaurant{}, err
	}
	if len(rs) == 0 {
		return Restaurant{}, ErrRestaurantNotFound
	}
	return rs[0], nil
}

// FindAll はすべてのレストランを名前順に返す。
func (s *store) FindAll(ctx context.Context) ([]Restaurant, error) {
	return s.queryRestaurants(ctx, selectRestaurants+` ORDER BY name`)
}

// FindByOwner は所有者のレストランを名前順に返す。
func (s *store) FindByOwner(ctx context.Context, ownerID string) ([]Restaurant, error) {
	return s.queryRestaurants(ctx, selectRestaurants+` WHERE owner_id = ? ORDER BY name`, ownerID)
}

func (s *store) queryRestaurants(ctx context.Context, query string, args ...any) ([]Restaurant, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("レストランの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	restaurants := make([]Restaurant, 0)
	for rows.Next() {
		var (
			r         Restaurant
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Address, &r.Cuisine, &createdAt); err != nil {
			return nil, fmt.Errorf("レストランの読み取りに失敗: %w", err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("登録日時の解析に失敗: %w", err)
		}
		restaurants = append(restaurants, r)
	}
	return restaurants, rows.Err()
}

// SaveTicket はチケットを保存する。同じ注文のチケットがすでにある場合は何もせずfalseを返す。
func (s *store) SaveTicket(ctx context.Context, t Ticket) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (id, order_id, restaurant_id, customer_id, total_amount, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT(order_id) DO NOTHING`,
		t.ID, t.OrderID, t.RestaurantID, t.CustomerID, t.TotalAmount.String(), t.Status, t.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("チケットの保存に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("チケットの保存結果の取得に失敗: %w", err)
	}
	return n == 1, nil
}

// FindTickets はレストランのチケットを作成順に返す。
func (s *store) FindTickets(ctx context.Context, restaurantID string) ([]Ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, restaurant_id, customer_id, total_amount, status, created_at
		 FROM tickets WHERE restaurant_id = ? ORDER BY created_at`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("チケットの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tickets := make([]Ticket, 0)
	for rows.Next() {
		var (
			t                 Ticket
			amount, createdAt string
		)
		if err := rows.Scan(&t.ID, &t.OrderID, &t.RestaurantID, &t.CustomerID, &amount, &t.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("チケットの読み取りに失敗: %w", err)
		}
		if t.TotalAmount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("注文金額の解析に失敗: %w", err)
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("作成日時の解析に失敗: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}
