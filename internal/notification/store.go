package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotificationNotFound は通知が存在しないことを表す。
var ErrNotificationNotFound = errors.New("通知が見つかりません")

// Notification は1件の通知。
type Notification struct {
	ID             string
	UserID         string
	OrderID        string
	Title          string
	Message        string
	RecipientEmail string
	IsRead         bool
	CreatedAt      time.Time
}

// store はnotificationsテーブルへのクエリを実行する。
type store struct {
	db *sql.DB
}

// Create は通知を保存する。同じ注文の通知がすでにある場合は何もしない。
func (s *store) Create(ctx context.Context, n Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, order_id, title, message, recipient_email, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT(order_id) DO NOTHING`,
		n.ID, n.UserID, n.OrderID, n.Title, n.Message, n.RecipientEmail, n.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("通知の保存に失敗: %w", err)
	}
	return nil
}

// ExistsForOrder は注文の通知が記録済みかを返す。
func (s *store) ExistsForOrder(ctx context.Context, orderID string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE order_id = ?`, orderID).Scan(&n); err != nil {
		return false, fmt.Errorf("通知の確認に失敗: %w", err)
	}
	return n > 0, nil
}

const selectNotifications = `SELECT id, user_id, order_id, title, message, recipient_email, is_read, created_at FROM notifications`

// GetByID はIDで通知を取得する。
func (s *store) GetByID(ctx context.Context, id string) (Notification, error) {
	ns, err := s.query(ctx, selectNotifications+` WHERE id = ?`, id)
	if err != nil {
		return Notification{}, err
	}
	if len(ns) == 0 {
		return Notification{}, ErrNotificationNotFound
	}
	return ns[0], nil
}

// ListByUserID はユーザーの通知を新しい順に返す。
func (s *store) ListByUserID(ctx context.Context, userID string) ([]Notification, error) {
	return s.query(ctx, selectNotifications+` WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

// ListUnread はユーザーの未読通知を新しい順に返す。
func (s *store) ListUnread(ctx context.Context, userID string) ([]Notification, error) {
	return s.query(ctx, selectNotifications+` WHERE user_id = ? AND is_read = 0 ORDER BY created_at DESC`, userID)
}

// MarkAsRead は通知を既読にする。
func (s *store) MarkAsRead(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("通知の既読処理に失敗: %w", err)
	}
	return nil
}

// MarkAllAsRead はユーザーの全通知を既読にする。
func (s *store) MarkAllAsRead(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("全通知の既読処理に失敗: %w", err)
	}
	return nil
}

func (s *store) query(ctx context.Context, query string, args ...any) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("通知の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	notifications := make([]Notification, 0)
	for rows.Next() {
		var (
			n         Notification
			isRead    int
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.OrderID, &n.Title, &n.Message, &n.RecipientEmail, &isRead, &createdAt); err != nil {
			return nil, fmt.Errorf("通知の読み取りに失敗: %w", err)
		}
		n.IsRead = isRead != 0
		if n.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("作成日時の解析に失敗: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
