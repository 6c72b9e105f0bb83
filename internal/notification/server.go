package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/orderhub/pkg/httpserver"
	"github.com/nao1215/orderhub/pkg/identity"
	"github.com/nao1215/orderhub/pkg/logger"
	"github.com/nao1215/orderhub/pkg/mail"
	"github.com/nao1215/orderhub/pkg/metrics"
	"github.com/nao1215/orderhub/pkg/middleware"
	"github.com/nao1215/orderhub/pkg/migration"
	"github.com/nao1215/orderhub/pkg/resilience"
)

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteデータベース接続。
	db *sql.DB
	// store はnotificationsテーブルへのクエリ実行オブジェクト。
	store *store
	// sender は確認メールの送信手段。
	sender mail.Sender
	// mailRetry はメール送信のリトライ設定。
	mailRetry resilience.RetryConfig
	// boundary は伝播ヘッダーを信頼するかを判定する。
	boundary identity.Boundary
	// logger はログの出力先。
	logger *slog.Logger
	// metrics はPrometheusメトリクス。
	metrics *metrics.Metrics
}

// NewServer は新しい通知サーバーを生成する。
// senderがnilの場合は設定のMailRelayURLから送信手段を決める。
func NewServer(ctx context.Context, cfg Config, sender mail.Sender, m *metrics.Metrics, l *slog.Logger) (*Server, error) {
	l = logger.OrDiscard(l)
	if m == nil {
		m = metrics.New("notification")
	}
	if sender == nil {
		sender = mail.NewSender(cfg.MailRelayURL, l)
	}

	db, err := migration.Open(ctx, cfg.DatabasePath, migrations, migrationsDir, l)
	if err != nil {
		return nil, fmt.Errorf("データベースの初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery(l))
	router.Use(gin.Logger())

	s := &Server{
		router:    router,
		port:      cfg.Port,
		db:        db,
		store:     &store{db: db},
		sender:    sender,
		mailRetry: cfg.MailRetry,
		boundary:  identity.NewBoundary(cfg.EdgeSecret),
		logger:    l,
		metrics:   m,
	}
	s.setupRoutes()

	return s, nil
}

// Handler はサーバーのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxが終了するまでブロックする。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Run(ctx, ":"+s.port, s.router, s.logger)
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	api.Use(middleware.TrustedHeaders(s.boundary), middleware.RequireRole())
	{
		notifications := api.Group("/notifications")
		{
			// 通知一覧取得
			notifications.GET("", s.handleList())
			// 未読通知一覧取得
			notifications.GET("/unread", s.handleListUnread())
			// 通知を既読にする
			notifications.PUT("/:id/read", s.handleMarkAsRead())
			// 全通知を既読にする
			notifications.PUT("/read-all", s.handleMarkAllAsRead())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	})
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

// notificationResponse は通知のJSONレスポンス構造。
type notificationResponse struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id"`
	// OrderID は通知の元になった注文ID。
	OrderID string `json:"order_id"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// IsRead は通知の既読状態。
	IsRead bool `json:"is_read"`
	// CreatedAt は通知の作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// toNotificationResponses は通知のスライスをJSONレスポンスのスライスに変換する。
func toNotificationResponses(notifications []Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, notificationResponse{
			ID:        n.ID,
			UserID:    n.UserID,
			OrderID:   n.OrderID,
			Title:     n.Title,
			Message:   n.Message,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		})
	}
	return responses
}

// handleList は認証済みユーザーの通知一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		notifications, err := s.store.ListByUserID(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			s.logger.Error("通知一覧取得エラー", "error", err)
			return
		}

		c.JSON(http.StatusOK, toNotificationResponses(notifications))
	}
}

// handleListUnread は認証済みユーザーの未読通知一覧を返すハンドラ。
func (s *Server) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		notifications, err := s.store.ListUnread(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "未読通知一覧の取得に失敗しました"})
			s.logger.Error("未読通知一覧取得エラー", "error", err)
			return
		}

		c.JSON(http.StatusOK, toNotificationResponses(notifications))
	}
}

// handleMarkAsRead は指定された通知を既読にするハンドラ。
func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		notificationID := c.Param("id")

		// 通知の存在確認と所有者チェック
		n, err := s.store.GetByID(c.Request.Context(), notificationID)
		if errors.Is(err, ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "通知が見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の取得に失敗しました"})
			s.logger.Error("通知取得エラー", "error", err)
			return
		}

		if n.UserID != middleware.GetUserID(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "この通知を操作する権限がありません"})
			return
		}

		if err := s.store.MarkAsRead(c.Request.Context(), notificationID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読処理に失敗しました"})
			s.logger.Error("通知既読処理エラー", "error", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "通知を既読にしました"})
	}
}

// handleMarkAllAsRead は認証済みユーザーの全通知を既読にするハンドラ。
func (s *Server) handleMarkAllAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.store.MarkAllAsRead(c.Request.Context(), middleware.GetUserID(c)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "全通知の既読処理に失敗しました"})
			s.logger.Error("全通知既読処理エラー", "error", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "全通知を既読にしました"})
	}
}
