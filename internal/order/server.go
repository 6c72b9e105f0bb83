package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/orderhub/pkg/bus"
	"github.com/nao1215/orderhub/pkg/httpserver"
	"github.com/nao1215/orderhub/pkg/identity"
	"github.com/nao1215/orderhub/pkg/logger"
	"github.com/nao1215/orderhub/pkg/metrics"
	"github.com/nao1215/orderhub/pkg/middleware"
	"github.com/nao1215/orderhub/pkg/migration"
	"github.com/nao1215/orderhub/pkg/resilience"
)

// Server は注文サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteデータベース接続。
	db *sql.DB
	// orders はordersテーブルへのクエリ実行オブジェクト。
	orders *orderStore
	// publisher はOrderPlacedイベントの発行先。
	publisher bus.Publisher
	// publishTimeout はイベント発行を待つ上限。
	publishTimeout time.Duration
	// findAll は全注文の取得を保護する。
	findAll *resilience.Wrapper
	// findByCustomer は顧客ごとの注文の取得を保護する。
	findByCustomer *resilience.Wrapper
	// boundary は伝播ヘッダーを信頼するかを判定する。
	boundary identity.Boundary
	// logger はログの出力先。
	logger *slog.Logger
	// metrics はPrometheusメトリクス。
	metrics *metrics.Metrics
}

// NewServer は新しい注文サーバーを生成する。
// mがnilの場合はサービス用のメトリクスを新たに作る。
func NewServer(ctx context.Context, cfg Config, publisher bus.Publisher, m *metrics.Metrics, l *slog.Logger) (*Server, error) {
	l = logger.OrDiscard(l)
	if m == nil {
		m = metrics.New("order")
	}

	db, err := migration.Open(ctx, cfg.DatabasePath, migrations, migrationsDir, l)
	if err != nil {
		return nil, fmt.Errorf("データベースの初期化に失敗: %w", err)
	}

	publishTimeout := cfg.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}

	router := gin.New()
	router.Use(middleware.Recovery(l))
	router.Use(gin.Logger())

	s := &Server{
		router:         router,
		port:           cfg.Port,
		db:             db,
		orders:         &orderStore{db: db},
		publisher:      publisher,
		publishTimeout: publishTimeout,
		findAll:        newWrapper(cfg.ReadPolicy, "orders.findAll", l, m),
		findByCustomer: newWrapper(cfg.ReadPolicy, "orders.findByCustomer", l, m),
		boundary:       identity.NewBoundary(cfg.EdgeSecret),
		logger:         l,
		metrics:        m,
	}
	s.setupRoutes()

	return s, nil
}

// newWrapper は呼び出し箇所ごとの名前を付けたWrapperを生成する。
func newWrapper(policy resilience.Policy, name string, l *slog.Logger, m *metrics.Metrics) *resilience.Wrapper {
	policy.Name = name
	return resilience.New(policy, resilience.WithLogger(l), resilience.WithMetrics(m))
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
	api.Use(middleware.TrustedHeaders(s.boundary))
	{
		orders := api.Group("/orders")
		{
			// 注文受付
			orders.POST("", middleware.RequireRole(identity.RoleCustomer), s.handlePlace())
			// 全注文一覧（事業者と管理者）
			orders.GET("", middleware.RequireRole(identity.RoleRestaurantOwner, identity.RoleAdmin), s.handleList())
			// 自分の注文一覧
			orders.GET("/myorder", middleware.RequireRole(identity.RoleCustomer), s.handleListMine())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "order"})
	})
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

// orderResponse は注文のJSONレスポンス構造。
type orderResponse struct {
	ID           string `json:"id"`
	CustomerID   string `json:"customer_id"`
	RestaurantID string `json:"restaurant_id"`
	// TotalAmount は小数点以下2桁の注文金額。
	TotalAmount string `json:"total_amount"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// toOrderResponse は注文をJSONレスポンスに変換する。
func toOrderResponse(o Order) orderResponse {
	return orderResponse{
		ID:           o.ID,
		CustomerID:   o.CustomerID,
		RestaurantID: o.RestaurantID,
		TotalAmount:  o.TotalAmount.StringFixed(2),
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt.Format(time.RFC3339),
	}
}

// toOrderResponses は注文のスライスをJSONレスポンスのスライスに変換する。
func toOrderResponses(orders []Order) []orderResponse {
	responses := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		responses = append(responses, toOrderResponse(o))
	}
	return responses
}

// handlePlace は注文を受け付けるハンドラ。
func (s *Server) handlePlace() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, _ := middleware.GetPrincipal(c)

		var req placeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		o, err := s.place(c.Request.Context(), p, req)
		switch {
		case errors.Is(err, ErrInvalidOrder):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		case errors.Is(err, bus.ErrPublishFailed):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文イベントの発行に失敗したため注文を受け付けられませんでした"})
			s.logger.Error("注文イベント発行エラー", "customer_id", p.UserID, "error", err)
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "注文の受付に失敗しました"})
			s.logger.Error("注文受付エラー", "customer_id", p.UserID, "error", err)
			return
		}

		s.logger.Info("注文を受け付けました", "order_id", o.ID, "customer_id", o.CustomerID)
		c.JSON(http.StatusCreated, toOrderResponse(o))
	}
}

// handleList は全注文の一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, out, err := resilience.Call(c.Request.Context(), s.findAll, s.orders.FindAll, emptyOrders)
		s.respondList(c, orders, out, err)
	}
}

// handleListMine は認証済み顧客の注文一覧を返すハンドラ。
func (s *Server) handleListMine() gin.HandlerFunc {
	return func(c *gin.Context) {
		customerID := middleware.GetUserID(c)
		orders, out, err := resilience.Call(c.Request.Context(), s.findByCustomer, func(ctx context.Context) ([]Order, error) {
			return s.orders.FindByCustomer(ctx, customerID)
		}, emptyOrders)
		s.respondList(c, orders, out, err)
	}
}

// emptyOrders は縮退時に返す空の一覧。
func emptyOrders(error) []Order {
	return []Order{}
}

// respondList は保護された一覧取得の結果を返す。縮退した場合はX-Degradedヘッダーを付ける。
func (s *Server) respondList(c *gin.Context, orders []Order, out resilience.Outcome, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "注文一覧の取得に失敗しました"})
		s.logger.Error("注文一覧取得エラー", "error", err)
		return
	}
	if out.Degraded {
		c.Header(middleware.HeaderDegraded, "true")
	}
	c.JSON(http.StatusOK, toOrderResponses(orders))
}
