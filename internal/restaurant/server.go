package restaurant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/orderhub/pkg/httpserver"
	"github.com/nao1215/orderhub/pkg/identity"
	"github.com/nao1215/orderhub/pkg/logger"
	"github.com/nao1215/orderhub/pkg/metrics"
	"github.com/nao1215/orderhub/pkg/middleware"
	"github.com/nao1215/orderhub/pkg/migration"
	"github.com/nao1215/orderhub/pkg/resilience"
)

// Server はレストランサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteデータベース接続。
	db *sql.DB
	// store はレストランとチケットのクエリ実行オブジェクト。
	store *store
	// findAll は全レストランの取得を保護する。
	findAll *resilience.Wrapper
	// findByOwner は所有者ごとのレストランの取得を保護する。
	findByOwner *resilience.Wrapper
	// findByID はIDによるレストランの取得を保護する。
	findByID *resilience.Wrapper
	// boundary は伝播ヘッダーを信頼するかを判定する。
	boundary identity.Boundary
	// logger はログの出力先。
	logger *slog.Logger
	// metrics はPrometheusメトリクス。
	metrics *metrics.Metrics
}

// NewServer は新しいレストランサーバーを生成する。
func NewServer(ctx context.Context, cfg Config, m *metrics.Metrics, l *slog.Logger) (*Server, error) {
	l = logger.OrDiscard(l)
	if m == nil {
		m = metrics.New("restaurant")
	}

	db, err := migration.Open(ctx, cfg.DatabasePath, migrations, migrationsDir, l)
	if err != nil {
		return nil, fmt.Errorf("データベースの初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery(l))
	router.Use(gin.Logger())

	all, byOwner, byID := cfg.ReadPolicy, cfg.ReadPolicy, cfg.ReadPolicy
	all.Name, byOwner.Name, byID.Name = "restaurants.findAll", "restaurants.findByOwner", "restaurants.findByID"

	s := &Server{
		router:      router,
		port:        cfg.Port,
		db:          db,
		store:       &store{db: db},
		findAll:     resilience.New(all, resilience.WithLogger(l), resilience.WithMetrics(m)),
		findByOwner: resilience.New(byOwner, resilience.WithLogger(l), resilience.WithMetrics(m)),
		findByID:    resilience.New(byID, resilience.WithLogger(l), resilience.WithMetrics(m)),
		boundary:    identity.NewBoundary(cfg.EdgeSecret),
		logger:      l,
		metrics:     m,
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
	owner := middleware.RequireRole(identity.RoleRestaurantOwner)

	api := s.router.Group("/api")
	api.Use(middleware.TrustedHeaders(s.boundary))
	{
		restaurants := api.Group("/restaurants")
		{
			restaurants.POST("", owner, s.handleCreate())
			restaurants.GET("", owner, s.handleList())
			restaurants.GET("/owner", owner, s.handleListOwned())
			restaurants.GET("/:id", middleware.RequireRole(), s.handleGet())
			restaurants.PUT("/:id", owner, s.handleUpdate())
			restaurants.DELETE("/:id", owner, s.handleDelete())
			// 調理チケット一覧（所有者のみ）
			restaurants.GET("/:id/tickets", owner, s.handleListTickets())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "restaurant"})
	})
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

// restaurantResponse はレストランのJSONレスポンス構造。
type restaurantResponse struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Cuisine   string `json:"cuisine"`
	CreatedAt string `json:"created_at"`
}

func toRestaurantResponse(r Restaurant) restaurantResponse {
	return restaurantResponse{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Name:      r.Name,
		Address:   r.Address,
		Cuisine:   r.Cuisine,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

func toRestaurantResponses(rs []Restaurant) []restaurantResponse {
	responses := make([]restaurantResponse, 0, len(rs))
	for _, r := range rs {
		responses = append(responses, toRestaurantResponse(r))
	}
	return responses
}

// createRequest はレストラン登録リクエストのJSON構造。
type createRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
	Cuisine string `json:"cuisine"`
}

// handleCreate は認証済み事業者のレストランを登録するハンドラ。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "店名は必須です"})
			return
		}

		r := Restaurant{
			ID:        uuid.New().String(),
			OwnerID:   middleware.GetUserID(c),
			Name:      strings.TrimSpace(req.Name),
			Address:   req.Address,
			Cuisine:   req.Cuisine,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.SaveRestaurant(c.Request.Context(), r); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "レストランの登録に失敗しました"})
			s.logger.Error("レストラン登録エラー", "error", err)
			return
		}

		c.JSON(http.StatusCreated, toRestaurantResponse(r))
	}
}

// handleList は全レストランの一覧を返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		rs, out, err := resilience.Call(c.Request.Context(), s.findAll, s.store.FindAll, emptyRestaurants)
		s.respondList(c, rs, out, err)
	}
}

// handleListOwned は認証済み事業者が所有するレストランの一覧を返すハンドラ。
func (s *Server) handleListOwned() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := middleware.GetUserID(c)
		rs, out, err := resilience.Call(c.Request.Context(), s.findByOwner, func(ctx context.Context) ([]Restaurant, error) {
			return s.store.FindByOwner(ctx, ownerID)
		}, emptyRestaurants)
		s.respondList(c, rs, out, err)
	}
}

func emptyRestaurants(error) []Restaurant {
	return []Restaurant{}
}

// respondList は保護された一覧取得の結果を返す。縮退した場合はX-Degradedヘッダーを付ける。
func (s *Server) respondList(c *gin.Context, rs []Restaurant, out resilience.Outcome, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "レストラン一覧の取得に失敗しました"})
		s.logger.Error("レストラン一覧取得エラー", "error", err)
		return
	}
	if out.Degraded {
		c.Header(middleware.HeaderDegraded, "true")
	}
	c.JSON(http.StatusOK, toRestaurantResponses(rs))
}

// handleGet は指定されたレストランを返すハンドラ。
// 取得が縮退した場合は503とX-Degradedヘッダーを返す。
func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		r, out, err := resilience.Call(c.Request.Context(), s.findByID, func(ctx context.Context) (Restaurant, error) {
			r, err := s.store.FindByID(ctx, id)
			if errors.Is(err, ErrRestaurantNotFound) {
				return Restaurant{}, resilience.Permanent(err)
			}
			return r, err
		}, nil)
		switch {
		case errors.Is(err, ErrRestaurantNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "レストランの取得に失敗しました"})
			s.logger.Error("レストラン取得エラー", "error", err)
			return
		case out.Degraded:
			c.Header(middleware.HeaderDegraded, "true")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "レストランを一時的に取得できません"})
			return
		}
		c.JSON(http.StatusOK, toRestaurantResponse(r))
	}
}

// ownedRestaurant はパスのIDのレストランを取得し、認証済みユーザーが所有者であることを確かめる。
// 存在しない場合は404、所有者でない場合は403を書き込んでfalseを返す。
func (s *Server) ownedRestaurant(c *gin.Context) (Restaurant, bool) {
	r, err := s.store.FindByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrRestaurantNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return Restaurant{}, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "レストランの取得に失敗しました"})
		s.logger.Error("レストラン取得エラー", "error", err)
		return Restaurant{}, false
	}
	if r.OwnerID != middleware.GetUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "このレストランを操作する権限がありません"})
		return Restaurant{}, false
	}
	return r, true
}

// handleUpdate は所有するレストランの店名と住所と料理のジャンルを更新するハンドラ。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "店名は必須です"})
			return
		}

		r, ok := s.ownedRestaurant(c)
		if !ok {
			return
		}
		r.Name = strings.TrimSpace(req.Name)
		r.Address = req.Address
		r.Cuisine = req.Cuisine

		err := s.store.UpdateRestaurant(c.Request.Context(), r)
		if errors.Is(err, ErrRestaurantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "レストランの更新に失敗しました"})
			s.logger.Error("レストラン更新エラー", "error", err)
			return
		}
		c.JSON(http.StatusOK, toRestaurantResponse(r))
	}
}

// handleDelete は所有するレストランを削除するハンドラ。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := s.ownedRestaurant(c)
		if !ok {
			return
		}

		err := s.store.DeleteRestaurant(c.Request.Context(), r.ID, r.OwnerID)
		if errors.Is(err, ErrRestaurantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "レストランの削除に失敗しました"})
			s.logger.Error("レストラン削除エラー", "error", err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ticketResponse は調理チケットのJSONレスポンス構造。
type ticketResponse struct {
	ID           string `json:"id"`
	OrderID      string `json:"order_id"`
	RestaurantID string `json:"restaurant_id"`
	CustomerID   string `json:"customer_id"`
	TotalAmount  string `json:"total_amount"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

// handleListTickets はレストランの調理チケット一覧を返すハンドラ。
// 所有者以外は403を返す。
func (s *Server) handleListTickets() gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := s.ownedRestaurant(c)
		if !ok {
			return
		}

		tickets, err := s.store.FindTickets(c.Request.Context(), r.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "チケット一覧の取得に失敗しました"})
			s.logger.Error("チケット一覧取得エラー", "error", err)
			return
		}

		responses := make([]ticketResponse, 0, len(tickets))
		for _, t := range tickets {
			responses = append(responses, ticketResponse{
				ID:           t.ID,
				OrderID:      t.OrderID,
				RestaurantID: t.RestaurantID,
				CustomerID:   t.CustomerID,
				TotalAmount:  t.TotalAmount.StringFixed(2),
				Status:       t.Status,
				CreatedAt:    t.CreatedAt.Format(time.RFC3339),
			})
		}
		c.JSON(http.StatusOK, responses)
	}
}
