package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/orderhub/pkg/httpclient"
	"github.com/nao1215/orderhub/pkg/httpserver"
	"github.com/nao1215/orderhub/pkg/identity"
	"github.com/nao1215/orderhub/pkg/logger"
	"github.com/nao1215/orderhub/pkg/metrics"
	"github.com/nao1215/orderhub/pkg/middleware"
	"github.com/nao1215/orderhub/pkg/token"
)

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// routes は接頭辞と転送先の対応。長い接頭辞が先に並ぶ。
	routes []route
	// logger はログの出力先。
	logger *slog.Logger
	// metrics はPrometheusメトリクス。
	metrics *metrics.Metrics
}

// route は1つの転送先。
type route struct {
	// prefix はパスの接頭辞。
	prefix string
	// upstream は転送先サービスへの通信クライアント。
	upstream *httpclient.Client
}

// NewServer は新しいGatewayサーバーを生成する。
// 署名鍵が不正な場合は token.ErrConfiguration をラップしたエラーを返す。
func NewServer(cfg Config, m *metrics.Metrics, l *slog.Logger) (*Server, error) {
	l = logger.OrDiscard(l)
	if m == nil {
		m = metrics.New("gateway")
	}

	codec, err := token.NewCodec(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("トークンコーデックの初期化に失敗: %w", err)
	}

	var opts []httpclient.Option
	if cfg.ProxyTimeout > 0 {
		opts = append(opts, httpclient.WithTimeout(cfg.ProxyTimeout))
	}
	auth := httpclient.New(cfg.AuthURL, opts...)

	router := gin.New()
	router.Use(middleware.Recovery(l))
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{cfg.FrontendURL}))
	router.Use(middleware.EdgeAuth(codec,
		middleware.WithAllowList(append(slices.Clone(middleware.DefaultAllowList), "/metrics")...),
		middleware.WithBoundary(identity.NewBoundary(cfg.EdgeSecret)),
		middleware.WithAuditLogger(l),
		middleware.WithMetrics(m),
	))

	s := &Server{
		router: router,
		port:   cfg.Port,
		routes: []route{
			{prefix: "/api/notifications", upstream: httpclient.New(cfg.NotificationURL, opts...)},
			{prefix: "/api/restaurants", upstream: httpclient.New(cfg.RestaurantURL, opts...)},
			{prefix: "/api/orders", upstream: httpclient.New(cfg.OrderURL, opts...)},
			{prefix: "/api/users", upstream: auth},
			{prefix: "/auth", upstream: auth},
		},
		logger:  l,
		metrics: m,
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

// setupRoutes はAPIルーティングを設定する。
// ゲートウェイ自身のエンドポイント以外はすべて下流サービスへ転送する。
func (s *Server) setupRoutes() {
	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	s.router.NoRoute(s.handleProxy())
}

// match はパスに対応する転送先を返す。
func (s *Server) match(p string) (route, bool) {
	p = path.Clean("/" + p)
	for _, r := range s.routes {
		if p == r.prefix || strings.HasPrefix(p, r.prefix+"/") {
			return r, true
		}
	}
	return route{}, false
}

// handleProxy はリクエストを下流サービスへ転送するハンドラを返す。
// 伝播ヘッダーはEdgeAuthが書き込んだ値だけが転送される。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := s.match(c.Request.URL.Path)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "エンドポイントが見つかりません"})
			return
		}

		resp, err := r.upstream.Forward(c.Request.Context(), c.Request, c.Request.URL.Path, identity.PropagationHeaders...)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "内部サービスとの通信に失敗しました"})
			s.logger.Error("プロキシエラー", "upstream", r.upstream.BaseURL(), "path", c.Request.URL.Path, "error", err)
			return
		}
		defer resp.Body.Close()

		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		extra := map[string]string{}
		if v := resp.Header.Get(middleware.HeaderDegraded); v != "" {
			extra[middleware.HeaderDegraded] = v
		}
		c.DataFromReader(resp.StatusCode, resp.ContentLength, contentType, resp.Body, extra)
	}
}
