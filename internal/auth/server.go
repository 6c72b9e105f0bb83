package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/orderhub/pkg/httpserver"
	"github.com/nao1215/orderhub/pkg/identity"
	"github.com/nao1215/orderhub/pkg/logger"
	"github.com/nao1215/orderhub/pkg/metrics"
	"github.com/nao1215/orderhub/pkg/middleware"
	"github.com/nao1215/orderhub/pkg/migration"
	"github.com/nao1215/orderhub/pkg/token"
	"golang.org/x/crypto/bcrypt"
)

// Server は認証サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteデータベース接続。
	db *sql.DB
	// users はusersテーブルへのクエリ実行オブジェクト。
	users *userStore
	// codec はトークンの発行と検証を行う。
	codec *token.Codec
	// accessTTL はアクセストークンの有効期間。
	accessTTL time.Duration
	// refreshTTL はリフレッシュトークンの有効期間。
	refreshTTL time.Duration
	// bcryptCost はパスワードハッシュのコスト。
	bcryptCost int
	// boundary は伝播ヘッダーを信頼するかを判定する。
	boundary identity.Boundary
	// logger はログの出力先。
	logger *slog.Logger
	// metrics はPrometheusメトリクス。
	metrics *metrics.Metrics
}

// NewServer は新しい認証サーバーを生成する。
// 署名鍵が不正な場合は token.ErrConfiguration をラップしたエラーを返す。
func NewServer(ctx context.Context, cfg Config, l *slog.Logger) (*Server, error) {
	l = logger.OrDiscard(l)

	codec, err := token.NewCodec(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("トークンコーデックの初期化に失敗: %w", err)
	}

	db, err := migration.Open(ctx, cfg.DatabasePath, migrations, migrationsDir, l)
	if err != nil {
		return nil, fmt.Errorf("データベースの初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery(l))
	router.Use(gin.Logger())

	s := &Server{
		router:     router,
		port:       cfg.Port,
		db:         db,
		users:      &userStore{db: db},
		codec:      codec,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		bcryptCost: bcrypt.DefaultCost,
		boundary:   identity.NewBoundary(cfg.EdgeSecret),
		logger:     l,
		metrics:    metrics.New("auth"),
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
	// 認証エンドポイント（ゲートウェイの許可リスト対象）
	auth := s.router.Group("/auth")
	{
		auth.POST("/register", s.handleRegister())
		auth.POST("/login", s.handleLogin())
		auth.POST("/refresh", s.handleRefresh())
	}

	api := s.router.Group("/api")
	api.Use(middleware.TrustedHeaders(s.boundary))
	{
		api.GET("/users/me", middleware.RequireRole(), s.handleMe())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "auth"})
	})
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

// validRoles は登録時に指定できるロール。
var validRoles = map[string]bool{
	identity.RoleCustomer:        true,
	identity.RoleRestaurantOwner: true,
	identity.RoleAdmin:           true,
}

// registerRequest はユーザー登録リクエストのJSON構造。
type registerRequest struct {
	// Username はログインに使うユーザー名。
	Username string `json:"username" binding:"required"`
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password は平文のパスワード。
	Password string `json:"password" binding:"required,min=8"`
	// Role はロール。省略時はCUSTOMER。
	Role string `json:"role"`
}

// userResponse はユーザーのJSONレスポンス構造。
type userResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// toUserResponse はユーザーをJSONレスポンスに変換する。パスワードハッシュは含めない。
func toUserResponse(u user) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

// handleRegister はユーザーを登録するハンドラ。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}
		if req.Role == "" {
			req.Role = identity.RoleCustomer
		}
		if !validRoles[req.Role] {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("不明なロールです: %s", req.Role)})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー登録に失敗しました"})
			s.logger.Error("パスワードのハッシュ化に失敗", "error", err)
			return
		}

		u := user{
			ID:           uuid.New().String(),
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: string(hash),
			Role:         req.Role,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.users.Create(c.Request.Context(), u); err != nil {
			if errors.Is(err, ErrDuplicateUser) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー登録に失敗しました"})
			s.logger.Error("ユーザー登録エラー", "error", err)
			return
		}

		s.logger.Info("ユーザーを登録しました", "user_id", u.ID, "role", u.Role)
		c.JSON(http.StatusCreated, toUserResponse(u))
	}
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// tokenResponse はトークン発行のJSONレスポンス構造。
type tokenResponse struct {
	// AccessToken はゲートウェイに提示するトークン。
	AccessToken string `json:"access_token"`
	// RefreshToken はアクセストークンの再発行に使うトークン。
	RefreshToken string `json:"refresh_token"`
	// TokenType は常に "Bearer"。
	TokenType string `json:"token_type"`
	// ExpiresIn はアクセストークンの有効期間（秒）。
	ExpiresIn int64 `json:"expires_in"`
}

// handleLogin はユーザー名とパスワードを検証してトークンを発行するハンドラ。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		u, err := s.users.FindByUsername(c.Request.Context(), req.Username)
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ログインに失敗しました"})
			s.logger.Error("ユーザー取得エラー", "error", err)
			return
		}
		if err != nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザー名またはパスワードが正しくありません"})
			return
		}

		refresh := s.codec.NewClaims(u.Username, u.ID, u.Email, []string{u.Role}, s.refreshTTL)
		refresh.ID = uuid.New().String()
		refresh.Use = token.UseRefresh
		refreshToken, err := s.codec.Issue(refresh)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの発行に失敗しました"})
			s.logger.Error("リフレッシュトークン発行エラー", "error", err)
			return
		}

		resp, err := s.issueAccess(u, refreshToken)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの発行に失敗しました"})
			s.logger.Error("アクセストークン発行エラー", "error", err)
			return
		}

		s.logger.Info("ログインしました", "user_id", u.ID)
		c.JSON(http.StatusOK, resp)
	}
}

// refreshRequest はアクセストークン再発行リクエストのJSON構造。
type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// handleRefresh はリフレッシュトークンからアクセストークンを再発行するハンドラ。
// ロールは再発行時点のユーザー情報から取り直す。
func (s *Server) handleRefresh() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		claims, err := s.codec.Verify(req.RefreshToken)
		if err != nil || !claims.IsRefresh() {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "リフレッシュトークンが無効です"})
			return
		}

		u, err := s.users.FindByID(c.Request.Context(), claims.UserID)
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "リフレッシュトークンが無効です"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの再発行に失敗しました"})
			s.logger.Error("ユーザー取得エラー", "error", err)
			return
		}

		resp, err := s.issueAccess(u, req.RefreshToken)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの再発行に失敗しました"})
			s.logger.Error("アクセストークン発行エラー", "error", err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// issueAccess はユーザーのアクセストークンを発行してレスポンスを組み立てる。
func (s *Server) issueAccess(u user, refreshToken string) (tokenResponse, error) {
	access, err := s.codec.Issue(s.codec.NewClaims(u.Username, u.ID, u.Email, []string{u.Role}, s.accessTTL))
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

// handleMe は認証済みユーザー自身の情報を返すハンドラ。
func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := s.users.FindByID(c.Request.Context(), middleware.GetUserID(c))
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー情報の取得に失敗しました"})
			s.logger.Error("ユーザー取得エラー", "error", err)
			return
		}
		c.JSON(http.StatusOK, toUserResponse(u))
	}
}
