package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/orderhub/pkg/identity"
	"github.com/nao1215/orderhub/pkg/logger"
	"github.com/nao1215/orderhub/pkg/metrics"
	"github.com/nao1215/orderhub/pkg/token"
)

// Outcome はEdgeAuthが1リクエストに対して到達した終端状態。
type Outcome string

const (
	// OutcomeBypassed は認証不要パスとしてそのまま転送したことを表す。
	OutcomeBypassed Outcome = "BYPASSED"
	// OutcomeRejectedNoToken はAuthorizationヘッダーがなかったことを表す。
	OutcomeRejectedNoToken Outcome = "REJECTED_NO_TOKEN"
	// OutcomeRejectedMalformedHeader はAuthorizationヘッダーがBearer形式でなかったことを表す。
	OutcomeRejectedMalformedHeader Outcome = "REJECTED_MALFORMED_HEADER"
	// OutcomeRejectedInvalidToken はトークンの検証に失敗したことを表す。
	OutcomeRejectedInvalidToken Outcome = "REJECTED_INVALID_TOKEN"
	// OutcomeRejectedInternal は想定外の理由で検証できなかったことを表す。
	OutcomeRejectedInternal Outcome = "REJECTED_INTERNAL"
	// OutcomeAccepted は検証に成功し伝播ヘッダーを書き込んだことを表す。
	OutcomeAccepted Outcome = "ACCEPTED"
)

// DefaultAllowList は認証なしで通過させるパス。
var DefaultAllowList = []string{"/auth/login", "/auth/register", "/auth/refresh", "/health"}

// edgeConfig はEdgeAuthの設定。
type edgeConfig struct {
	// allowList は認証不要パス。
	allowList []string
	// boundary は伝播ヘッダーにスタンプを付与する信頼境界。
	boundary identity.Boundary
	// logger は監査ログの出力先。
	logger *slog.Logger
	// metrics は終端状態の記録先。
	metrics *metrics.Metrics
}

// EdgeOption はEdgeAuthの設定を変更する。
type EdgeOption func(*edgeConfig)

// WithAllowList は認証不要パスを置き換える。
// パスは完全一致、または "/" 区切りの前方一致で判定する。
func WithAllowList(paths ...string) EdgeOption {
	return func(c *edgeConfig) {
		c.allowList = paths
	}
}

// WithBoundary は伝播ヘッダーにスタンプを付与する信頼境界を設定する。
func WithBoundary(b identity.Boundary) EdgeOption {
	return func(c *edgeConfig) {
		c.boundary = b
	}
}

// WithAuditLogger は監査ログの出力先を設定する。
func WithAuditLogger(l *slog.Logger) EdgeOption {
	return func(c *edgeConfig) {
		c.logger = l
	}
}

// WithMetrics は終端状態を記録するメトリクスを設定する。
func WithMetrics(m *metrics.Metrics) EdgeOption {
	return func(c *edgeConfig) {
		c.metrics = m
	}
}

// EdgeAuth はゲートウェイでBearerトークンを検証するGinミドルウェアを返す。
//
// クライアントが送った伝播ヘッダーは、認証不要パスを含むすべてのリクエストで除去される。
// 検証に成功した場合のみ、クレームから X-User-ID / X-User-Roles / X-User-Email を書き込む。
// 1リクエストにつき終端状態を1行の監査ログとして出力する。
func EdgeAuth(verifier token.Verifier, opts ...EdgeOption) gin.HandlerFunc {
	cfg := &edgeConfig{
		allowList: DefaultAllowList,
		boundary:  identity.NetworkBoundary{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	cfg.logger = logger.OrDiscard(cfg.logger)

	return func(c *gin.Context) {
		stripPropagationHeaders(c.Request.Header)

		if cfg.allowed(c.Request.URL.Path) {
			cfg.finish(c, OutcomeBypassed, "")
			c.Next()
			return
		}

		if len(c.Request.Header.Values("Authorization")) == 0 {
			cfg.reject(c, OutcomeRejectedNoToken, http.StatusUnauthorized, "Authorizationヘッダーが必要です")
			return
		}

		tokenString, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			cfg.reject(c, OutcomeRejectedMalformedHeader, http.StatusUnauthorized, "Bearer トークン形式が不正です")
			return
		}

		claims, err := safeVerify(verifier, tokenString)
		if err != nil {
			if token.IsVerificationFailure(err) {
				cfg.logger.Debug("トークン検証に失敗", "error", err)
				cfg.reject(c, OutcomeRejectedInvalidToken, http.StatusUnauthorized, "トークンが無効です")
				return
			}
			cfg.logger.Error("トークン検証中に想定外のエラーが発生", "error", err)
			cfg.reject(c, OutcomeRejectedInternal, http.StatusInternalServerError, "内部サーバーエラーが発生しました")
			return
		}
		if claims.IsRefresh() {
			cfg.reject(c, OutcomeRejectedInvalidToken, http.StatusUnauthorized, "トークンが無効です")
			return
		}

		h := c.Request.Header
		h.Set(identity.HeaderUserID, claims.UserID)
		h.Set(identity.HeaderUserRoles, identity.JoinRoles(claims.Roles))
		h.Set(identity.HeaderUserEmail, claims.Email)
		cfg.boundary.Stamp(h)

		principal := identity.NewPrincipal(claims.UserID, claims.Email, claims.Roles)
		c.Request = c.Request.WithContext(identity.WithPrincipal(c.Request.Context(), principal))

		cfg.finish(c, OutcomeAccepted, claims.UserID)
		c.Next()
	}
}

// allowed はパスが認証不要パスに含まれるかを判定する。
// "/auth/login/../../api" のような経路は正規化してから判定する。
func (cfg *edgeConfig) allowed(p string) bool {
	p = path.Clean("/" + p)
	for _, a := range cfg.allowList {
		if p == a || strings.HasPrefix(p, strings.TrimSuffix(a, "/")+"/") {
			return true
		}
	}
	return false
}

// reject はエラーレスポンスを返して処理を中断する。
func (cfg *edgeConfig) reject(c *gin.Context, outcome Outcome, status int, message string) {
	cfg.finish(c, outcome, "")
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// finish は終端状態を監査ログとメトリクスに記録する。
func (cfg *edgeConfig) finish(c *gin.Context, outcome Outcome, userID string) {
	level := slog.LevelInfo
	switch outcome {
	case OutcomeRejectedInternal:
		level = slog.LevelError
	case OutcomeRejectedNoToken, OutcomeRejectedMalformedHeader, OutcomeRejectedInvalidToken:
		level = slog.LevelWarn
	}
	cfg.logger.Log(c.Request.Context(), level, "edge auth",
		"outcome", string(outcome),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"user_id", userID,
	)
	cfg.metrics.EdgeOutcome(string(outcome))
}

// bearerToken は "Bearer <token>" からトークンを取り出す。スキーム名は大文字小文字を区別しない。
func bearerToken(header string) (string, bool) {
	scheme, rest, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" || strings.ContainsAny(rest, " \t") {
		return "", false
	}
	return rest, true
}

// safeVerify はVerifierのパニックをエラーに変換する。
func safeVerify(v token.Verifier, s string) (claims *token.Claims, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims, err = nil, fmt.Errorf("トークン検証でパニックが発生: %v", r)
		}
	}()
	return v.Verify(s)
}

// stripPropagationHeaders はクライアントが送った伝播ヘッダーを除去する。
func stripPropagationHeaders(h http.Header) {
	for _, name := range identity.PropagationHeaders {
		h.Del(name)
	}
}
