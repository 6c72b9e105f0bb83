package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/orderhub/pkg/identity"
)

// TrustedHeaders は下流サービスで伝播ヘッダーからPrincipalを再構築するGinミドルウェアを返す。
//
// X-User-ID と X-User-Roles の両方があり、boundaryがヘッダーを信頼した場合のみPrincipalを設定する。
// それ以外のリクエストは匿名のまま次へ進み、RequireRoleで拒否される。
// このミドルウェアはヘッダーの値を暗号的に検証しない。
func TrustedHeaders(boundary identity.Boundary) gin.HandlerFunc {
	if boundary == nil {
		boundary = identity.NetworkBoundary{}
	}
	return func(c *gin.Context) {
		if _, ok := identity.FromContext(c.Request.Context()); ok {
			c.Next()
			return
		}

		h := c.Request.Header
		userID := h.Get(identity.HeaderUserID)
		roles := h.Get(identity.HeaderUserRoles)
		if userID != "" && roles != "" && boundary.Trusted(h) {
			principal := identity.NewPrincipal(userID, h.Get(identity.HeaderUserEmail), identity.ParseRoles(roles))
			c.Request = c.Request.WithContext(identity.WithPrincipal(c.Request.Context(), principal))
		}
		c.Next()
	}
}

// RequireRole は指定ロールのいずれかを要求するGinミドルウェアを返す。
// 匿名のリクエストは401、ロールを持たないPrincipalは403で拒否する。
// ロールを指定しない場合は認証済みであることのみを要求する。
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := identity.FromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "認証が必要です"})
			return
		}
		if len(roles) > 0 && !p.HasAnyRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "この操作を行う権限がありません"})
			return
		}
		c.Next()
	}
}

// GetPrincipal はリクエストのPrincipalを取得する。
func GetPrincipal(c *gin.Context) (*identity.Principal, bool) {
	return identity.FromContext(c.Request.Context())
}

// GetUserID はリクエストのユーザーIDを取得する。匿名の場合は空文字を返す。
func GetUserID(c *gin.Context) string {
	if p, ok := GetPrincipal(c); ok {
		return p.UserID
	}
	return ""
}
