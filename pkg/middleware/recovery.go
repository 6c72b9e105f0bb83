package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/orderhub/pkg/identity"
	"github.com/nao1215/orderhub/pkg/logger"
)

// Recovery はハンドラーのパニックを500応答に変換するGinミドルウェアを返す。
// 認証済みのリクエストではログにユーザーIDを含める。
// http.ErrAbortHandler は接続の中断を意図したパニックのため、そのまま再送出する。
func Recovery(l *slog.Logger) gin.HandlerFunc {
	l = logger.OrDiscard(l)
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}

			attrs := []any{"method", c.Request.Method, "path", c.Request.URL.Path, "panic", r}
			if p, ok := identity.FromContext(c.Request.Context()); ok {
				attrs = append(attrs, "user_id", p.UserID)
			}
			l.Error("パニックから回復しました", attrs...)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
		}()
		c.Next()
	}
}
