package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderDegraded は読み取りAPIが縮退応答を返したことを示すレスポンスヘッダー。
const HeaderDegraded = "X-Degraded"

// corsAllowHeaders はブラウザに送信を許可するリクエストヘッダー。
// 伝播ヘッダーはゲートウェイだけが設定するため含めない。
var corsAllowHeaders = strings.Join([]string{"Authorization", "Content-Type"}, ", ")

// CORS は指定されたオリジンからのクロスオリジンリクエストを許可するGinミドルウェアを返す。
// ゲートウェイでのみ使用する。空文字のオリジンは無視する。
// プリフライト（OPTIONS）はオリジンにかかわらず204で打ち切り、EdgeAuthまで到達させない。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimRight(o, "/"); o != "" {
			origins[o] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := origins[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Expose-Headers", HeaderDegraded)
				h.Set("Access-Control-Max-Age", "86400")
				h.Add("Vary", "Origin")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
