package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/orderhub/pkg/identity"
)

// newTrustedRouter は TrustedHeaders と RequireRole を適用したルーターを生成する。
func newTrustedRouter(boundary identity.Boundary, roles ...string) *gin.Engine {
	router := gin.New()
	router.Use(TrustedHeaders(boundary))
	router.GET("/resource", RequireRole(roles...), func(c *gin.Context) {
		p, _ := GetPrincipal(c)
		c.JSON(http.StatusOK, gin.H{
			"user_id": p.UserID,
			"roles":   p.RoleList(),
			"email":   p.Email,
		})
	})
	return router
}

// TestTrustedHeaders は伝播ヘッダーからのPrincipal再構築を検証する。
func TestTrustedHeaders(t *testing.T) {
	t.Parallel()

	t.Run("ヘッダーからPrincipalが再構築されること", func(t *testing.T) {
		t.Parallel()

		router := newTrustedRouter(nil, identity.RoleCustomer)
		req := httptest.NewRequest(http.MethodGet, "/resource", nil)
		req.Header.Set(identity.HeaderUserID, "42")
		req.Header.Set(identity.HeaderUserRoles, " CUSTOMER ,,ADMIN")
		req.Header.Set(identity.HeaderUserEmail, "alice@example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var body struct {
			UserID string   `json:"user_id"`
			Roles  []string `json:"roles"`
			Email  string   `json:"email"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body.UserID != "42" {
			t.Errorf("user_id = %q, want %q", body.UserID, "42")
		}
		if strings.Join(body.Roles, ",") != "ADMIN,CUSTOMER" {
			t.Errorf("roles = %v, want [ADMIN CUSTOMER]", body.Roles)
		}
		if body.Email != "alice@example.com" {
			t.Errorf("email = %q, want %q", body.Email, "alice@example.com")
		}
	})

	t.Run("ヘッダーがない場合は匿名として401になること", func(t *testing.T) {
		t.Parallel()

		router := newTrustedRouter(nil, identity.RoleCustomer)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/resource", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("ロールのヘッダーがない場合は匿名として401になること", func(t *testing.T) {
		t.Parallel()

		router := newTrustedRouter(nil)
		req := httptest.NewRequest(http.MethodGet, "/resource", nil)
		req.Header.Set(identity.HeaderUserID, "42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("必要なロールを持たない場合は403になること", func(t *testing.T) {
		t.Parallel()

		router := newTrustedRouter(nil, identity.RoleRestaurantOwner)
		req := httptest.NewRequest(http.MethodGet, "/resource", nil)
		req.Header.Set(identity.HeaderUserID, "42")
		req.Header.Set(identity.HeaderUserRoles, "CUSTOMER")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("共有鍵の境界ではスタンプのないヘッダーが匿名になること", func(t *testing.T) {
		t.Parallel()

		router := newTrustedRouter(identity.NewSharedSecretBoundary("edge-secret"))
		req := httptest.NewRequest(http.MethodGet, "/resource", nil)
		req.Header.Set(identity.HeaderUserID, "42")
		req.Header.Set(identity.HeaderUserRoles, "ADMIN")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestEdgeToDownstream はゲートウェイのヘッダー書き換えを下流が受け入れることを検証する。
func TestEdgeToDownstream(t *testing.T) {
	t.Parallel()

	boundary := identity.NewSharedSecretBoundary("edge-secret")
	c := newTestCodec(t, testNow)
	tok := issue(t, c, c.NewClaims("alice", "42", "alice@example.com", []string{"CUSTOMER"}, time.Hour))

	downstream := newTrustedRouter(boundary, identity.RoleCustomer)
	gateway := gin.New()
	gateway.Use(EdgeAuth(c, WithBoundary(boundary)))
	gateway.NoRoute(func(c *gin.Context) {
		req := httptest.NewRequest(c.Request.Method, "/resource", nil)
		req.Header = c.Request.Header.Clone()
		w := httptest.NewRecorder()
		downstream.ServeHTTP(w, req)
		c.Data(w.Code, "application/json", w.Body.Bytes())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/orders/myorder", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set(identity.HeaderUserRoles, "ADMIN")
	w := httptest.NewRecorder()
	gateway.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"roles":["CUSTOMER"]`) {
		t.Errorf("下流のPrincipalが期待と異なる: %s", w.Body.String())
	}
}
