package identity

import (
	"context"
	"sort"
	"strings"
)

const (
	// HeaderUserID はユーザーIDを伝播するHTTPヘッダー。
	HeaderUserID = "X-User-ID"
	// HeaderUserRoles はカンマ区切りのロールを伝播するHTTPヘッダー。
	HeaderUserRoles = "X-User-Roles"
	// HeaderUserEmail はメールアドレスを伝播するHTTPヘッダー。
	HeaderUserEmail = "X-User-Email"
	// HeaderEdgeSignature はゲートウェイが伝播ヘッダーに付与するHMACスタンプ。
	HeaderEdgeSignature = "X-Edge-Signature"
)

// PropagationHeaders はゲートウェイのみが設定できるヘッダー名の一覧。
// クライアントから送られた同名ヘッダーは常に除去される。
var PropagationHeaders = []string{HeaderUserID, HeaderUserRoles, HeaderUserEmail, HeaderEdgeSignature}

// Role はユーザーのロール。
type Role = string

const (
	// RoleCustomer は注文を行う顧客。
	RoleCustomer Role = "CUSTOMER"
	// RoleRestaurantOwner はレストランを所有する事業者。
	RoleRestaurantOwner Role = "RESTAURANT_OWNER"
	// RoleAdmin は管理者。
	RoleAdmin Role = "ADMIN"
)

// Principal は1リクエストの間だけ有効な、認証済みユーザーの表現。
type Principal struct {
	// UserID はユーザーの一意識別子。
	UserID string
	// Roles はユーザーのロール集合。
	Roles map[Role]struct{}
	// Email はメールアドレス。未設定の場合は空文字。
	Email string
}

// NewPrincipal はロールの一覧からPrincipalを生成する。
func NewPrincipal(userID, email string, roles []string) *Principal {
	set := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return &Principal{UserID: userID, Roles: set, Email: email}
}

// HasRole は指定ロールを持つかを返す。
func (p *Principal) HasRole(role Role) bool {
	if p == nil {
		return false
	}
	_, ok := p.Roles[role]
	return ok
}

// HasAnyRole は指定ロールのいずれかを持つかを返す。
func (p *Principal) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if p.HasRole(r) {
			return true
		}
	}
	return false
}

// RoleList はロールを名前順に並べて返す。
func (p *Principal) RoleList() []string {
	out := make([]string, 0, len(p.Roles))
	for r := range p.Roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// ParseRoles はカンマ区切りのロール文字列を分割する。
// 各要素の前後の空白を除去し、空要素は捨てる。
func ParseRoles(raw string) []string {
	parts := strings.Split(raw, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}

// JoinRoles はロールをカンマ区切りで連結する。
func JoinRoles(roles []string) string {
	return strings.Join(roles, ",")
}

// contextKey はコンテキストキーの型。
type contextKey struct{}

// WithPrincipal はコンテキストにPrincipalを設定する。
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext はコンテキストからPrincipalを取得する。匿名の場合はfalseを返す。
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok && p != nil
}
