package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Use はトークンの用途を表す。
type Use string

const (
	// UseAccess はAPI呼び出しに使うアクセストークン。
	UseAccess Use = "access"
	// UseRefresh はアクセストークンの再発行にのみ使うリフレッシュトークン。
	UseRefresh Use = "refresh"
)

// Claims はトークンにエンコードされる本人確認情報（ClaimSet）。
// 一度エンコードされたら変更されない。
type Claims struct {
	jwt.RegisteredClaims
	// UserID はユーザーの一意識別子。
	UserID string `json:"userId"`
	// Roles はユーザーのロール。順序を保った重複のない集合。
	Roles []string `json:"roles"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// Use はトークンの用途。空の場合はアクセストークンとして扱う。
	Use Use `json:"token_use,omitempty"`
}

// IsRefresh はリフレッシュトークンであるかを返す。
func (c *Claims) IsRefresh() bool {
	return c.Use == UseRefresh
}

// validate は発行前の不変条件を検証し、ロールの重複を取り除く。
func (c *Claims) validate() error {
	if c.Subject == "" {
		return fmt.Errorf("%w: subjectが空です", ErrInvalidClaims)
	}
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return fmt.Errorf("%w: 発行日時と有効期限が必要です", ErrInvalidClaims)
	}
	if !c.ExpiresAt.After(c.IssuedAt.Time) {
		return fmt.Errorf("%w: 有効期限は発行日時より後である必要があります", ErrInvalidClaims)
	}
	c.Roles = uniqueRoles(c.Roles)
	if len(c.Roles) == 0 {
		return fmt.Errorf("%w: ロールが空です", ErrInvalidClaims)
	}
	return nil
}

// uniqueRoles は出現順を保ったまま空要素と重複を取り除く。
func uniqueRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// numericDate はtimeをJWTの数値日時に変換する。
func numericDate(t time.Time) *jwt.NumericDate {
	return jwt.NewNumericDate(t)
}
