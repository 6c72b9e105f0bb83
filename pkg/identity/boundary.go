package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
)

// Boundary は下流サービスが伝播ヘッダーを信頼してよいかを判定する。
//
// 下流サービスはヘッダーの値を暗号的に検証しない。ゲートウェイを経由しない経路が
// 存在し得る配置では SharedSecretBoundary を選び、ネットワーク構成で経路が
// 閉じている配置でのみ NetworkBoundary を選ぶ。
type Boundary interface {
	// Stamp はゲートウェイが伝播ヘッダーを書き込んだ後に呼ばれ、必要なら証跡を付与する。
	Stamp(h http.Header)
	// Trusted は下流サービスがヘッダーを受け入れてよいかを返す。
	Trusted(h http.Header) bool
}

// NetworkBoundary はネットワーク構成のみで信頼境界を保証する。
// 下流サービスへ到達できるのはゲートウェイだけであることが前提となる。
type NetworkBoundary struct{}

// Stamp は何もしない。
func (NetworkBoundary) Stamp(http.Header) {}

// Trusted は常にtrueを返す。
func (NetworkBoundary) Trusted(http.Header) bool { return true }

// SharedSecretBoundary はゲートウェイと下流サービスで共有する鍵によるHMACスタンプで信頼境界を保証する。
type SharedSecretBoundary struct {
	// secret はHMACの鍵。
	secret []byte
}

// NewSharedSecretBoundary は共有鍵からSharedSecretBoundaryを生成する。
func NewSharedSecretBoundary(secret string) *SharedSecretBoundary {
	return &SharedSecretBoundary{secret: []byte(secret)}
}

// Stamp は伝播ヘッダーの値からHMACを計算し X-Edge-Signature に設定する。
func (b *SharedSecretBoundary) Stamp(h http.Header) {
	h.Set(HeaderEdgeSignature, b.sign(h))
}

// Trusted は X-Edge-Signature が伝播ヘッダーの値と一致する場合にtrueを返す。
func (b *SharedSecretBoundary) Trusted(h http.Header) bool {
	got := h.Get(HeaderEdgeSignature)
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(got), []byte(b.sign(h)))
}

// sign はユーザーID、ロール、メールアドレスの順に各値を「長さ:値」で連結し、
// そのHMAC-SHA256を16進文字列で返す。区切り文字を含む値でも連結結果は一意になる。
func (b *SharedSecretBoundary) sign(h http.Header) string {
	mac := hmac.New(sha256.New, b.secret)
	for _, name := range []string{HeaderUserID, HeaderUserRoles, HeaderUserEmail} {
		v := h.Get(name)
		fmt.Fprintf(mac, "%d:%s", len(v), v)
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// NewBoundary は共有鍵が空ならNetworkBoundary、そうでなければSharedSecretBoundaryを返す。
func NewBoundary(edgeSecret string) Boundary {
	if edgeSecret == "" {
		return NetworkBoundary{}
	}
	return NewSharedSecretBoundary(edgeSecret)
}
