package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeyBytes はHS256署名鍵の最小バイト長。
const MinKeyBytes = 32

// Verifier はトークン文字列を検証してクレームを返す。
// EdgeAuthミドルウェアはこのインターフェースに依存する。
type Verifier interface {
	Verify(token string) (*Claims, error)
}

// Codec はトークンの発行と検証を行う。
// 生成後は読み取り専用の鍵のみを保持するため、並行して安全に使用できる。
type Codec struct {
	// key はBase64デコード済みの署名鍵。
	key []byte
	// issuer はトークンのiss。
	issuer string
	// now は現在時刻を返す関数。テストで差し替える。
	now func() time.Time
	// parser はクレームの検証に使うJWTパーサー。
	parser *jwt.Parser
}

// Option はCodecの設定を変更する。
type Option func(*Codec)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// WithIssuer はトークンのissを設定する。
func WithIssuer(issuer string) Option {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

// NewCodec はBase64エンコードされた秘密鍵からCodecを生成する。
// 鍵が空、Base64として不正、または32バイト未満の場合はErrConfigurationを返す。
func NewCodec(encodedSecret string, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(encodedSecret) == "" {
		return nil, fmt.Errorf("%w: 秘密鍵が設定されていません", ErrConfiguration)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encodedSecret))
	if err != nil {
		return nil, fmt.Errorf("%w: 秘密鍵のBase64デコードに失敗: %v", ErrConfiguration, err)
	}
	if len(key) < MinKeyBytes {
		return nil, fmt.Errorf("%w: 秘密鍵は%dバイト以上必要です（%dバイト）", ErrConfiguration, MinKeyBytes, len(key))
	}

	c := &Codec{
		key:    key,
		issuer: "orderhub-auth",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	return c, nil
}

// NewClaims は現在時刻を発行日時、ttl後を有効期限とするアクセストークン用のクレームを生成する。
func (c *Codec) NewClaims(subject, userID, email string, roles []string, ttl time.Duration) Claims {
	now := c.now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  numericDate(now),
			ExpiresAt: numericDate(now.Add(ttl)),
		},
		UserID: userID,
		Roles:  roles,
		Email:  email,
		Use:    UseAccess,
	}
}

// Issue はクレームをHS256で署名したトークン文字列を返す。
// クレームが不変条件を満たさない場合はErrInvalidClaimsを返す。
func (c *Codec) Issue(claims Claims) (string, error) {
	if err := claims.validate(); err != nil {
		return "", err
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、クレームを返す。
// 結果はトークン、鍵、現在時刻のみで決まる。
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, ErrMalformed
	}

	alg, err := headerAlgorithm(parts[0])
	if err != nil {
		return nil, err
	}
	if alg != jwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
	}

	if !c.signatureMatches(parts[0]+"."+parts[1], parts[2]) {
		return nil, ErrSignatureMismatch
	}

	claims := &Claims{}
	if _, err := c.parser.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return c.key, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(claims.Roles) == 0 {
		return nil, fmt.Errorf("%w: ロールが含まれていません", ErrMalformed)
	}
	return claims, nil
}

// signatureMatches は署名対象からHMAC-SHA256を再計算し、定数時間で比較する。
// エンコード済み文字列同士で比較するため、末尾ビットの揺れた署名も一致しない。
func (c *Codec) signatureMatches(signingInput, signature string) bool {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(signingInput))
	expected := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

// headerAlgorithm はJOSEヘッダーからalgを取り出す。
func headerAlgorithm(segment string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return "", fmt.Errorf("%w: ヘッダーのデコードに失敗", ErrMalformed)
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return "", fmt.Errorf("%w: ヘッダーのパースに失敗", ErrMalformed)
	}
	return header.Alg, nil
}
