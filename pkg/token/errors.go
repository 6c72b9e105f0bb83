package token

import "errors"

var (
	// ErrMalformed はトークンの構造またはクレームが解釈できないことを表す。
	ErrMalformed = errors.New("トークンの形式が不正です")
	// ErrSignatureMismatch は署名が鍵と一致しないことを表す。
	ErrSignatureMismatch = errors.New("トークンの署名が一致しません")
	// ErrExpired はトークンの有効期限が切れていることを表す。
	ErrExpired = errors.New("トークンの有効期限が切れています")
	// ErrUnsupportedAlgorithm はHS256以外の署名アルゴリズムが指定されたことを表す。
	ErrUnsupportedAlgorithm = errors.New("サポートされていない署名アルゴリズムです")
	// ErrInvalidClaims は発行しようとしたクレームが不変条件を満たさないことを表す。
	ErrInvalidClaims = errors.New("クレームが不正です")
	// ErrConfiguration は署名鍵の設定が不正であることを表す。起動時に致命的エラーとして扱う。
	ErrConfiguration = errors.New("トークン署名鍵の設定が不正です")
)

// IsVerificationFailure はerrがVerifyの返す既知の検証失敗であるかを判定する。
// 既知の失敗は401、それ以外は500として扱われる。
func IsVerificationFailure(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrSignatureMismatch) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrUnsupportedAlgorithm)
}
