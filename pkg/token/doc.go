// Package token は署名付き本人確認トークンの発行と検証を提供する。
//
// トークンはJWTコンパクト形式（header.payload.signature）でHS256署名される。
// 署名鍵はBase64文字列で受け取り、Codec生成時に一度だけデコードする。
// 検証は署名の定数時間比較をクレームのデコードより先に行う。
package token
