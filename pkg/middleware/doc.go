// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// ゲートウェイで使う EdgeAuth はBearerトークンを検証し、検証済みの本人情報を
// 伝播ヘッダーとして書き込む。下流サービスは TrustedHeaders でPrincipalを再構築し、
// RequireRole でロールを要求する。パニックリカバリとCORSも含む。
package middleware
