// Package gateway はAPI Gatewayサービスを提供する。
//
// すべてのリクエストはここでBearerトークンを検証され、検証済みの利用者情報を
// X-User-ID / X-User-Roles / X-User-Email として下流サービスへ伝播する。
// パスの接頭辞で転送先のサービスを決める。
package gateway
