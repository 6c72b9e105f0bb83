// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// ゲートウェイから下流サービスへのリクエスト転送と、
// メール中継サービスへのJSON送信など、サービス間の通信パターンを統一する。
// 下流サービスが返した非2xx応答は StatusError として返す。
package httpclient
