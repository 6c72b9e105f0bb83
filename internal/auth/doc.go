// Package auth は認証サービスを提供する。
//
// ユーザー登録とログインを受け付け、ロールを含むアクセストークンとリフレッシュトークンを発行する。
// トークンの検証はゲートウェイが行い、このサービスの /api 配下は伝播ヘッダーを信頼する。
package auth
