// Package notification は通知サービスを提供する。
//
// email-group としてOrderPlacedイベントを購読し、注文確認メールを送信して通知を記録する。
// 利用者は自分宛ての通知の一覧取得と既読化ができる。
package notification
