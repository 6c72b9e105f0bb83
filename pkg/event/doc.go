// Package event は注文ライフサイクルイベントのエンベロープを定義する。
//
// イベントは発行後に変更されない。スキーマの変更はフィールドの追加のみとし、
// 既存の購読者が新しいフィールドを無視しても処理できるようにする。
package event
