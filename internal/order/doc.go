// Package order は注文サービスを提供する。
//
// 注文の受付では、注文の保存とOrderPlacedイベントの発行を1つのトランザクションで扱い、
// 発行に失敗した注文は保存しない。一覧の読み取りはサーキットブレーカーとリトライで保護し、
// 依存先の障害時は空の一覧と X-Degraded ヘッダーを返す。
package order
