// Package restaurant はレストランサービスを提供する。
//
// レストランの登録と参照に加えて、restaurant-group としてOrderPlacedイベントを購読し、
// 注文ごとに1枚の調理チケットを作成する。
package restaurant
