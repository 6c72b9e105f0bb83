// Package bus はイベントの発行と購読を提供する。
//
// 購読はコンシューマーグループ単位で行い、グループごとに独立したオフセットを持つ。
// 1つのグループの失敗や遅延は他のグループや発行側を止めない。
// 配信は少なくとも1回（at-least-once）であり、同じキー（注文ID）のイベントは
// 発行順に配信される。購読側の副作用は Idempotent で注文IDごとに1回に抑える。
//
// トランスポートはKafka（KafkaPublisher / KafkaConsumer）と、単一プロセス用の MemoryBus がある。
package bus
