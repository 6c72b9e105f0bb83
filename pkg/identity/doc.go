// Package identity はゲートウェイで検証済みの本人情報を下流サービスへ伝播するための型を提供する。
//
// ゲートウェイはトークン検証後に X-User-ID / X-User-Roles / X-User-Email ヘッダーを書き込み、
// 下流サービスはそれらからPrincipalを再構築する。下流サービスは暗号的な検証を行わないため、
// どこまでヘッダーを信頼するかはBoundaryとして明示的に選択する。
package identity
