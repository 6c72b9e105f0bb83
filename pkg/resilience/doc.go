// Package resilience は読み取り経路を保護するサーキットブレーカー、リトライ、フォールバックを提供する。
//
// 合成順序は CircuitBreaker → Retry → 呼び出し であり、ブレーカーはリトライを含む
// 1回の呼び出し全体を1件の結果として記録する。呼び出しが最終的に失敗した場合は
// フォールバックの結果を返し、Outcome.Degraded で縮退したことを呼び出し元に伝える。
// Permanent でラップされたエラーはリトライもフォールバックもせずにそのまま返す。
package resilience
