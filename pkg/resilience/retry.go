package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryConfig はリトライの設定。
type RetryConfig struct {
	// MaxAttempts は最初の呼び出しを含む最大試行回数。
	MaxAttempts int
	// InitialBackoff は1回目のリトライまでの待機時間。以降は2倍ずつ増える。
	InitialBackoff time.Duration
	// MaxBackoff は待機時間の上限。
	MaxBackoff time.Duration
	// JitterFactor は待機時間に加えるゆらぎの割合（0〜1）。
	JitterFactor float64
}

// withDefaults は未設定の項目に既定値を設定したコピーを返す。
func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		c.JitterFactor = 0.2
	}
	return c
}

// Retry はfnが成功するか、Permanentなエラーを返すか、試行回数を使い切るまで
// 指数バックオフで繰り返す。戻り値は実行した試行回数と最後のエラー。
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) (int, error) {
	cfg = cfg.withDefaults()

	backoff := cfg.InitialBackoff
	var err error
	attempt := 0
	for attempt < cfg.MaxAttempts {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				err = ctxErr
			}
			return attempt, err
		}

		attempt++
		if err = fn(ctx); err == nil || IsPermanent(err) {
			return attempt, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := min(applyJitter(backoff, cfg.JitterFactor), cfg.MaxBackoff)
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, errors.Join(err, ctx.Err())
		case <-timer.C:
		}

		backoff = min(backoff*2, cfg.MaxBackoff)
	}
	return attempt, err
}

// applyJitter は待機時間に ±factor のゆらぎを加える。
func applyJitter(d time.Duration, factor float64) time.Duration {
	delta := int64(float64(d) * factor)
	if delta <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(2*delta)-delta)
}
