package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/orderhub/pkg/config"
	"github.com/nao1215/orderhub/pkg/logger"
	"github.com/nao1215/orderhub/pkg/metrics"
)

const (
	// ReasonCircuitOpen はブレーカーが開いていたため縮退したことを表す。
	ReasonCircuitOpen = "circuit_open"
	// ReasonTimeout は呼び出しがタイムアウトしたため縮退したことを表す。
	ReasonTimeout = "timeout"
	// ReasonRetriesExhausted はリトライを使い切ったため縮退したことを表す。
	ReasonRetriesExhausted = "retries_exhausted"
)

// Policy は1つの呼び出し箇所に適用する設定。
type Policy struct {
	// Name は呼び出し箇所の名前。ログとメトリクスのラベルになる。
	Name string
	// Breaker はサーキットブレーカーの設定。
	Breaker BreakerConfig
	// Retry はリトライの設定。
	Retry RetryConfig
	// AttemptTimeout は1回の試行のタイムアウト。0の場合は設定しない。
	AttemptTimeout time.Duration
}

// PolicyFromEnv は環境変数から設定を読み込む。
// BREAKER_* と RETRY_* が全呼び出し箇所の共通値になる。
func PolicyFromEnv(name string) Policy {
	return Policy{
		Name: name,
		Breaker: BreakerConfig{
			WindowSize:           config.Int("BREAKER_WINDOW_SIZE", 10),
			MinimumCalls:         config.Int("BREAKER_MINIMUM_CALLS", 5),
			FailureRateThreshold: config.Float("BREAKER_FAILURE_RATE", 0.5),
			OpenTimeout:          config.Duration("BREAKER_OPEN_TIMEOUT", 10*time.Second),
			HalfOpenMaxCalls:     config.Int("BREAKER_HALF_OPEN_CALLS", 3),
		},
		Retry: RetryConfig{
			MaxAttempts:    config.Int("RETRY_MAX_ATTEMPTS", 3),
			InitialBackoff: config.Duration("RETRY_INITIAL_BACKOFF", 100*time.Millisecond),
			MaxBackoff:     config.Duration("RETRY_MAX_BACKOFF", time.Second),
			JitterFactor:   config.Float("RETRY_JITTER", 0.2),
		},
		AttemptTimeout: config.Duration("CALL_TIMEOUT", 2*time.Second),
	}
}

// Outcome は保護された呼び出しの結果を呼び出し元に伝える。
type Outcome struct {
	// Degraded はフォールバックの結果を返したかを表す。
	Degraded bool
	// Reason は縮退した理由。縮退していない場合は空文字。
	Reason string
	// Attempts は実行した試行回数。ブレーカーが開いていた場合は0。
	Attempts int
	// Cause は縮退の原因となったエラー。
	Cause error
}

// Wrapper は1つの呼び出し箇所のブレーカーとリトライをまとめたもの。
// 同じ呼び出し箇所からの並行呼び出しで共有する。
type Wrapper struct {
	// policy は設定。
	policy Policy
	// breaker はサーキットブレーカー。
	breaker *Breaker
	// logger はログの出力先。
	logger *slog.Logger
	// metrics はブレーカーの状態と縮退の記録先。
	metrics *metrics.Metrics
}

// Option はWrapperの設定を変更する。
type Option func(*Wrapper)

// WithLogger はログの出力先を設定する。
func WithLogger(l *slog.Logger) Option {
	return func(w *Wrapper) {
		w.logger = l
	}
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Wrapper) {
		w.metrics = m
	}
}

// withClock はブレーカーの現在時刻の取得関数を差し替える。
func withClock(now func() time.Time) Option {
	return func(w *Wrapper) {
		w.breaker.now = now
	}
}

// New は新しいWrapperを生成する。
func New(policy Policy, opts ...Option) *Wrapper {
	w := &Wrapper{
		policy:  policy,
		breaker: NewBreaker(policy.Breaker),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logger.OrDiscard(w.logger)
	w.breaker.onStateChange = func(from, to State) {
		w.logger.Warn("サーキットブレーカーの状態が変化しました",
			"name", policy.Name, "from", from.String(), "to", to.String())
		w.metrics.BreakerState(policy.Name, int(to))
	}
	w.metrics.BreakerState(policy.Name, int(StateClosed))
	return w
}

// State はブレーカーの現在の状態を返す。
func (w *Wrapper) State() State {
	return w.breaker.State()
}

// Call はopをブレーカーとリトライで保護して実行する。
//
// opが成功すればその値を返す。ブレーカーが開いている、リトライを使い切った、
// またはタイムアウトした場合はfallbackの値を返し、Outcome.Degradedをtrueにする。
// opがPermanentなエラーを返した場合はラップを外したエラーをそのまま返す。
// 呼び出し元のctxが終了した場合はctx.Err()を返し、ブレーカーの失敗率には含めない。
func Call[T any](ctx context.Context, w *Wrapper, op func(ctx context.Context) (T, error), fallback func(cause error) T) (T, Outcome, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, Outcome{}, err
	}

	done, err := w.breaker.Allow()
	if err != nil {
		out := Outcome{Degraded: true, Reason: ReasonCircuitOpen, Cause: err}
		return degrade(w, fallback, out), out, nil
	}

	var result T
	attempts, err := Retry(ctx, w.policy.Retry, func(ctx context.Context) error {
		actx, cancel := w.attemptContext(ctx)
		defer cancel()
		v, err := op(actx)
		if err == nil {
			result = v
		}
		return err
	})

	// 呼び出し元の中断は依存先の障害ではないため、ブレーカーには数えず縮退もしない
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		done(Permanent(ctxErr))
		return zero, Outcome{Attempts: attempts}, ctxErr
	}
	done(err)

	switch {
	case err == nil:
		return result, Outcome{Attempts: attempts}, nil
	case IsPermanent(err):
		return zero, Outcome{Attempts: attempts}, unwrapPermanent(err)
	}

	out := Outcome{Degraded: true, Reason: ReasonRetriesExhausted, Attempts: attempts, Cause: err}
	if errors.Is(err, context.DeadlineExceeded) {
		out.Reason = ReasonTimeout
	}
	return degrade(w, fallback, out), out, nil
}

// attemptContext は1回の試行用のコンテキストを返す。
func (w *Wrapper) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.policy.AttemptTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, w.policy.AttemptTimeout)
}

// degrade は縮退をログとメトリクスに記録してfallbackの値を返す。
func degrade[T any](w *Wrapper, fallback func(error) T, out Outcome) T {
	w.logger.Warn("依存先の呼び出しに失敗したため縮退応答を返します",
		"name", w.policy.Name,
		"reason", out.Reason,
		"attempts", out.Attempts,
		"error", out.Cause,
	)
	w.metrics.Fallback(w.policy.Name, out.Reason)
	if fallback == nil {
		var zero T
		return zero
	}
	return fallback(out.Cause)
}
