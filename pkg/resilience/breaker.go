package resilience

import (
	"sync"
	"time"
)

// State はサーキットブレーカーの状態。
type State int

const (
	// StateClosed は呼び出しを通し、結果を記録している状態。
	StateClosed State = iota
	// StateHalfOpen は限られた数の試行呼び出しだけを通す状態。
	StateHalfOpen
	// StateOpen は呼び出しを行わずに即座に失敗させる状態。
	StateOpen
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	}
	return "UNKNOWN"
}

// BreakerConfig はサーキットブレーカーの設定。
type BreakerConfig struct {
	// WindowSize は失敗率を計算する直近の呼び出し数。
	WindowSize int
	// MinimumCalls は失敗率を評価し始めるまでに必要な呼び出し数。
	MinimumCalls int
	// FailureRateThreshold はOPENに遷移する失敗率（0〜1）。この値以上で遷移する。
	FailureRateThreshold float64
	// OpenTimeout はOPENからHALF_OPENに遷移するまでの待機時間。
	OpenTimeout time.Duration
	// HalfOpenMaxCalls はHALF_OPENで同時に許可する試行呼び出し数。
	// この数の試行がすべて成功するとCLOSEDに戻る。
	HalfOpenMaxCalls int
}

// withDefaults は未設定の項目に既定値を設定したコピーを返す。
func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.WindowSize <= 0 {
		c.WindowSize = 10
	}
	if c.MinimumCalls <= 0 {
		c.MinimumCalls = 5
	}
	if c.MinimumCalls > c.WindowSize {
		c.MinimumCalls = c.WindowSize
	}
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1 {
		c.FailureRateThreshold = 0.5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 10 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 3
	}
	return c
}

// Breaker は呼び出し回数ベースのスライディングウィンドウで失敗率を計算するサーキットブレーカー。
// 状態はミューテックスで保護され、状態遷移の前に開始された呼び出しの結果は破棄される。
type Breaker struct {
	// mu は以降のフィールドを保護する。
	mu sync.Mutex
	// cfg は設定。
	cfg BreakerConfig
	// state は現在の状態。
	state State
	// generation は状態遷移のたびに増える世代番号。
	generation uint64
	// window は直近の呼び出し結果（trueが失敗）のリングバッファ。
	window []bool
	// pos はwindowの次の書き込み位置。
	pos int
	// recorded はwindowに記録済みの件数。
	recorded int
	// failures はwindow内の失敗数。
	failures int
	// openedAt はOPENに遷移した時刻。
	openedAt time.Time
	// trials はHALF_OPENで実行中の試行呼び出し数。
	trials int
	// trialSuccesses はHALF_OPENで成功した試行呼び出し数。
	trialSuccesses int
	// now は現在時刻を返す関数。
	now func() time.Time
	// onStateChange は状態遷移時に呼ばれる。muを保持したまま呼ばれる。
	onStateChange func(from, to State)
}

// NewBreaker は新しいBreakerを生成する。
func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg = cfg.withDefaults()
	return &Breaker{
		cfg:    cfg,
		state:  StateClosed,
		window: make([]bool, cfg.WindowSize),
		now:    time.Now,
	}
}

// State は現在の状態を返す。OPENの待機時間を過ぎていればHALF_OPENとして返す。
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// Allow は呼び出しを許可するかを判定する。
// 許可した場合は結果を報告する関数を返す。報告関数は必ず1回呼び出すこと。
// errがnilなら成功、IsPermanentなら記録しない、それ以外は失敗として扱う。
func (b *Breaker) Allow() (func(err error), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	switch b.state {
	case StateOpen:
		return nil, ErrCircuitOpen
	case StateHalfOpen:
		if b.trials >= b.cfg.HalfOpenMaxCalls {
			return nil, ErrCircuitOpen
		}
		b.trials++
	}

	gen := b.generation
	var once sync.Once
	return func(err error) {
		once.Do(func() { b.report(gen, err) })
	}, nil
}

// report は呼び出し結果を記録する。
func (b *Breaker) report(gen uint64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.generation {
		return
	}

	switch b.state {
	case StateClosed:
		if err != nil && IsPermanent(err) {
			return
		}
		b.record(err != nil)
		if b.recorded >= b.cfg.MinimumCalls &&
			float64(b.failures)/float64(b.recorded) >= b.cfg.FailureRateThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.trials--
		switch {
		case err == nil:
			b.trialSuccesses++
			if b.trialSuccesses >= b.cfg.HalfOpenMaxCalls {
				b.transition(StateClosed)
			}
		case IsPermanent(err):
		default:
			b.transition(StateOpen)
		}
	}
}

// record はウィンドウに1件の結果を追加する。
func (b *Breaker) record(failed bool) {
	if b.recorded == len(b.window) {
		if b.window[b.pos] {
			b.failures--
		}
	} else {
		b.recorded++
	}
	b.window[b.pos] = failed
	if failed {
		b.failures++
	}
	b.pos = (b.pos + 1) % len(b.window)
}

// refresh はOPENの待機時間を過ぎていればHALF_OPENに遷移する。
func (b *Breaker) refresh() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.transition(StateHalfOpen)
	}
}

// transition は状態を遷移し、世代を進めて計数をリセットする。
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.generation++
	b.pos, b.recorded, b.failures = 0, 0, 0
	clear(b.window)
	b.trials, b.trialSuccesses = 0, 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
	if b.onStateChange != nil && from != to {
		b.onStateChange(from, to)
	}
}
