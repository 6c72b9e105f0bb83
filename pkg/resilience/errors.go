package resilience

import "errors"

// ErrCircuitOpen はブレーカーが開いているため呼び出しを行わなかったことを表す。
var ErrCircuitOpen = errors.New("サーキットブレーカーが開いています")

// permanentError はリトライしても結果が変わらないエラー。
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent はerrをリトライ対象外のエラーとしてラップする。
// 入力不正や権限不足など、依存先の一時的な障害ではないエラーに使う。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent はerrがPermanentでラップされているかを返す。
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// unwrapPermanent はPermanentのラップを外した元のエラーを返す。
func unwrapPermanent(err error) error {
	var p *permanentError
	if errors.As(err, &p) {
		return p.err
	}
	return err
}
