package interpreter

import "sync/atomic"

// Token is a cooperative cancellation flag shared between a run and
// whoever may want to stop it. The interpreter checks it after every
// block and between loop iterations. A nil Token is never stopped.
type Token struct {
	stopped atomic.Bool
}

func NewToken() *Token {
	return &Token{}
}

// Stop requests that the run end at the next check. Safe to call from any
// goroutine, including a signal handler.
func (t *Token) Stop() {
	if t != nil {
		t.stopped.Store(true)
	}
}

func (t *Token) Stopped() bool {
	return t != nil && t.stopped.Load()
}

// Reset clears the flag so the token can be reused for another run
func (t *Token) Reset() {
	if t != nil {
		t.stopped.Store(false)
	}
}
