package ratelimit

import (
	"sync"

	"github.com/go-faster/errors"
)

// ErrLockUnavailable is returned when the state behind a limiter lock was left
// inconsistent by a panic inside a critical section. The limiter fails closed
// from then on.
var ErrLockUnavailable = errors.New("rate limiter unavailable")

// guard is a mutex that remembers whether a holder panicked.
type guard[T any] struct {
	mu       sync.Mutex
	poisoned bool
	v        T
}

// with runs fn with exclusive access to the guarded value.
func (g *guard[T]) with(fn func(v *T)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.poisoned {
		return ErrLockUnavailable
	}
	defer func() {
		if r := recover(); r != nil {
			g.poisoned = true
			panic(r)
		}
	}()

	fn(&g.v)
	return nil
}
