package memory

import (
	"errors"
	"sync"

	"github.com/BrandonDHaskell/autodoor/internal/autodoor/store"
)

var errInjected = errors.New("injected write failure")

// faults lets tests make the next N writes (or every write) fail with a
// transient error.
type faults struct {
	mu       sync.Mutex
	failNext int
	failAll  bool
}

// FailNextWrites makes the next n writes fail.
func (f *faults) FailNextWrites(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

// SetUnavailable makes every write fail until called with false.
func (f *faults) SetUnavailable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = v
}

func (f *faults) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return store.Transient(op, errInjected)
	}
	if f.failNext > 0 {
		f.failNext--
		return store.Transient(op, errInjected)
	}
	return nil
}
