package storage

import "sync"

// keyLock serializes writers per entity key so that two workers targeting the
// same (season, designer, look) validate and merge one at a time, while
// writes to unrelated entities proceed in parallel.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*entityLock)}
}

// acquire locks the given key and returns the release function.
func (kl *keyLock) acquire(key string) func() {
	kl.mu.Lock()
	el, ok := kl.locks[key]
	if !ok {
		el = &entityLock{}
		kl.locks[key] = el
	}
	el.refs++
	kl.mu.Unlock()

	el.mu.Lock()

	return func() {
		el.mu.Unlock()

		kl.mu.Lock()
		el.refs--
		if el.refs == 0 {
			delete(kl.locks, key)
		}
		kl.mu.Unlock()
	}
}
