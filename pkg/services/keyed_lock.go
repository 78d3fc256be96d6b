package services

import "sync"

// keyedLock serializes work per string key. Two goroutines holding different
// keys proceed in parallel; two holding the same key take turns. Lock entries
// are kept for the life of the process, which is fine for a batch loader
// whose key space is the entities of one run.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the mutex for key, creating it on first use. The caller must
// call the returned release function when done.
func (l *keyedLock) Acquire(key string) (release func()) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
