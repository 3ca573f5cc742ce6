package services

import "sync"

// SourceLocker hands out one mutex per source address. Entries are
// reference counted and dropped once nobody holds or waits on them.
type SourceLocker struct {
	mu    sync.Mutex
	locks map[string]*sourceLock
}

type sourceLock struct {
	mu   sync.Mutex
	refs int
}

func NewSourceLocker() *SourceLocker {
	return &SourceLocker{locks: make(map[string]*sourceLock)}
}

// Lock blocks until ip is free and returns the matching unlock func.
func (l *SourceLocker) Lock(ip string) (unlock func()) {
	l.mu.Lock()
	sl, ok := l.locks[ip]
	if !ok {
		sl = &sourceLock{}
		l.locks[ip] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sl.mu.Unlock()

			l.mu.Lock()
			sl.refs--
			if sl.refs == 0 {
				delete(l.locks, ip)
			}
			l.mu.Unlock()
		})
	}
}

func (l *SourceLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
