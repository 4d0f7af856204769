package ledger

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

// playerLocks serializes rating read-modify-write per player within this
// process. Entries are reference counted and dropped when unused.
type playerLocks struct {
	mu    sync.Mutex
	locks map[string]*playerLock
}

type playerLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newPlayerLocks() *playerLocks {
	return &playerLocks{locks: make(map[string]*playerLock)}
}

// acquire locks every key in sorted order so two submissions over the same
// pair cannot deadlock. It returns early with ctx.Err() if ctx ends while waiting.
func (l *playerLocks) acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = uniqueSorted(keys)

	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, key := range keys {
		lk := l.ref(key)
		if err := lk.sem.Acquire(ctx, 1); err != nil {
			l.unref(key)
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}

func (l *playerLocks) ref(key string) *playerLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &playerLock{sem: semaphore.NewWeighted(1)}
		l.locks[key] = lk
	}
	lk.refs++
	return lk
}

func (l *playerLocks) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk := l.locks[key]
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *playerLocks) unlock(key string) {
	l.mu.Lock()
	lk := l.locks[key]
	l.mu.Unlock()
	lk.sem.Release(1)
	l.unref(key)
}

// size reports how many keys currently have holders or waiters.
func (l *playerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func uniqueSorted(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
