package ledger

import (
	"sort"
	"sync"
)

// pairLocks serializes work per (creditor, debtor) pair inside this process.
// Entries are dropped once nobody holds or waits on them.
type pairLocks struct {
	mu    sync.Mutex
	locks map[string]*pairLock
}

type pairLock struct {
	mu   sync.Mutex
	refs int
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[string]*pairLock)}
}

func pairKey(creditor, debtor UserID) string {
	return string(creditor) + ">" + string(debtor)
}

// lock acquires every key in sorted order and returns the release func.
func (p *pairLocks) lock(keys ...string) (unlock func()) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	sorted = dedupe(sorted)

	held := make([]*pairLock, 0, len(sorted))
	for _, k := range sorted {
		l := p.acquire(k)
		l.mu.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			p.release(sorted[i])
		}
	}
}

func (p *pairLocks) acquire(key string) *pairLock {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[key]
	if !ok {
		l = &pairLock{}
		p.locks[key] = l
	}
	l.refs++
	return l
}

func (p *pairLocks) release(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[key]
	if !ok {
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(p.locks, key)
	}
}

func (p *pairLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i > 0 && s == sorted[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}
