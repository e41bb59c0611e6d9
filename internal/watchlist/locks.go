package watchlist

import "sync"

// pairLocks serialises find-then-write sequences per (instrument, owner) pair.
type pairLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[string]*sync.Mutex)}
}

// lock blocks until the pair is free and returns the matching unlock.
func (p *pairLocks) lock(instrumentID, ownerID string) func() {
	key := instrumentID + "\x00" + ownerID

	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &sync.Mutex{}
		p.locks[key] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}
