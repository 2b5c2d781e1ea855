package server

import "sync"

const defaultProfileCacheSize = 10000

// profileSet remembers which users already have a profile row so authenticated
// requests skip the upsert. It forgets everything once full.
type profileSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
	max int
}

func newProfileSet(limit int) *profileSet {
	if limit <= 0 {
		limit = defaultProfileCacheSize
	}
	return &profileSet{ids: make(map[string]struct{}), max: limit}
}

func (p *profileSet) has(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.ids[userID]
	return ok
}

func (p *profileSet) add(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.ids[userID]; ok {
		return
	}
	if len(p.ids) >= p.max {
		clear(p.ids)
	}
	p.ids[userID] = struct{}{}
}

func (p *profileSet) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}
