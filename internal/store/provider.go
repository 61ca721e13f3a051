package store

import "sync"

// Provider hands out the current Repository. Callers fetch a handle per
// operation instead of capturing one at startup, so the backing store can
// be swapped while the process runs.
type Provider interface {
	Repo() Repository
}

// SwappableProvider is a Provider whose repository can be replaced at
// runtime, used when the database file is closed and reopened around an
// external backup or restore.
type SwappableProvider struct {
	mu   sync.RWMutex
	repo Repository
}

func NewSwappableProvider(repo Repository) *SwappableProvider {
	return &SwappableProvider{repo: repo}
}

func (p *SwappableProvider) Repo() Repository {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.repo
}

// Swap installs next and returns the previous repository so the caller can
// close it.
func (p *SwappableProvider) Swap(next Repository) Repository {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.repo
	p.repo = next
	return prev
}
