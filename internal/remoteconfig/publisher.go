package remoteconfig

import (
	"sync"
	"sync/atomic"
)

// ReloadObserver is called after a successful publish.
type ReloadObserver func(mapping map[string]string)

// OutputPublisher atomically swaps the exposed key-value mapping and
// notifies subscribers that configuration has changed (spec §4.9). The
// swap uses atomic.Pointer so readers never observe a torn mapping (spec
// §5).
type OutputPublisher struct {
	current   atomic.Pointer[map[string]string]
	mu        sync.Mutex
	observers []ReloadObserver
}

// NewOutputPublisher returns a publisher with an empty published mapping.
func NewOutputPublisher() *OutputPublisher {
	p := &OutputPublisher{}
	empty := map[string]string{}
	p.current.Store(&empty)
	return p
}

// Data returns the currently published mapping. The returned map must be
// treated as read-only by the caller.
func (p *OutputPublisher) Data() map[string]string {
	return *p.current.Load()
}

// Publish installs a new mapping via a single reference swap and notifies
// every registered observer. Only the refresh engine's apply phase calls
// this (spec §4.9: SetDirty never does).
func (p *OutputPublisher) Publish(mapping map[string]string) {
	p.current.Store(&mapping)

	p.mu.Lock()
	observers := make([]ReloadObserver, len(p.observers))
	copy(observers, p.observers)
	p.mu.Unlock()

	for _, obs := range observers {
		obs(mapping)
	}
}

// OnReload registers an observer invoked after every Publish.
func (p *OutputPublisher) OnReload(obs ReloadObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, obs)
}
