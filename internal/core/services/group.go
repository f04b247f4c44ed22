package services

import "sync"

// singleKeyGroup coalesces concurrent work per fingerprint, the way
// singleflight does, but lets one owner resolve many keys in a single
// provider batch. The first caller to join a key owns it; later callers
// wait on the call's done channel.
//
// A failed key is dropped immediately so a later call retries, which
// means a key can be re-registered while its previous owner is still
// unwinding. complete, fail and forget therefore act on the owner's own
// call records and never touch a successor's.
type singleKeyGroup struct {
	mu    sync.Mutex
	calls map[string]*inflightCall
}

func newSingleKeyGroup() singleKeyGroup {
	return singleKeyGroup{calls: make(map[string]*inflightCall)}
}

// join returns the in-flight call for the key and whether the caller
// became its owner. The owner must later complete or fail the key and
// then forget it.
func (g *singleKeyGroup) join(key string) (*inflightCall, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c, false
	}
	c := &inflightCall{done: make(chan struct{})}
	g.calls[key] = c
	return c, true
}

// complete resolves an owned call with its vector and wakes all
// waiters. The record stays registered until forget so callers joining
// in the meantime reuse the result.
func (g *singleKeyGroup) complete(c *inflightCall, vec []float32) {
	c.vec = vec
	close(c.done)
}

// fail resolves the owned calls for keys with an error, wakes their
// waiters and unregisters them immediately so a later call retries
// instead of inheriting the failure.
func (g *singleKeyGroup) fail(keys []string, owned map[string]*inflightCall, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, key := range keys {
		c := owned[key]
		c.err = err
		close(c.done)
		if g.calls[key] == c {
			delete(g.calls, key)
		}
	}
}

// forget unregisters the owned calls for keys so future lookups go to
// the cache. Keys already dropped by fail, or re-registered by a
// successor, are left alone.
func (g *singleKeyGroup) forget(keys []string, owned map[string]*inflightCall) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, key := range keys {
		if g.calls[key] == owned[key] {
			delete(g.calls, key)
		}
	}
}
