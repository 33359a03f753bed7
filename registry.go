package main

import (
	"sync"
)

// registry maps an authenticated identity to its live connection. Only
// the connection's own lifecycle writes to it; broadcasts only read.
type registry struct {
	mux   sync.RWMutex
	conns map[string]*connection
}

func newRegistry() *registry {
	return &registry{conns: make(map[string]*connection)}
}

// register makes c the addressable connection for identity and returns
// the connection it replaced, if any.
func (r *registry) register(identity string, c *connection) *connection {
	r.mux.Lock()
	defer r.mux.Unlock()

	prev := r.conns[identity]
	r.conns[identity] = c
	if prev == c {
		return nil
	}
	return prev
}

// unregister removes identity only while it still points at c.
func (r *registry) unregister(identity string, c *connection) bool {
	r.mux.Lock()
	defer r.mux.Unlock()

	if r.conns[identity] != c {
		return false
	}
	delete(r.conns, identity)
	return true
}

func (r *registry) lookup(identity string) (*connection, bool) {
	r.mux.RLock()
	defer r.mux.RUnlock()

	c, ok := r.conns[identity]
	return c, ok
}

// others returns every registered connection except the one for identity.
func (r *registry) others(identity string) []*connection {
	r.mux.RLock()
	defer r.mux.RUnlock()

	conns := make([]*connection, 0, len(r.conns))
	for id, c := range r.conns {
		if id != identity {
			conns = append(conns, c)
		}
	}
	return conns
}

func (r *registry) len() int {
	r.mux.RLock()
	defer r.mux.RUnlock()

	return len(r.conns)
}
