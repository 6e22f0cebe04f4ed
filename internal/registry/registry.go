// Package registry keeps the set of peers a relay fans messages out to.
package registry

import (
	"sort"
	"sync"

	"github.com/EnzoRigon/udp-client-server/internal/domain"
)

// Registry is a concurrency safe set of peer addresses.
// Entries are never evicted; it only grows for the lifetime of its owner.
type Registry struct {
	mux   sync.RWMutex
	peers map[domain.PeerAddress]struct{}
}

func New() *Registry {
	return &Registry{
		peers: make(map[domain.PeerAddress]struct{}),
	}
}

// Add inserts the peer and reports whether it was not yet known.
func (r *Registry) Add(peer domain.PeerAddress) bool {
	r.mux.Lock()
	defer r.mux.Unlock()
	if _, ok := r.peers[peer]; ok {
		return false
	}
	r.peers[peer] = struct{}{}
	return true
}

func (r *Registry) Contains(peer domain.PeerAddress) bool {
	r.mux.RLock()
	defer r.mux.RUnlock()
	_, ok := r.peers[peer]
	return ok
}

func (r *Registry) Len() int {
	r.mux.RLock()
	defer r.mux.RUnlock()
	return len(r.peers)
}

// Snapshot copies the current members so callers can iterate without holding the lock.
// The order is stable (by address) but carries no meaning.
func (r *Registry) Snapshot() []domain.PeerAddress {
	r.mux.RLock()
	out := make([]domain.PeerAddress, 0, len(r.peers))
	for p := range r.peers {
		out = append(out, p)
	}
	r.mux.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].AddrPort().Compare(out[j].AddrPort()) < 0
	})
	return out
}
