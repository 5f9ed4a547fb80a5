// Package registry tracks the peripherals seen during one scan window.
package registry

import (
	"sort"
	"sync"

	"github.com/srg/bikemon/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Registry deduplicates sightings by address. Entries keep discovery order so that
// peripherals with equal signal strength rank in the order they were first seen.
type Registry struct {
	mu        sync.RWMutex
	peers     *orderedmap.OrderedMap[string, device.PeripheralRef]
	accepting bool
}

// New returns an empty, closed registry.
func New() *Registry {
	return &Registry{peers: orderedmap.New[string, device.PeripheralRef]()}
}

// Begin clears prior results and starts accepting sightings.
func (r *Registry) Begin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = orderedmap.New[string, device.PeripheralRef]()
	r.accepting = true
}

// End freezes the result set. Later sightings are ignored until the next Begin.
func (r *Registry) End() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accepting = false
}

// Clear drops all results and stops accepting sightings.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = orderedmap.New[string, device.PeripheralRef]()
	r.accepting = false
}

// Accepting reports whether a scan window is open.
func (r *Registry) Accepting() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.accepting
}

// Observe inserts or updates ref by address. The latest signal strength wins; a known
// name is kept when the new sighting carries none. It reports whether the address was
// new, which is the only case observers need to hear about.
func (r *Registry) Observe(ref device.PeripheralRef) (isNew bool) {
	if ref.Address == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.accepting {
		return false
	}

	prev, exists := r.peers.Get(ref.Address)
	if exists && ref.Name == "" {
		ref.Name = prev.Name
	}
	r.peers.Set(ref.Address, ref)

	return !exists
}

// Get returns the entry for address.
func (r *Registry) Get(address string) (device.PeripheralRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peers.Get(address)
}

// Len returns the number of distinct peripherals seen.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peers.Len()
}

// Results returns a snapshot ranked by signal strength, strongest first.
func (r *Registry) Results() []device.PeripheralRef {
	r.mu.RLock()
	out := make([]device.PeripheralRef, 0, r.peers.Len())
	for pair := r.peers.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RSSI > out[j].RSSI
	})
	return out
}
