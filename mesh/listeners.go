// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mesh

import (
	"sort"
	"sync"
)

// ConnectionListener is invoked on the manager worker each time a new peer
// joins the overlay, whether over a direct connection or through a bridge
// path.
type ConnectionListener func(m *Manager, p *Peer)

// DisconnectionListener is invoked on the manager worker each time a peer
// leaves the overlay.
type DisconnectionListener func(m *Manager, p *Peer)

// DataListener is invoked on the manager worker each time an application
// payload arrives.  The sentToAll parameter is true iff the originator
// broadcast the payload to the whole overlay and false for a unicast.
type DataListener func(m *Manager, from *Peer, data []byte, sentToAll bool)

// listenerSet is one of the manager's three listener registries.  Each
// registry has its own mutex so that traversal of one does not stall
// dispatch on the others.
//
// Additions and removals are buffered and applied at dispatch entry, under
// the lock, before the traversal snapshot is taken.  A listener may
// therefore add or remove listeners from inside a callback; the effect is
// observed from the next event onward.  Removal reports true at most once
// per identifier.
type listenerSet struct {
	mu            sync.Mutex
	items         map[uint64]interface{}
	pendingAdd    map[uint64]interface{}
	pendingRemove map[uint64]struct{}
}

// newListenerSet returns an initialized empty registry.
func newListenerSet() *listenerSet {
	return &listenerSet{
		items:         make(map[uint64]interface{}),
		pendingAdd:    make(map[uint64]interface{}),
		pendingRemove: make(map[uint64]struct{}),
	}
}

// add registers the callback under the given identifier.  The identifier is
// allocated by the manager and never reused.
func (ls *listenerSet) add(id uint64, callback interface{}) {
	ls.mu.Lock()
	ls.pendingAdd[id] = callback
	ls.mu.Unlock()
}

// remove unregisters the callback with the given identifier.  It returns
// true if the identifier was registered and not already scheduled for
// removal.
func (ls *listenerSet) remove(id uint64) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if _, ok := ls.pendingAdd[id]; ok {
		delete(ls.pendingAdd, id)
		return true
	}
	if _, ok := ls.items[id]; !ok {
		return false
	}
	if _, ok := ls.pendingRemove[id]; ok {
		return false
	}
	ls.pendingRemove[id] = struct{}{}
	return true
}

// clear drops every callback, registered or pending.
func (ls *listenerSet) clear() {
	ls.mu.Lock()
	ls.items = make(map[uint64]interface{})
	ls.pendingAdd = make(map[uint64]interface{})
	ls.pendingRemove = make(map[uint64]struct{})
	ls.mu.Unlock()
}

// snapshot applies the pending buffers and returns the registered callbacks
// in identifier order.  Callbacks are invoked by the caller outside the
// lock.
func (ls *listenerSet) snapshot() []interface{} {
	ls.mu.Lock()
	for id := range ls.pendingRemove {
		delete(ls.items, id)
	}
	for id, callback := range ls.pendingAdd {
		ls.items[id] = callback
	}
	ls.pendingAdd = make(map[uint64]interface{})
	ls.pendingRemove = make(map[uint64]struct{})

	ids := make([]uint64, 0, len(ls.items))
	for id := range ls.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	callbacks := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		callbacks = append(callbacks, ls.items[id])
	}
	ls.mu.Unlock()
	return callbacks
}
