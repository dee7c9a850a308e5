// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mesh

import (
	"testing"
)

// TestListenerIDsMonotonic ensures listener identifiers strictly increase
// across all three registries for the lifetime of the manager.
func TestListenerIDsMonotonic(t *testing.T) {
	m, _ := newTestManager()

	var ids []uint64
	ids = append(ids, m.AddConnectionListener(func(*Manager, *Peer) {}))
	ids = append(ids, m.AddDataListener(func(*Manager, *Peer, []byte, bool) {}))
	ids = append(ids, m.AddDisconnectionListener(func(*Manager, *Peer) {}))
	ids = append(ids, m.AddConnectionListener(func(*Manager, *Peer) {}))

	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("listener ids not strictly increasing: %v", ids)
		}
	}

	// Removing and re-adding must not reuse a retired identifier.
	if !m.RemoveConnectionListener(ids[0]) {
		t.Fatal("expected removal of a registered listener to succeed")
	}
	next := m.AddConnectionListener(func(*Manager, *Peer) {})
	if next <= ids[len(ids)-1] {
		t.Fatalf("retired id space reused: got %d after %d", next,
			ids[len(ids)-1])
	}
}

// TestRemoveListener ensures removal reports true at most once per
// identifier and false for identifiers that were never registered.
func TestRemoveListener(t *testing.T) {
	m, _ := newTestManager()

	id := m.AddDataListener(func(*Manager, *Peer, []byte, bool) {})
	if !m.RemoveDataListener(id) {
		t.Fatal("expected first removal to report true")
	}
	if m.RemoveDataListener(id) {
		t.Fatal("expected second removal to report false")
	}
	if m.RemoveDataListener(123456) {
		t.Fatal("expected removal of unknown id to report false")
	}

	// Removal must work for listeners that have never been dispatched to
	// as well as ones that have.
	id = m.AddConnectionListener(func(*Manager, *Peer) {})
	m.notifyConnection(&Peer{ID: testID(1)})
	if !m.RemoveConnectionListener(id) {
		t.Fatal("expected removal after dispatch to report true")
	}
	if m.RemoveConnectionListener(id) {
		t.Fatal("expected repeated removal after dispatch to report false")
	}
}

// TestListenerAddRemoveRoundTrip ensures adding then removing a listener
// leaves the registry in the pre-add state.
func TestListenerAddRemoveRoundTrip(t *testing.T) {
	m, _ := newTestManager()

	fired := 0
	m.AddConnectionListener(func(*Manager, *Peer) { fired++ })
	id := m.AddConnectionListener(func(*Manager, *Peer) {
		t.Error("removed listener fired")
	})
	if !m.RemoveConnectionListener(id) {
		t.Fatal("expected removal to succeed")
	}

	m.notifyConnection(&Peer{ID: testID(1)})
	if fired != 1 {
		t.Fatalf("expected surviving listener to fire once, got %d",
			fired)
	}
}

// TestListenerMutationDuringDispatch ensures a listener may add and remove
// other listeners from inside a callback, with the effect observed from the
// next event onward.
func TestListenerMutationDuringDispatch(t *testing.T) {
	m, _ := newTestManager()

	lateFired := 0
	var selfID uint64
	firstFired := 0
	selfID = m.AddConnectionListener(func(m *Manager, p *Peer) {
		firstFired++
		m.AddConnectionListener(func(*Manager, *Peer) { lateFired++ })
		m.RemoveConnectionListener(selfID)
	})

	// First event: only the original listener observes it.
	m.notifyConnection(&Peer{ID: testID(1)})
	if firstFired != 1 {
		t.Fatalf("expected original listener to fire once, got %d",
			firstFired)
	}
	if lateFired != 0 {
		t.Fatalf("listener added during dispatch fired for the "+
			"current event %d times", lateFired)
	}

	// Second event: the added listener observes it and the removed one
	// does not.
	m.notifyConnection(&Peer{ID: testID(2)})
	if firstFired != 1 {
		t.Fatalf("removed listener fired again (%d fires)", firstFired)
	}
	if lateFired != 1 {
		t.Fatalf("expected added listener to fire once, got %d",
			lateFired)
	}
}

// TestClearListeners ensures clearing the registries drops registered and
// pending callbacks alike.
func TestClearListeners(t *testing.T) {
	m, _ := newTestManager()

	id := m.AddConnectionListener(func(*Manager, *Peer) {
		t.Error("cleared listener fired")
	})
	m.AddDataListener(func(*Manager, *Peer, []byte, bool) {
		t.Error("cleared listener fired")
	})
	m.AddDisconnectionListener(func(*Manager, *Peer) {
		t.Error("cleared listener fired")
	})
	m.ClearListeners()

	m.notifyConnection(&Peer{ID: testID(1)})
	m.notifyDisconnection(&Peer{ID: testID(1)})
	m.deliverData(testID(1), []byte{0x01}, false)

	if m.RemoveConnectionListener(id) {
		t.Fatal("expected removal after clear to report false")
	}
}
