// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mesh

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/weftnet/weft/wire"
)

// TestRunWhileRunning ensures starting an already-running manager fails
// with ErrInvalidState.
func TestRunWhileRunning(t *testing.T) {
	m, _ := newTestManager()

	if err := m.Run(); err != nil {
		t.Fatalf("unexpected error starting manager: %v", err)
	}
	defer func() {
		m.Disconnect()
		m.Join()
	}()

	if err := m.Run(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := m.Connect("10.0.0.1", 3479); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState from connect, got %v", err)
	}
}

// TestSetPortWhileRunning ensures the listening port can not be changed
// while the worker is live and remains unchanged after the failed attempt.
func TestSetPortWhileRunning(t *testing.T) {
	m, _ := newTestManager()
	if err := m.SetPort(4000); err != nil {
		t.Fatalf("unexpected error setting port while stopped: %v", err)
	}

	if err := m.Run(); err != nil {
		t.Fatalf("unexpected error starting manager: %v", err)
	}

	if err := m.SetPort(9999); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if m.Port() != 4000 {
		t.Fatalf("port changed while running: %d", m.Port())
	}

	m.Disconnect()
	m.Join()

	if err := m.SetPort(9999); err != nil {
		t.Fatalf("unexpected error setting port after stop: %v", err)
	}
	if m.Port() != 9999 {
		t.Fatalf("port not updated after stop: %d", m.Port())
	}
}

// TestConnectFailure ensures a failed seed dial leaves the manager stopped
// with no worker and that it can still be started afterwards.
func TestConnectFailure(t *testing.T) {
	m, _ := newTestManager()

	err := m.Connect("203.0.113.1", 3479)
	if !errors.Is(err, ErrConnectFailure) {
		t.Fatalf("expected ErrConnectFailure, got %v", err)
	}

	// The manager must be stopped: a fresh Run must succeed.
	if err := m.Run(); err != nil {
		t.Fatalf("manager not left stopped after failed connect: %v",
			err)
	}
	m.Disconnect()
	m.Join()
}

// TestConnectIssuesRosterQuery ensures a successful admission via a seed is
// followed by a retrieve_peers query to that seed.
func TestConnectIssuesRosterQuery(t *testing.T) {
	m, transport := newTestManager()

	seedID := testID(0x0a)
	transport.connectFn = func(addr string, port uint16) (*Peer, error) {
		return &Peer{ID: seedID, Addr: addr, Port: port}, nil
	}

	admitted := make(chan struct{})
	m.AddConnectionListener(func(*Manager, *Peer) { close(admitted) })

	if err := m.Connect("10.0.0.7", 3479); err != nil {
		t.Fatalf("unexpected error joining: %v", err)
	}
	defer func() {
		m.Disconnect()
		m.Join()
	}()

	select {
	case <-admitted:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for seed admission")
	}

	ok := waitFor(5*time.Second, func() bool {
		for _, msg := range transport.sentTo(seedID) {
			if _, ok := msg.(*wire.MsgRetrievePeers); ok {
				return true
			}
		}
		return false
	})
	if !ok {
		t.Fatal("retrieve_peers never issued to the seed")
	}
}

// TestDisconnectClearsPeers ensures Disconnect emits one disconnection
// event per peer in lexicographic identity order and leaves the table
// empty.
func TestDisconnectClearsPeers(t *testing.T) {
	m, _ := newTestManager()

	var mu sync.Mutex
	connected := 0
	var gone []wire.PeerID
	m.AddConnectionListener(func(*Manager, *Peer) {
		mu.Lock()
		connected++
		mu.Unlock()
	})
	m.AddDisconnectionListener(func(_ *Manager, p *Peer) {
		mu.Lock()
		gone = append(gone, p.ID)
		mu.Unlock()
	})

	if err := m.Run(); err != nil {
		t.Fatalf("unexpected error starting manager: %v", err)
	}

	// Admit three peers in non-sorted order through the owner interface,
	// exactly as a transport would.
	for _, b := range []byte{0x30, 0x10, 0x20} {
		m.PeerConnected(&Peer{ID: testID(b)})
	}
	ok := waitFor(5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connected == 3
	})
	if !ok {
		t.Fatal("timeout waiting for admissions")
	}

	m.Disconnect()
	m.Join()

	if len(m.Peers()) != 0 {
		t.Fatalf("peer table not empty after disconnect: %v", m.Peers())
	}
	mu.Lock()
	defer mu.Unlock()
	want := []wire.PeerID{testID(0x10), testID(0x20), testID(0x30)}
	if len(gone) != len(want) {
		t.Fatalf("expected %d disconnection events, got %d", len(want),
			len(gone))
	}
	for i := range want {
		if gone[i] != want[i] {
			t.Fatalf("disconnection order mismatch at %d: got %v "+
				"want %v", i, gone[i], want[i])
		}
	}

	// Disconnect is idempotent once stopped.
	m.Disconnect()
}

// TestSendWhileStopped ensures sends are refused with ErrInvalidState when
// no worker is running.
func TestSendWhileStopped(t *testing.T) {
	m, _ := newTestManager()

	if err := m.SendTo(testID(0x01), []byte{0x01}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := m.SendToAll([]byte{0x01}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

// TestUnicastEndToEnd drives a send through the public API with the worker
// running and verifies the frame handed to the transport.
func TestUnicastEndToEnd(t *testing.T) {
	m, transport := newTestManager()

	admitted := make(chan struct{})
	m.AddConnectionListener(func(*Manager, *Peer) { close(admitted) })

	if err := m.Run(); err != nil {
		t.Fatalf("unexpected error starting manager: %v", err)
	}
	defer func() {
		m.Disconnect()
		m.Join()
	}()

	target := testID(0x0a)
	m.PeerConnected(&Peer{ID: target})
	select {
	case <-admitted:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for admission")
	}

	payload := []byte{0x01, 0x02, 0x03}
	if err := m.SendTo(target, payload); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}

	ok := waitFor(5*time.Second, func() bool {
		for _, msg := range transport.sentTo(target) {
			if st, ok := msg.(*wire.MsgSendTo); ok &&
				st.Target == target && !st.Broadcast {

				return true
			}
		}
		return false
	})
	if !ok {
		t.Fatal("unicast never reached the transport")
	}
}
