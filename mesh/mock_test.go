// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mesh

import (
	"fmt"
	"sync"
	"time"

	"github.com/weftnet/weft/wire"
)

// sentMsg records one message handed to the mock transport for delivery.
type sentMsg struct {
	to  wire.PeerID
	msg wire.Message
}

// mockTransport implements the Transport interface with no real sockets so
// the manager state machine can be driven deterministically.
type mockTransport struct {
	mu        sync.Mutex
	owner     Owner
	port      uint16
	sent      []sentMsg
	closed    []wire.PeerID
	processed []wire.PeerID
	connectFn func(addr string, port uint16) (*Peer, error)
	quit      chan struct{}
	quitOnce  *sync.Once
}

func newMockTransport() *mockTransport {
	return &mockTransport{}
}

func (t *mockTransport) SetOwner(owner Owner) {
	t.owner = owner
}

func (t *mockTransport) Listen(port uint16) error {
	t.mu.Lock()
	if port == 0 {
		port = 45000
	}
	t.port = port
	t.quit = make(chan struct{})
	t.quitOnce = new(sync.Once)
	t.mu.Unlock()
	return nil
}

func (t *mockTransport) Port() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port
}

func (t *mockTransport) Run() {
	t.mu.Lock()
	quit := t.quit
	t.mu.Unlock()
	if quit != nil {
		<-quit
	}
}

func (t *mockTransport) Connect(addr string, port uint16) (*Peer, error) {
	if t.connectFn != nil {
		return t.connectFn(addr, port)
	}
	return nil, fmt.Errorf("no route to %s:%d", addr, port)
}

func (t *mockTransport) ProcessConnectedPeer(p *Peer) {
	t.mu.Lock()
	t.processed = append(t.processed, p.ID)
	t.mu.Unlock()
}

func (t *mockTransport) Send(msg wire.Message, p *Peer) error {
	t.mu.Lock()
	t.sent = append(t.sent, sentMsg{to: p.ID, msg: msg})
	t.mu.Unlock()
	return nil
}

func (t *mockTransport) ClosePeer(p *Peer) {
	t.mu.Lock()
	t.closed = append(t.closed, p.ID)
	t.mu.Unlock()
}

func (t *mockTransport) Disconnect() {
	t.mu.Lock()
	quit, once := t.quit, t.quitOnce
	t.mu.Unlock()
	if quit != nil && once != nil {
		once.Do(func() { close(quit) })
	}
}

// reset drops the recorded traffic so tests can assert on a clean slate
// after setup.
func (t *mockTransport) reset() {
	t.mu.Lock()
	t.sent = nil
	t.closed = nil
	t.processed = nil
	t.mu.Unlock()
}

// sentTo returns the messages recorded toward the given peer.
func (t *mockTransport) sentTo(id wire.PeerID) []wire.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []wire.Message
	for _, s := range t.sent {
		if s.to == id {
			out = append(out, s.msg)
		}
	}
	return out
}

// sentCount returns the total number of recorded messages.
func (t *mockTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// closedPeers returns the peers whose connections were torn down.
func (t *mockTransport) closedPeers() []wire.PeerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]wire.PeerID, len(t.closed))
	copy(out, t.closed)
	return out
}

// testID returns a deterministic peer identifier with the given leading
// byte.
func testID(b byte) wire.PeerID {
	var id wire.PeerID
	id[0] = b
	return id
}

// newTestManager returns a manager wired to a fresh mock transport.  The
// worker is not started; tests drive the handlers directly and therefore
// run single threaded.
func newTestManager() (*Manager, *mockTransport) {
	transport := newMockTransport()
	m := New(transport, 0)
	return m, transport
}

// addDirectPeer admits a direct peer with the given identifier and returns
// the table record.
func addDirectPeer(m *Manager, transport *mockTransport, b byte) *Peer {
	p := &Peer{ID: testID(b), Addr: "127.0.0.1", Port: 40000 + uint16(b)}
	m.handleNewPeer(p, false)
	transport.reset()
	return p
}

// waitFor polls the provided condition until it holds or the timeout
// elapses.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
