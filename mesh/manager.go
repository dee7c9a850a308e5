// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mesh

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/weftnet/weft/wire"
)

// Manager lifecycle states.  The manager is either stopped (no worker, no
// live sockets) or running; configuration mutators fail unless stopped.
const (
	stateStopped int32 = iota
	stateStarting
	stateRunning
)

// The following types are posted to the manager worker through the requests
// channel.  All peer table and forwarding table mutations happen while
// handling them, so the worker is the single writer for both.

// newPeerReq delivers a peer whose admission handshake completed.  The seed
// flag is set for the peer the manager dialed to join an existing overlay
// and triggers the membership exchange.
type newPeerReq struct {
	peer *Peer
	seed bool
}

// donePeerReq reports that a peer's connection was torn down.
type donePeerReq struct {
	peer *Peer
}

// frameReq delivers one reassembled inbound frame.
type frameReq struct {
	peer    *Peer
	cmd     wire.Cmd
	payload []byte
}

// sendReq asks the worker to unicast an application payload.
type sendReq struct {
	target wire.PeerID
	data   []byte
}

// broadcastReq asks the worker to broadcast an application payload.
type broadcastReq struct {
	data []byte
}

// disconnectReq asks the worker to tear the overlay down and halt.  done is
// closed once the worker has halted.
type disconnectReq struct {
	done chan struct{}
}

// Manager is the state machine at the center of the library.  It owns the
// set of known peers, runs the admission handshake, executes the overlay
// control protocol, dispatches application payloads to listeners, and
// forwards traffic on behalf of bridged pairs.
//
// Use New to create a manager.  See the package documentation for the
// concurrency contract.
type Manager struct {
	// state must only be used atomically.
	state int32

	// listenerID must only be used atomically.  It is the source of the
	// strictly increasing listener identifiers shared by all three
	// registries.
	listenerID uint64

	transport Transport

	// mu guards the peer table, the local peer record, the listening
	// port, and the worker channels across restarts.  The worker is the
	// single writer for the peer table; the lock exists so external
	// readers can take consistent snapshots.
	mu    sync.RWMutex
	self  Peer
	port  uint16
	peers map[wire.PeerID]*Peer

	// forwarding maps the identity of a relay target to the identity of
	// the peer that requested the relay.  It is only accessed by the
	// worker.
	forwarding map[wire.PeerID]wire.PeerID

	connListeners *listenerSet
	dcListeners   *listenerSet
	dataListeners *listenerSet

	requests chan interface{}
	quit     chan struct{}
	wg       sync.WaitGroup
}

// New returns a peer manager bound to the provided transport and listening
// port.  A fresh random identity is generated for the local peer.  Port zero
// requests an ephemeral port from the transport; the bound port is surfaced
// through Port once running.
func New(t Transport, port uint16) *Manager {
	m := &Manager{
		transport: t,
		port:      port,
		self: Peer{
			ID:       wire.NewPeerID(),
			Distance: DistanceSelf,
			Port:     port,
		},
		peers:         make(map[wire.PeerID]*Peer),
		forwarding:    make(map[wire.PeerID]wire.PeerID),
		connListeners: newListenerSet(),
		dcListeners:   newListenerSet(),
		dataListeners: newListenerSet(),
	}
	t.SetOwner(m)
	return m
}

// ID returns the identity of the local peer.
func (m *Manager) ID() wire.PeerID {
	return m.self.ID
}

// Self returns a copy of the record representing the local peer on the
// overlay.
func (m *Manager) Self() Peer {
	m.mu.RLock()
	self := m.self
	m.mu.RUnlock()
	return self
}

// Port returns the listening port.
func (m *Manager) Port() uint16 {
	m.mu.RLock()
	port := m.port
	m.mu.RUnlock()
	return port
}

// SetPort changes the listening port.  It fails with ErrInvalidState while
// the manager is running.
func (m *Manager) SetPort(port uint16) error {
	if atomic.LoadInt32(&m.state) != stateStopped {
		str := "port can not be changed while running"
		return managerError(ErrInvalidState, str)
	}
	m.mu.Lock()
	m.port = port
	m.self.Port = port
	m.mu.Unlock()
	return nil
}

// Peers returns a snapshot of the currently known remote peers sorted by
// identity.  The snapshot is a copy and may be invalidated by the next
// worker tick; it never contains the local peer.
func (m *Manager) Peers() []Peer {
	m.mu.RLock()
	out := make([]Peer, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, *p)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Less(out[j].ID)
	})
	return out
}

// Peer returns a copy of the record for the given identity and whether the
// peer is currently known.
func (m *Manager) Peer(id wire.PeerID) (Peer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[id]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// AddConnectionListener registers a listener fired each time a peer joins
// the overlay and returns its identifier.
func (m *Manager) AddConnectionListener(l ConnectionListener) uint64 {
	id := atomic.AddUint64(&m.listenerID, 1)
	m.connListeners.add(id, l)
	return id
}

// RemoveConnectionListener removes the connection listener with the given
// identifier.  It returns true if a listener was removed.
func (m *Manager) RemoveConnectionListener(id uint64) bool {
	return m.connListeners.remove(id)
}

// ClearConnectionListeners removes all connection listeners.
func (m *Manager) ClearConnectionListeners() {
	m.connListeners.clear()
}

// AddDisconnectionListener registers a listener fired each time a peer
// leaves the overlay and returns its identifier.
func (m *Manager) AddDisconnectionListener(l DisconnectionListener) uint64 {
	id := atomic.AddUint64(&m.listenerID, 1)
	m.dcListeners.add(id, l)
	return id
}

// RemoveDisconnectionListener removes the disconnection listener with the
// given identifier.  It returns true if a listener was removed.
func (m *Manager) RemoveDisconnectionListener(id uint64) bool {
	return m.dcListeners.remove(id)
}

// ClearDisconnectionListeners removes all disconnection listeners.
func (m *Manager) ClearDisconnectionListeners() {
	m.dcListeners.clear()
}

// AddDataListener registers a listener fired each time an application
// payload arrives and returns its identifier.
func (m *Manager) AddDataListener(l DataListener) uint64 {
	id := atomic.AddUint64(&m.listenerID, 1)
	m.dataListeners.add(id, l)
	return id
}

// RemoveDataListener removes the data listener with the given identifier.
// It returns true if a listener was removed.
func (m *Manager) RemoveDataListener(id uint64) bool {
	return m.dataListeners.remove(id)
}

// ClearDataListeners removes all data listeners.
func (m *Manager) ClearDataListeners() {
	m.dataListeners.clear()
}

// ClearListeners removes every listener from all three registries.
func (m *Manager) ClearListeners() {
	m.connListeners.clear()
	m.dcListeners.clear()
	m.dataListeners.clear()
}

// Run starts a new overlay in the background.  The local peer is the first
// member; remote peers join by dialing the listening port.  It fails with
// ErrInvalidState if the manager is already running.
func (m *Manager) Run() error {
	return m.start("", 0)
}

// SyncRun is the same as Run except it blocks until the worker exits.
func (m *Manager) SyncRun() error {
	if err := m.start("", 0); err != nil {
		return err
	}
	m.Join()
	return nil
}

// Connect joins an existing overlay by dialing the given member and starts
// the background worker on success.  When the initial dial or admission
// handshake fails, the worker is not started, the manager remains stopped,
// and an ErrConnectFailure is returned.
func (m *Manager) Connect(addr string, port uint16) error {
	if addr == "" {
		str := "a seed address is required to connect"
		return managerError(ErrConnectFailure, str)
	}
	return m.start(addr, port)
}

// SyncConnect is the same as Connect except it blocks until disconnected
// from the overlay or the connection attempt fails.
func (m *Manager) SyncConnect(addr string, port uint16) error {
	if err := m.Connect(addr, port); err != nil {
		return err
	}
	m.Join()
	return nil
}

// start transitions the manager to running, optionally dialing a seed
// first.  On any failure the manager is left stopped with no live sockets.
func (m *Manager) start(seedAddr string, seedPort uint16) error {
	if !atomic.CompareAndSwapInt32(&m.state, stateStopped, stateStarting) {
		return managerError(ErrInvalidState, "already running")
	}

	if err := m.transport.Listen(m.Port()); err != nil {
		atomic.StoreInt32(&m.state, stateStopped)
		str := fmt.Sprintf("unable to listen on port %d: %v", m.Port(),
			err)
		return managerError(ErrConnectFailure, str)
	}
	m.mu.Lock()
	m.port = m.transport.Port()
	m.self.Port = m.port
	m.mu.Unlock()

	var seed *Peer
	if seedAddr != "" {
		p, err := m.transport.Connect(seedAddr, seedPort)
		if err != nil {
			m.transport.Disconnect()
			atomic.StoreInt32(&m.state, stateStopped)
			str := fmt.Sprintf("unable to join overlay via %s:%d: "+
				"%v", seedAddr, seedPort, err)
			return managerError(ErrConnectFailure, str)
		}
		seed = p
	}

	m.mu.Lock()
	m.requests = make(chan interface{})
	m.quit = make(chan struct{})
	m.mu.Unlock()
	atomic.StoreInt32(&m.state, stateRunning)

	m.wg.Add(2)
	go m.eventHandler()
	go func() {
		m.transport.Run()
		m.wg.Done()
	}()

	log.Infof("Peer manager %s listening on port %d", m.self.ID, m.Port())
	if seed != nil {
		m.post(newPeerReq{peer: seed, seed: true})
	}
	return nil
}

// Disconnect closes every connection, emits a disconnection event for each
// known peer in lexicographic identity order, and stops the worker.  It is
// idempotent and synchronous up to the worker halt; use Join to wait for
// the worker to fully terminate.
//
// Disconnect must not be called from a listener callback.
func (m *Manager) Disconnect() {
	req := disconnectReq{done: make(chan struct{})}
	if !m.post(req) {
		// Already stopped.
		return
	}
	<-req.done
}

// Join waits for the background worker to terminate.  It returns
// immediately when the manager is not running.
func (m *Manager) Join() {
	m.wg.Wait()
}

// SendTo sends an application payload to the identified peer.  The payload
// is delivered to the remote data listeners as a unicast.  Sends toward
// peers that are unknown or unreachable are dropped silently since the
// caller's view of the membership is eventually consistent.
func (m *Manager) SendTo(id wire.PeerID, data []byte) error {
	if !m.post(sendReq{target: id, data: data}) {
		return managerError(ErrInvalidState, "manager is not running")
	}
	return nil
}

// SendToAll broadcasts an application payload to every member of the
// overlay.  The payload is delivered to the remote data listeners with the
// sentToAll flag set; the local data listeners do not observe it.
func (m *Manager) SendToAll(data []byte) error {
	if !m.post(broadcastReq{data: data}) {
		return managerError(ErrInvalidState, "manager is not running")
	}
	return nil
}

// post submits a request to the worker.  It returns false when the manager
// is not running.
func (m *Manager) post(req interface{}) bool {
	m.mu.RLock()
	requests, quit := m.requests, m.quit
	m.mu.RUnlock()
	if requests == nil || quit == nil {
		return false
	}
	select {
	case requests <- req:
		return true
	case <-quit:
		return false
	}
}

// eventHandler is the manager worker.  All command handlers, listener
// callbacks, and forwarding decisions execute here, so none of the state
// they touch requires further synchronization between them.  It must be run
// as a goroutine.
func (m *Manager) eventHandler() {
	m.mu.RLock()
	requests, quit := m.requests, m.quit
	m.mu.RUnlock()

out:
	for {
		select {
		case req := <-requests:
			switch req := req.(type) {
			case newPeerReq:
				m.handleNewPeer(req.peer, req.seed)

			case donePeerReq:
				m.handleDonePeer(req.peer)

			case frameReq:
				m.handleFrame(req.peer, req.cmd, req.payload)

			case sendReq:
				m.handleSend(req.target, req.data)

			case broadcastReq:
				m.handleBroadcast(req.data)

			case disconnectReq:
				m.handleDisconnect()
				close(req.done)
				break out
			}

		case <-quit:
			break out
		}
	}

	m.wg.Done()
	log.Trace("Peer manager worker done")
}

// SelfID returns the local peer identity.  This is part of the Owner
// interface implementation.
func (m *Manager) SelfID() wire.PeerID {
	return m.self.ID
}

// ListenPort returns the advertised listening port for the identity packet.
// This is part of the Owner interface implementation.
func (m *Manager) ListenPort() uint16 {
	return m.Port()
}

// PeerConnected delivers a peer whose admission handshake completed.  This
// is part of the Owner interface implementation.
func (m *Manager) PeerConnected(p *Peer) {
	m.post(newPeerReq{peer: p})
}

// PeerDisconnected reports that the peer's connection was torn down.  This
// is part of the Owner interface implementation.
func (m *Manager) PeerDisconnected(p *Peer) {
	m.post(donePeerReq{peer: p})
}

// FrameReceived delivers one reassembled frame from the peer.  This is part
// of the Owner interface implementation.
func (m *Manager) FrameReceived(p *Peer, cmd wire.Cmd, payload []byte) {
	m.post(frameReq{peer: p, cmd: cmd, payload: payload})
}

// DirectPeers returns the peers currently connected over owned sockets.
// This is part of the Owner interface implementation.
func (m *Manager) DirectPeers() []*Peer {
	m.mu.RLock()
	out := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		if p.Distance == DistanceDirect {
			out = append(out, p)
		}
	}
	m.mu.RUnlock()
	return out
}
