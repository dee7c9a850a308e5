// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wsio

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/weftnet/weft/mesh"
	"github.com/weftnet/weft/wire"
)

const (
	// endpointPath is the HTTP path overlay connections are upgraded on.
	endpointPath = "/weft"

	// defaultHandshakeTimeout bounds the upgrade, preamble, and identity
	// exchange on a fresh connection.
	defaultHandshakeTimeout = time.Second * 10

	// defaultKeepAliveInterval is how often keep_alive probes are sent on
	// every live connection.
	defaultKeepAliveInterval = time.Second * 5

	// defaultIdleTimeout is how long a connection may stay silent before
	// it is considered dead and torn down.
	defaultIdleTimeout = time.Second * 120

	// sendQueueLen is the number of frames that may be queued toward a
	// single peer before sends start failing.
	sendQueueLen = 256
)

// Config holds the configuration options related to the WebSocket
// transport.
type Config struct {
	// KeepAliveInterval is how often keep_alive probes are sent on every
	// live connection.
	KeepAliveInterval time.Duration

	// IdleTimeout is how long a connection may stay silent before it is
	// torn down.
	IdleTimeout time.Duration
}

// connData is the opaque per-peer transport state stored in the peer
// record.
type connData struct {
	ws   *websocket.Conn
	out  chan []byte
	quit chan struct{}

	closeOnce sync.Once

	mu       sync.Mutex
	lastSeen time.Time
}

func (cd *connData) touch() {
	cd.mu.Lock()
	cd.lastSeen = time.Now()
	cd.mu.Unlock()
}

func (cd *connData) idleSince() time.Time {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return cd.lastSeen
}

func (cd *connData) close() {
	cd.closeOnce.Do(func() {
		close(cd.quit)
		cd.ws.Close()
	})
}

// Transport is the WebSocket implementation of the mesh.Transport
// interface.  Use New to create one and hand it to mesh.New.
type Transport struct {
	cfg   Config
	owner mesh.Owner

	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	port     uint16
	conns    map[*connData]struct{}
	quit     chan struct{}
	wg       sync.WaitGroup
}

// New returns a WebSocket transport with the provided configuration.  A nil
// config selects defaults throughout.
func New(cfg *Config) *Transport {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = defaultKeepAliveInterval
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	return &Transport{
		cfg: c,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*connData]struct{}),
	}
}

// SetOwner registers the back-reference the transport uses to reach the
// peer table and deliver events.  This is part of the mesh.Transport
// interface implementation.
func (t *Transport) SetOwner(owner mesh.Owner) {
	t.owner = owner
}

// Listen binds the listening socket for the given port.  This is part of
// the mesh.Transport interface implementation.
func (t *Transport) Listen(port uint16) error {
	listener, err := net.Listen("tcp", net.JoinHostPort("",
		strconv.Itoa(int(port))))
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(endpointPath, t.upgradeHandler)

	t.mu.Lock()
	t.listener = listener
	t.server = &http.Server{Handler: mux}
	t.port = uint16(listener.Addr().(*net.TCPAddr).Port)
	t.quit = make(chan struct{})
	t.mu.Unlock()
	return nil
}

// Port returns the port the transport is currently bound to.  This is part
// of the mesh.Transport interface implementation.
func (t *Transport) Port() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port
}

// Run pumps the transport reactor until Disconnect is called.  This is part
// of the mesh.Transport interface implementation.
func (t *Transport) Run() {
	t.mu.Lock()
	listener, server, quit := t.listener, t.server, t.quit
	t.mu.Unlock()
	if listener == nil {
		return
	}

	log.Infof("Transport listening on ws://%s%s", listener.Addr(),
		endpointPath)
	t.wg.Add(3)
	go func() {
		defer t.wg.Done()
		if err := server.Serve(listener); err != nil &&
			err != http.ErrServerClosed {

			select {
			case <-quit:
			default:
				log.Errorf("HTTP server error: %v", err)
			}
		}
	}()
	go t.keepAliveHandler(quit)
	go t.idleHandler(quit)

	<-quit
	t.wg.Wait()
	log.Trace("Transport reactor done")
}

// upgradeHandler upgrades an inbound HTTP request to a WebSocket and runs
// the overlay handshake on it.
func (t *Transport) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("Unable to upgrade connection from %s: %v",
			r.RemoteAddr, err)
		return
	}
	p, err := t.handshake(ws)
	if err != nil {
		log.Debugf("Dropping inbound connection from %s: %v",
			r.RemoteAddr, err)
		ws.Close()
		return
	}
	t.owner.PeerConnected(p)
}

// keepAliveHandler periodically probes every live connection.  It must be
// run as a goroutine.
func (t *Transport) keepAliveHandler(quit chan struct{}) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, p := range t.owner.DirectPeers() {
				if err := t.Send(wire.NewMsgKeepAlive(), p); err != nil {
					log.Debugf("Unable to probe %v: %v",
						p.ID, err)
				}
			}

		case <-quit:
			return
		}
	}
}

// idleHandler tears down connections that have been silent for longer than
// the configured idle timeout.  It must be run as a goroutine.
func (t *Transport) idleHandler(quit chan struct{}) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.IdleTimeout / 5)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(-t.cfg.IdleTimeout)
			for _, p := range t.owner.DirectPeers() {
				cd, ok := p.TransportData.(*connData)
				if !ok {
					continue
				}
				if cd.idleSince().Before(deadline) {
					log.Infof("Peer %v exceeded the idle "+
						"timeout, disconnecting", p.ID)
					cd.close()
				}
			}

		case <-quit:
			return
		}
	}
}

// Connect dials the given endpoint and completes the protocol preamble and
// identity handshake.  This is part of the mesh.Transport interface
// implementation.
func (t *Transport) Connect(addr string, port uint16) (*mesh.Peer, error) {
	url := fmt.Sprintf("ws://%s%s", net.JoinHostPort(addr,
		strconv.Itoa(int(port))), endpointPath)
	dialer := websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout}
	ws, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	p, err := t.handshake(ws)
	if err != nil {
		ws.Close()
		return nil, err
	}
	return p, nil
}

// handshake performs the protocol preamble and identity exchange on a fresh
// WebSocket and returns the populated peer record.  The preamble and the
// identity packet ride the first two binary messages.
func (t *Transport) handshake(ws *websocket.Conn) (*mesh.Peer, error) {
	deadline := time.Now().Add(defaultHandshakeTimeout)
	ws.SetReadDeadline(deadline)
	ws.SetWriteDeadline(deadline)

	var preamble bytes.Buffer
	if err := wire.WritePreamble(&preamble); err != nil {
		return nil, err
	}
	err := ws.WriteMessage(websocket.BinaryMessage, preamble.Bytes())
	if err != nil {
		return nil, err
	}
	_, remotePreamble, err := ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	if err := wire.ReadPreamble(bytes.NewReader(remotePreamble)); err != nil {
		return nil, err
	}

	var identity bytes.Buffer
	if err := wire.WriteIdentity(&identity, t.owner.SelfID(),
		t.owner.ListenPort()); err != nil {
		return nil, err
	}
	err = ws.WriteMessage(websocket.BinaryMessage, identity.Bytes())
	if err != nil {
		return nil, err
	}
	_, remoteIdentity, err := ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	id, listenPort, err := wire.ReadIdentity(bytes.NewReader(remoteIdentity))
	if err != nil {
		return nil, err
	}

	ws.SetReadDeadline(time.Time{})
	ws.SetWriteDeadline(time.Time{})

	host, _, err := net.SplitHostPort(ws.RemoteAddr().String())
	if err != nil {
		host = ws.RemoteAddr().String()
	}

	cd := &connData{
		ws:   ws,
		out:  make(chan []byte, sendQueueLen),
		quit: make(chan struct{}),
	}
	cd.touch()
	t.mu.Lock()
	t.conns[cd] = struct{}{}
	t.mu.Unlock()

	log.Debugf("Completed handshake with %v at %s", id, ws.RemoteAddr())
	return &mesh.Peer{
		ID:            id,
		Addr:          host,
		Port:          listenPort,
		Distance:      mesh.DistanceDirect,
		TransportData: cd,
	}, nil
}

// ProcessConnectedPeer begins reading from a newly handshaken peer and
// starts its writer.  This is part of the mesh.Transport interface
// implementation.
func (t *Transport) ProcessConnectedPeer(p *mesh.Peer) {
	cd, ok := p.TransportData.(*connData)
	if !ok {
		log.Errorf("Peer %v carries no transport state", p.ID)
		return
	}
	go t.inHandler(p, cd)
	go t.outHandler(p, cd)
}

// inHandler reads frames from the peer until the connection dies and
// reports the resulting disconnection to the owner.  It must be run as a
// goroutine.
func (t *Transport) inHandler(p *mesh.Peer, cd *connData) {
	for {
		kind, body, err := cd.ws.ReadMessage()
		if err != nil {
			break
		}
		cd.touch()
		if kind != websocket.BinaryMessage || len(body) == 0 {
			log.Warnf("Dropping non-frame message from %v", p.ID)
			continue
		}
		cmd := wire.Cmd(body[0])
		if !cmd.IsValid() {
			log.Warnf("Dropping frame with unknown command tag "+
				"from %v", p.ID)
			continue
		}
		t.owner.FrameReceived(p, cmd, body[1:])
	}

	cd.close()
	t.mu.Lock()
	delete(t.conns, cd)
	t.mu.Unlock()
	t.owner.PeerDisconnected(p)
	log.Tracef("Reader for %v done", p.ID)
}

// outHandler writes queued frames to the peer until the connection dies.
// It must be run as a goroutine.
func (t *Transport) outHandler(p *mesh.Peer, cd *connData) {
	for {
		select {
		case body := <-cd.out:
			err := cd.ws.WriteMessage(websocket.BinaryMessage, body)
			if err != nil {
				log.Debugf("Unable to write to %v: %v", p.ID,
					err)
				cd.close()
				return
			}

		case <-cd.quit:
			return
		}
	}
}

// Send enqueues a single message toward the given peer.  This is part of
// the mesh.Transport interface implementation.
func (t *Transport) Send(msg wire.Message, p *mesh.Peer) error {
	cd, ok := p.TransportData.(*connData)
	if !ok {
		return fmt.Errorf("peer %v carries no transport state", p.ID)
	}

	payload, err := wire.EncodePayload(msg)
	if err != nil {
		return err
	}
	body := make([]byte, 1+len(payload))
	body[0] = byte(msg.Command())
	copy(body[1:], payload)

	select {
	case <-cd.quit:
		return fmt.Errorf("connection to %v is closed", p.ID)
	default:
	}
	select {
	case cd.out <- body:
		return nil
	default:
		return fmt.Errorf("send queue for %v is full", p.ID)
	}
}

// ClosePeer tears down the connection owned by the given peer.  This is
// part of the mesh.Transport interface implementation.
func (t *Transport) ClosePeer(p *mesh.Peer) {
	if cd, ok := p.TransportData.(*connData); ok {
		cd.close()
	}
}

// Disconnect closes the listener and every live connection and wakes the
// reactor so Run returns.  This is part of the mesh.Transport interface
// implementation.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	server := t.server
	t.server = nil
	t.listener = nil
	quit := t.quit
	t.quit = nil
	conns := make([]*connData, 0, len(t.conns))
	for cd := range t.conns {
		conns = append(conns, cd)
	}
	t.conns = make(map[*connData]struct{})
	t.mu.Unlock()

	if quit != nil {
		close(quit)
	}
	if server != nil {
		server.Close()
	}
	for _, cd := range conns {
		cd.close()
	}
}
