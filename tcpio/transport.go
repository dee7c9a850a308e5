// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package tcpio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/weftnet/weft/mesh"
	"github.com/weftnet/weft/wire"
)

const (
	// defaultDialTimeout is the amount of time to wait for a dial to
	// complete before giving up.
	defaultDialTimeout = time.Second * 30

	// defaultHandshakeTimeout bounds the preamble and identity exchange
	// on a fresh connection.
	defaultHandshakeTimeout = time.Second * 10

	// defaultKeepAliveInterval is how often keep_alive probes are sent on
	// every live connection.
	defaultKeepAliveInterval = time.Second * 5

	// defaultIdleTimeout is how long a connection may stay silent before
	// it is considered dead and torn down.  Idle scans run at a fifth of
	// this interval.
	defaultIdleTimeout = time.Second * 120

	// sendQueueLen is the number of frames that may be queued toward a
	// single peer before sends start failing.
	sendQueueLen = 256
)

// DialFunc is the signature of the function used to establish outbound
// connections.  It matches net.Dialer.Dial and the decred go-socks proxy
// dialer, so either can be plugged in directly.
type DialFunc func(network, addr string) (net.Conn, error)

// Config holds the configuration options related to the TCP transport.
type Config struct {
	// Dial establishes outbound connections.  It defaults to a plain
	// net.Dialer with DialTimeout applied.
	Dial DialFunc

	// DialTimeout is the amount of time to wait for a dial to complete
	// before giving up.  It is only applied to the default dialer.
	DialTimeout time.Duration

	// KeepAliveInterval is how often keep_alive probes are sent on every
	// live connection.
	KeepAliveInterval time.Duration

	// IdleTimeout is how long a connection may stay silent before it is
	// torn down.
	IdleTimeout time.Duration
}

// connData is the opaque per-peer transport state stored in the peer
// record.  It owns the socket and the outbound frame queue.
type connData struct {
	conn    net.Conn
	inbound bool
	out     chan []byte
	quit    chan struct{}

	closeOnce sync.Once

	mu       sync.Mutex
	lastSeen time.Time
}

// touch records traffic on the connection for the idle scan.
func (cd *connData) touch() {
	cd.mu.Lock()
	cd.lastSeen = time.Now()
	cd.mu.Unlock()
}

// idleSince returns the time of the last observed traffic.
func (cd *connData) idleSince() time.Time {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return cd.lastSeen
}

// close tears the connection down exactly once.
func (cd *connData) close() {
	cd.closeOnce.Do(func() {
		close(cd.quit)
		cd.conn.Close()
	})
}

// Transport is the reference TCP implementation of the mesh.Transport
// interface.  Use New to create one and hand it to mesh.New.
type Transport struct {
	cfg   Config
	owner mesh.Owner

	mu       sync.Mutex
	listener net.Listener
	port     uint16
	conns    map[*connData]struct{}
	quit     chan struct{}
	wg       sync.WaitGroup
}

// New returns a TCP transport with the provided configuration.  A nil
// config selects defaults throughout.
func New(cfg *Config) *Transport {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.Dial == nil {
		dialer := &net.Dialer{Timeout: c.DialTimeout}
		c.Dial = dialer.Dial
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = defaultKeepAliveInterval
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	return &Transport{
		cfg:   c,
		conns: make(map[*connData]struct{}),
	}
}

// SetOwner registers the back-reference the transport uses to reach the
// peer table and deliver events.  This is part of the mesh.Transport
// interface implementation.
func (t *Transport) SetOwner(owner mesh.Owner) {
	t.owner = owner
}

// Listen binds the listening socket for the given port.  Port zero binds an
// ephemeral port which is surfaced through Port.  This is part of the
// mesh.Transport interface implementation.
func (t *Transport) Listen(port uint16) error {
	listener, err := net.Listen("tcp", net.JoinHostPort("",
		strconv.Itoa(int(port))))
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.listener = listener
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
	listener, quit := t.listener, t.quit
	t.mu.Unlock()
	if listener == nil {
		return
	}

	log.Infof("Transport listening on %s", listener.Addr())
	t.wg.Add(3)
	go t.listenHandler(listener, quit)
	go t.keepAliveHandler(quit)
	go t.idleHandler(quit)

	<-quit
	t.wg.Wait()
	log.Trace("Transport reactor done")
}

// listenHandler accepts incoming connections on the given listener.  It
// must be run as a goroutine.
func (t *Transport) listenHandler(listener net.Listener, quit chan struct{}) {
	defer t.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-quit:
				return
			default:
			}
			log.Errorf("Can't accept connection: %v", err)
			continue
		}
		go func() {
			p, err := t.handshake(conn, true)
			if err != nil {
				log.Debugf("Dropping inbound connection from "+
					"%s: %v", conn.RemoteAddr(), err)
				conn.Close()
				return
			}
			t.owner.PeerConnected(p)
		}()
	}
}

// keepAliveHandler periodically probes every live connection so idle but
// healthy links are not torn down by the remote idle scan.  It must be run
// as a goroutine.
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
	conn, err := t.cfg.Dial("tcp", net.JoinHostPort(addr,
		strconv.Itoa(int(port))))
	if err != nil {
		return nil, err
	}
	p, err := t.handshake(conn, false)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// handshake performs the protocol preamble and identity exchange on a fresh
// connection and returns the populated peer record.  Both sides write first
// and then read; the exchange is symmetric for inbound and outbound
// connections.
func (t *Transport) handshake(conn net.Conn, inbound bool) (*mesh.Peer, error) {
	deadline := time.Now().Add(defaultHandshakeTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if err := wire.WritePreamble(conn); err != nil {
		return nil, err
	}
	if err := wire.ReadPreamble(conn); err != nil {
		return nil, err
	}

	if err := wire.WriteIdentity(conn, t.owner.SelfID(),
		t.owner.ListenPort()); err != nil {
		return nil, err
	}
	id, listenPort, err := wire.ReadIdentity(conn)
	if err != nil {
		return nil, err
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, err
	}

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}

	cd := &connData{
		conn:    conn,
		inbound: inbound,
		out:     make(chan []byte, sendQueueLen),
		quit:    make(chan struct{}),
	}
	cd.touch()
	t.trackConn(cd)

	log.Debugf("Completed %s handshake with %v at %s",
		directionString(inbound), id, conn.RemoteAddr())
	return &mesh.Peer{
		ID:            id,
		Addr:          host,
		Port:          listenPort,
		Distance:      mesh.DistanceDirect,
		TransportData: cd,
	}, nil
}

// trackConn registers the connection for teardown on Disconnect.
func (t *Transport) trackConn(cd *connData) {
	t.mu.Lock()
	t.conns[cd] = struct{}{}
	t.mu.Unlock()
}

// untrackConn removes the connection from the teardown set.
func (t *Transport) untrackConn(cd *connData) {
	t.mu.Lock()
	delete(t.conns, cd)
	t.mu.Unlock()
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
// reports the resulting disconnection to the owner.  Frames tagged with an
// unknown command are consumed and dropped without tearing the connection.
// It must be run as a goroutine.
func (t *Transport) inHandler(p *mesh.Peer, cd *connData) {
	br := bufio.NewReader(cd.conn)
	for {
		cmd, payload, err := wire.ReadFrame(br)
		if err != nil {
			var msgErr wire.MessageError
			if errors.As(err, &msgErr) && errors.Is(err, wire.ErrUnknownCmd) {
				log.Warnf("Dropping frame with unknown command "+
					"tag from %v", p.ID)
				cd.touch()
				continue
			}
			break
		}
		cd.touch()
		t.owner.FrameReceived(p, cmd, payload)
	}

	cd.close()
	t.untrackConn(cd)
	t.owner.PeerDisconnected(p)
	log.Tracef("Reader for %v done", p.ID)
}

// outHandler writes queued frames to the peer until the connection dies.
// It must be run as a goroutine.
func (t *Transport) outHandler(p *mesh.Peer, cd *connData) {
	for {
		select {
		case frame := <-cd.out:
			if _, err := cd.conn.Write(frame); err != nil {
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

// Send enqueues a single message toward the given peer.  It is safe to call
// from any goroutine.  This is part of the mesh.Transport interface
// implementation.
func (t *Transport) Send(msg wire.Message, p *mesh.Peer) error {
	cd, ok := p.TransportData.(*connData)
	if !ok {
		return fmt.Errorf("peer %v carries no transport state", p.ID)
	}

	var buf bytes.Buffer
	if err := wire.WriteMessage(&buf, msg); err != nil {
		return err
	}

	select {
	case <-cd.quit:
		return fmt.Errorf("connection to %v is closed", p.ID)
	default:
	}
	select {
	case cd.out <- buf.Bytes():
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
	listener := t.listener
	t.listener = nil
	quit := t.quit
	t.quit = nil
	conns := make([]*connData, 0, len(t.conns))
	for cd := range t.conns {
		conns = append(conns, cd)
	}
	t.conns = make(map[*connData]struct{})
	t.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	if quit != nil {
		close(quit)
	}
	for _, cd := range conns {
		cd.close()
	}
}
