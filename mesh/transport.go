// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mesh

import (
	"github.com/weftnet/weft/wire"
)

// Transport is the capability set the peer manager consumes from the
// low-level I/O layer.  An implementation owns socket accept/connect,
// buffered reads and writes, keep-alive and idle-timeout timers, and frame
// reassembly; the manager owns everything above that.
//
// Implementations deliver inbound events through the Owner the manager
// registers with SetOwner.  Send and ClosePeer must be safe to call from any
// goroutine.
type Transport interface {
	// SetOwner registers the back-reference the transport uses to reach
	// the peer table and deliver events.  It must be called exactly once,
	// before Listen.
	SetOwner(owner Owner)

	// Listen binds the listening socket for the given port.  Port zero
	// binds an ephemeral port which is surfaced through Port.
	Listen(port uint16) error

	// Port returns the port bound by the most recent successful Listen,
	// or zero before the first one.
	Port() uint16

	// Run pumps the transport reactor until Disconnect is called.  It is
	// run on its own goroutine by the manager.
	Run()

	// Connect dials the given endpoint and completes the protocol
	// preamble and identity handshake.  On success it returns a peer
	// record populated with the remote identity, endpoint, and transport
	// state; reading does not begin until ProcessConnectedPeer.
	Connect(addr string, port uint16) (*Peer, error)

	// ProcessConnectedPeer begins reading frames from a newly handshaken
	// peer.
	ProcessConnectedPeer(p *Peer)

	// Send enqueues a single message toward the given peer.
	Send(msg wire.Message, p *Peer) error

	// ClosePeer tears down the connection owned by the given peer, if
	// any.  It does not remove the peer from any table; the resulting
	// disconnection is surfaced through the Owner like any other.
	ClosePeer(p *Peer)

	// Disconnect closes the listener and every live connection and wakes
	// the reactor so Run returns.
	Disconnect()
}

// Owner is the surface a Transport calls back into.  The manager implements
// it; the callbacks post into the manager worker and return promptly.
type Owner interface {
	// SelfID returns the local peer identity.
	SelfID() wire.PeerID

	// ListenPort returns the advertised listening port for the identity
	// packet.
	ListenPort() uint16

	// PeerConnected delivers a peer whose admission handshake completed.
	// The manager decides whether to keep it; duplicates are closed.
	PeerConnected(p *Peer)

	// PeerDisconnected reports that the peer's connection was torn down,
	// whether by the remote side, an idle timeout, or a local close.
	PeerDisconnected(p *Peer)

	// FrameReceived delivers one reassembled frame from the peer.  Frames
	// from a single peer are delivered in the order they were
	// reassembled.
	FrameReceived(p *Peer, cmd wire.Cmd, payload []byte)

	// DirectPeers returns the peers currently connected over owned
	// sockets.  Transports use it to drive keep-alive and idle scans.
	DirectPeers() []*Peer
}
