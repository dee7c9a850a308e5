// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package tcpio

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/weftnet/weft/mesh"
	"github.com/weftnet/weft/wire"
)

// frameEvent records one frame delivered to a stub owner.
type frameEvent struct {
	from    wire.PeerID
	cmd     wire.Cmd
	payload []byte
}

// stubOwner implements the mesh.Owner interface for exercising the
// transport without a peer manager.
type stubOwner struct {
	id        wire.PeerID
	transport *Transport

	connected    chan *mesh.Peer
	disconnected chan *mesh.Peer
	frames       chan frameEvent

	mu     sync.Mutex
	direct []*mesh.Peer
}

func newStubOwner(t *Transport) *stubOwner {
	return &stubOwner{
		id:           wire.NewPeerID(),
		transport:    t,
		connected:    make(chan *mesh.Peer, 8),
		disconnected: make(chan *mesh.Peer, 8),
		frames:       make(chan frameEvent, 8),
	}
}

func (o *stubOwner) SelfID() wire.PeerID {
	return o.id
}

func (o *stubOwner) ListenPort() uint16 {
	return o.transport.Port()
}

func (o *stubOwner) PeerConnected(p *mesh.Peer) {
	o.mu.Lock()
	o.direct = append(o.direct, p)
	o.mu.Unlock()
	o.transport.ProcessConnectedPeer(p)
	o.connected <- p
}

func (o *stubOwner) PeerDisconnected(p *mesh.Peer) {
	select {
	case o.disconnected <- p:
	default:
	}
}

func (o *stubOwner) FrameReceived(p *mesh.Peer, cmd wire.Cmd, payload []byte) {
	o.frames <- frameEvent{from: p.ID, cmd: cmd, payload: payload}
}

func (o *stubOwner) DirectPeers() []*mesh.Peer {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*mesh.Peer, len(o.direct))
	copy(out, o.direct)
	return out
}

// startTransport returns a running transport bound to an ephemeral loopback
// port together with its stub owner.
func startTransport(t *testing.T) (*Transport, *stubOwner) {
	t.Helper()

	transport := New(nil)
	owner := newStubOwner(transport)
	transport.SetOwner(owner)
	if err := transport.Listen(0); err != nil {
		t.Fatalf("unable to listen: %v", err)
	}
	go transport.Run()
	t.Cleanup(transport.Disconnect)
	return transport, owner
}

// TestLoopbackAdmission ensures two transports complete the preamble and
// identity handshake against each other and can exchange frames.
func TestLoopbackAdmission(t *testing.T) {
	_, serverOwner := startTransport(t)
	clientTransport, clientOwner := startTransport(t)

	serverPort := serverOwner.transport.Port()
	peer, err := clientTransport.Connect("127.0.0.1", serverPort)
	if err != nil {
		t.Fatalf("unable to connect: %v", err)
	}
	if peer.ID != serverOwner.id {
		t.Fatalf("wrong remote identity: got %v want %v", peer.ID,
			serverOwner.id)
	}
	if peer.Port != serverPort {
		t.Fatalf("wrong advertised port: got %d want %d", peer.Port,
			serverPort)
	}
	clientTransport.ProcessConnectedPeer(peer)

	// The server observes the inbound admission with the client identity
	// and listening port.
	var inbound *mesh.Peer
	select {
	case inbound = <-serverOwner.connected:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for inbound admission")
	}
	if inbound.ID != clientOwner.id {
		t.Fatalf("wrong inbound identity: got %v want %v", inbound.ID,
			clientOwner.id)
	}
	if inbound.Port != clientTransport.Port() {
		t.Fatalf("wrong inbound advertised port: got %d want %d",
			inbound.Port, clientTransport.Port())
	}

	// Exchange one frame in each direction.
	payload := []byte{0x01, 0x02, 0x03}
	msg := wire.NewMsgSendTo(clientOwner.id, serverOwner.id, payload)
	if err := clientTransport.Send(msg, peer); err != nil {
		t.Fatalf("unable to send: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case ev := <-serverOwner.frames:
			// Skip over automatic keep-alive probes.
			if ev.cmd == wire.CmdKeepAlive {
				continue
			}
			if ev.cmd != wire.CmdSendTo {
				t.Fatalf("wrong command: %v", ev.cmd)
			}
			decoded, err := wire.DecodeMessage(ev.cmd, ev.payload)
			if err != nil {
				t.Fatalf("unable to decode frame: %v", err)
			}
			sendTo := decoded.(*wire.MsgSendTo)
			if !bytes.Equal(sendTo.Data, payload) {
				t.Fatalf("payload mismatch: %x", sendTo.Data)
			}
			done = true
		case <-deadline:
			t.Fatal("timeout waiting for frame")
		}
	}

	reply := wire.NewMsgKeepAlive()
	if err := serverOwner.transport.Send(reply, inbound); err != nil {
		t.Fatalf("unable to reply: %v", err)
	}
	select {
	case ev := <-clientOwner.frames:
		if ev.cmd != wire.CmdKeepAlive {
			t.Fatalf("wrong command: %v", ev.cmd)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for reply frame")
	}
}

// TestClosePeerSurfacesDisconnection ensures tearing a peer down surfaces
// as a disconnection through the owner on both ends.
func TestClosePeerSurfacesDisconnection(t *testing.T) {
	_, serverOwner := startTransport(t)
	clientTransport, clientOwner := startTransport(t)

	peer, err := clientTransport.Connect("127.0.0.1",
		serverOwner.transport.Port())
	if err != nil {
		t.Fatalf("unable to connect: %v", err)
	}
	clientTransport.ProcessConnectedPeer(peer)
	select {
	case <-serverOwner.connected:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for inbound admission")
	}

	clientTransport.ClosePeer(peer)

	select {
	case gone := <-clientOwner.disconnected:
		if gone.ID != peer.ID {
			t.Fatalf("wrong peer reported: %v", gone.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for local disconnection")
	}
	select {
	case <-serverOwner.disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for remote disconnection")
	}
}

// TestConnectProtocolMismatch ensures a listener speaking a different
// protocol is rejected with ErrProtocolMismatch and no peer is produced.
func TestConnectProtocolMismatch(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to listen: %v", err)
	}
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// A foreign protocol identifier.
		conn.Write([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06,
			0x07})
		buf := make([]byte, 64)
		conn.Read(buf)
	}()

	transport := New(nil)
	owner := newStubOwner(transport)
	transport.SetOwner(owner)

	port := uint16(listener.Addr().(*net.TCPAddr).Port)
	_, err = transport.Connect("127.0.0.1", port)
	if !errors.Is(err, wire.ErrProtocolMismatch) {
		t.Fatalf("expected ErrProtocolMismatch, got %v", err)
	}
}
