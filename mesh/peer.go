// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mesh

import (
	"fmt"

	"github.com/weftnet/weft/wire"
)

// Hop counts from self.  Everything between DistanceDirect and
// DistanceUnreachable exclusive is reached through a bridge.
const (
	// DistanceSelf is the hop count of the local peer.
	DistanceSelf uint8 = 0

	// DistanceDirect is the hop count of a peer connected over an owned
	// socket.
	DistanceDirect uint8 = 1

	// DistanceUnreachable marks a peer as unreachable or disconnected.
	// The forwarding engine never attempts a send toward such a peer.
	DistanceUnreachable uint8 = wire.DistanceUnreachable
)

// Peer is the record the manager holds for each known remote peer, plus a
// distinguished record for self (Distance zero, carrying the listening
// port).
//
// The bridge, when any, is referenced by identifier rather than by pointer
// and resolved through the peer table on each use.  This keeps the graph
// free of ownership cycles and makes distance updates atomic at the table
// level.
//
// All fields other than TransportData are owned by the manager worker.
// External readers obtain copies through Manager.Peers and Manager.Peer.
type Peer struct {
	// ID is the stable identity of the peer.  It never changes for the
	// lifetime of the record.
	ID wire.PeerID

	// Addr and Port are the last known reachable endpoint.
	Addr string
	Port uint16

	// Distance is the hop count from self.  DistanceDirect means the
	// peer's socket is live and owned by this manager.
	Distance uint8

	// BridgeID identifies the direct peer that currently relays our
	// traffic toward this peer.  It is the zero identifier when the peer
	// is direct or unreachable.
	BridgeID wire.PeerID

	// TransportData is opaque transport-supplied state such as the socket
	// handle and buffered reader/writer.  The manager treats it as a
	// black box.
	TransportData any
}

// String returns a human-readable summary of the peer.
func (p *Peer) String() string {
	return fmt.Sprintf("%s (%s:%d, distance %d)", p.ID, p.Addr, p.Port,
		p.Distance)
}

// direct returns whether the peer is connected over an owned socket.
func (p *Peer) direct() bool {
	return p.Distance == DistanceDirect
}

// bridged returns whether the peer is currently reached through a bridge.
func (p *Peer) bridged() bool {
	return p.Distance > DistanceDirect && p.Distance < DistanceUnreachable
}
