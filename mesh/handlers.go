// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mesh

import (
	"sort"
	"sync/atomic"

	"github.com/weftnet/weft/wire"
)

// commandHandlers maps command tags to their handlers.  The table is indexed
// by tag, so dispatching an inbound frame is a single bounds-checked load.
var commandHandlers = [wire.CmdNullCommand]func(*Manager, *Peer, wire.Message){
	wire.CmdSendTo:            (*Manager).onSendTo,
	wire.CmdSendToAll:         (*Manager).onSendToAll,
	wire.CmdForwardTo:         (*Manager).onForwardTo,
	wire.CmdStopForwarding:    (*Manager).onStopForwarding,
	wire.CmdForwardingTo:      (*Manager).onForwardingTo,
	wire.CmdConnectTo:         (*Manager).onConnectTo,
	wire.CmdCantConnect:       (*Manager).onCantConnect,
	wire.CmdUpdateDistance:    (*Manager).onUpdateDistance,
	wire.CmdRetrieveDistance:  (*Manager).onRetrieveDistance,
	wire.CmdRetrievePeers:     (*Manager).onRetrievePeers,
	wire.CmdPeersList:         (*Manager).onPeersList,
	wire.CmdPeerDisconnection: (*Manager).onPeerDisconnection,
	wire.CmdKeepAlive:         (*Manager).onKeepAlive,
}

// handleFrame decodes one inbound frame and invokes the matching command
// handler.  Malformed payloads are logged and dropped without tearing the
// connection.
func (m *Manager) handleFrame(p *Peer, cmd wire.Cmd, payload []byte) {
	if m.peers[p.ID] != p {
		// The peer was removed while the frame was in flight.
		log.Debugf("Dropping %v frame from removed peer %v", cmd, p.ID)
		return
	}

	msg, err := wire.DecodeMessage(cmd, payload)
	if err != nil {
		log.Warnf("Dropping malformed %v frame from %v: %v", cmd,
			p.ID, err)
		return
	}

	handler := commandHandlers[cmd]
	if handler == nil {
		log.Warnf("Dropping frame with unhandled command %v from %v",
			cmd, p.ID)
		return
	}
	handler(m, p, msg)
}

// handleNewPeer runs the local side of admission for a peer whose handshake
// completed.  Duplicate admissions for an already-direct identity are
// rejected without disturbing the existing record.  An admission for an
// identity previously known through a bridge upgrades the record to a
// direct connection.
func (m *Manager) handleNewPeer(p *Peer, seed bool) {
	if p.ID == m.self.ID {
		log.Debug("Rejecting connection carrying our own identity")
		m.transport.ClosePeer(p)
		return
	}

	existing := m.peers[p.ID]
	if existing != nil && existing.direct() {
		log.Debugf("Rejecting duplicate admission from %v", p.ID)
		m.transport.ClosePeer(p)
		return
	}

	p.Distance = DistanceDirect
	p.BridgeID = wire.PeerID{}
	m.mu.Lock()
	m.peers[p.ID] = p
	m.mu.Unlock()

	if existing != nil && existing.bridged() {
		// The peer was reachable through a bridge before and is now
		// direct; release the relay.
		if bridge := m.peers[existing.BridgeID]; bridge != nil && bridge.direct() {
			m.sendMsg(wire.NewMsgStopForwarding(p.ID), bridge)
		}
	}

	log.Infof("New direct peer %v", p)
	if existing == nil {
		m.notifyConnection(p)
	}
	m.transport.ProcessConnectedPeer(p)

	if seed {
		m.sendMsg(wire.NewMsgRetrievePeers(), p)
	}

	// The connection changed our distance to this peer; let the rest of
	// the overlay reconverge on routes through us.
	m.propagateToDirect(wire.NewMsgUpdateDistance(p.ID, DistanceDirect), p)
}

// handleDonePeer reacts to the loss of a direct peer's connection: the
// record is dropped, peers bridged through it fall back to unreachable, and
// the departure is gossiped to the remaining direct peers.
func (m *Manager) handleDonePeer(p *Peer) {
	if m.peers[p.ID] != p {
		// A rejected duplicate or an already-removed peer.
		return
	}

	m.mu.Lock()
	delete(m.peers, p.ID)
	m.mu.Unlock()
	m.dropForwardingFor(p.ID)

	log.Infof("Lost direct peer %v", p)

	// Any peer relying on the departed one as its bridge is now
	// unreachable until a new bridge elects itself.
	for _, q := range m.peers {
		if q.BridgeID != p.ID {
			continue
		}
		m.mu.Lock()
		q.Distance = DistanceUnreachable
		q.BridgeID = wire.PeerID{}
		m.mu.Unlock()
		m.propagateToDirect(wire.NewMsgUpdateDistance(q.ID,
			DistanceUnreachable), nil)
	}

	m.propagateToDirect(wire.NewMsgPeerDisconnection(p.ID), nil)
	m.notifyDisconnection(p)
}

// handleSend applies the relay decision for an outbound unicast: deliver on
// the peer's own socket when direct, on the bridge's socket when bridged,
// and not at all when unreachable.
func (m *Manager) handleSend(target wire.PeerID, data []byte) {
	p := m.peers[target]
	if p == nil {
		log.Debugf("Dropping send to unknown peer %v: %v", target,
			ErrPeerGone)
		return
	}

	switch {
	case p.direct():
		m.sendMsg(wire.NewMsgSendTo(m.self.ID, target, data), p)

	case p.bridged():
		bridge := m.peers[p.BridgeID]
		if bridge == nil || !bridge.direct() {
			log.Debugf("Dropping send to %v: bridge %v is gone",
				target, p.BridgeID)
			return
		}
		m.sendMsg(wire.NewMsgSendTo(m.self.ID, target, data), bridge)

	default:
		// Unreachable; no send is attempted.
		log.Debugf("Dropping send to unreachable peer %v", target)
	}
}

// handleBroadcast emits a broadcast: one send_to_all per direct peer plus
// one relayed send_to per bridged peer, carrying the broadcast flag so the
// final recipient still observes it as sent to the whole overlay.  Bridges
// relay exactly once and recipients never re-broadcast.
func (m *Manager) handleBroadcast(data []byte) {
	broadcast := wire.NewMsgSendToAll(m.self.ID, data)
	for _, p := range m.peers {
		switch {
		case p.direct():
			m.sendMsg(broadcast, p)

		case p.bridged():
			bridge := m.peers[p.BridgeID]
			if bridge == nil || !bridge.direct() {
				continue
			}
			relay := wire.NewMsgSendTo(m.self.ID, p.ID, data)
			relay.Broadcast = true
			m.sendMsg(relay, bridge)
		}
	}
}

// handleDisconnect tears the overlay down: every socket is closed and a
// disconnection event is emitted for each known peer in lexicographic
// identity order, after which the worker halts.
func (m *Manager) handleDisconnect() {
	ids := make([]wire.PeerID, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	for _, id := range ids {
		p := m.peers[id]
		if p.direct() {
			m.transport.ClosePeer(p)
		}
		m.mu.Lock()
		delete(m.peers, id)
		m.mu.Unlock()
		m.notifyDisconnection(p)
	}
	m.forwarding = make(map[wire.PeerID]wire.PeerID)

	m.transport.Disconnect()
	close(m.quit)
	atomic.StoreInt32(&m.state, stateStopped)
	log.Info("Peer manager disconnected")
}

// onSendTo delivers a unicast payload locally or relays it toward its
// bridged target exactly once.
func (m *Manager) onSendTo(p *Peer, raw wire.Message) {
	msg := raw.(*wire.MsgSendTo)

	if msg.Target == m.self.ID {
		m.deliverData(msg.Source, msg.Data, msg.Broadcast)
		return
	}

	// We are the bridge; consult the forwarding table.
	target := m.peers[msg.Target]
	requester, ok := m.forwarding[msg.Target]
	if !ok || requester != p.ID || target == nil || !target.direct() {
		log.Debugf("Unable to relay %d bytes from %v toward %v",
			len(msg.Data), p.ID, msg.Target)
		m.sendMsg(wire.NewMsgCantConnect(msg.Target), p)
		return
	}
	m.sendMsg(msg, target)
}

// onSendToAll delivers a broadcast payload locally.  Recipients never
// re-broadcast: every direct peer of the origin receives the broadcast from
// the origin itself and bridged peers receive it as a relayed send_to.
func (m *Manager) onSendToAll(p *Peer, raw wire.Message) {
	msg := raw.(*wire.MsgSendToAll)
	m.deliverData(msg.Source, msg.Data, true)
}

// onForwardTo installs a relay for the requesting peer toward the
// identified target, confirming both sides, or answers cant_connect when
// the target is not directly reachable.
func (m *Manager) onForwardTo(p *Peer, raw wire.Message) {
	msg := raw.(*wire.MsgForwardTo)

	target := m.peers[msg.ID]
	if target == nil || !target.direct() {
		m.sendMsg(wire.NewMsgCantConnect(msg.ID), p)
		return
	}

	m.forwarding[msg.ID] = p.ID
	m.forwarding[p.ID] = msg.ID
	log.Debugf("Now relaying between %v and %v", p.ID, msg.ID)
	m.sendMsg(wire.NewMsgForwardingTo(msg.ID), p)
	m.sendMsg(wire.NewMsgForwardingTo(p.ID), target)
}

// onStopForwarding drops the relay entries installed for the requesting
// peer and the identified target.
func (m *Manager) onStopForwarding(p *Peer, raw wire.Message) {
	msg := raw.(*wire.MsgStopForwarding)

	if requester, ok := m.forwarding[msg.ID]; ok && requester == p.ID {
		delete(m.forwarding, msg.ID)
	}
	if target, ok := m.forwarding[p.ID]; ok && target == msg.ID {
		delete(m.forwarding, p.ID)
	}
}

// onForwardingTo accepts (or declines) a bridge offer: the sending peer now
// relays our traffic toward the identified target.  When two acquaintances
// offer to bridge the same pair, the one with the lexicographically smaller
// identity wins and the other is told to stand down.
func (m *Manager) onForwardingTo(p *Peer, raw wire.Message) {
	msg := raw.(*wire.MsgForwardingTo)
	if msg.ID == m.self.ID {
		return
	}

	target := m.peers[msg.ID]
	if target == nil {
		// First sight of this peer; it joins the overlay through a
		// bridge path.
		target = &Peer{
			ID:       msg.ID,
			Distance: DistanceDirect + 1,
			BridgeID: p.ID,
		}
		m.mu.Lock()
		m.peers[msg.ID] = target
		m.mu.Unlock()
		log.Infof("New bridged peer %v via %v", msg.ID, p.ID)
		m.notifyConnection(target)
		m.propagateToDirect(wire.NewMsgUpdateDistance(msg.ID,
			target.Distance), p)
		return
	}

	if target.direct() {
		// Already directly connected; the relay is unnecessary.
		m.sendMsg(wire.NewMsgStopForwarding(msg.ID), p)
		return
	}

	if target.BridgeID == p.ID {
		// Re-confirmation from the incumbent bridge.
		m.setBridge(target, p.ID, DistanceDirect+1)
		return
	}

	if target.bridged() {
		incumbent := m.peers[target.BridgeID]
		if incumbent != nil && incumbent.direct() {
			if incumbent.ID.Compare(p.ID) <= 0 {
				// The incumbent has the smaller identity and
				// wins the election; the offerer defers.
				m.sendMsg(wire.NewMsgStopForwarding(msg.ID), p)
				return
			}
			m.sendMsg(wire.NewMsgStopForwarding(msg.ID), incumbent)
		}
	}

	m.setBridge(target, p.ID, DistanceDirect+1)
	m.propagateToDirect(wire.NewMsgUpdateDistance(msg.ID,
		target.Distance), p)
}

// onConnectTo reacts to an introduction by dialing the identified peer at
// the advertised endpoint.  Dialing blocks, so it runs off the worker; a
// failure is reported back to the introducer with cant_connect, which is
// what ultimately triggers bridge election.
func (m *Manager) onConnectTo(p *Peer, raw wire.Message) {
	msg := raw.(*wire.MsgConnectTo)

	if msg.ID == m.self.ID || m.peers[msg.ID] != nil {
		return
	}

	introducer := p
	go func(id wire.PeerID, addr string, port uint16) {
		q, err := m.transport.Connect(addr, port)
		if err != nil {
			log.Debugf("Unable to dial introduced peer %v at "+
				"%s:%d: %v", id, addr, port, err)
			m.sendMsg(wire.NewMsgCantConnect(id), introducer)
			return
		}
		if q.ID != id {
			// Whoever answered is not who we were introduced to.
			m.sendMsg(wire.NewMsgCantConnect(id), introducer)
		}
		m.PeerConnected(q)
	}(msg.ID, msg.Addr, msg.Port)
}

// onCantConnect reacts to a failed dial report.  When the reporter and the
// unreachable peer are both direct, this node is a common acquaintance and
// elects itself as their bridge.  When the report comes from our own bridge
// toward a peer we route through it, the peer becomes unreachable.
func (m *Manager) onCantConnect(p *Peer, raw wire.Message) {
	msg := raw.(*wire.MsgCantConnect)
	if msg.ID == m.self.ID {
		return
	}

	target := m.peers[msg.ID]
	if target == nil {
		log.Debugf("Ignoring cant_connect from %v for unknown peer %v",
			p.ID, msg.ID)
		return
	}

	if target.direct() {
		// Bridge election: relay between the reporter and the target.
		m.forwarding[msg.ID] = p.ID
		m.forwarding[p.ID] = msg.ID
		log.Debugf("Elected self as bridge between %v and %v", p.ID,
			msg.ID)
		m.sendMsg(wire.NewMsgForwardingTo(msg.ID), p)
		m.sendMsg(wire.NewMsgForwardingTo(p.ID), target)
		return
	}

	if target.bridged() && target.BridgeID == p.ID {
		// Our bridge can no longer relay toward the target.
		m.mu.Lock()
		target.Distance = DistanceUnreachable
		target.BridgeID = wire.PeerID{}
		m.mu.Unlock()
		m.propagateToDirect(wire.NewMsgUpdateDistance(msg.ID,
			DistanceUnreachable), p)
	}
}

// onUpdateDistance applies the distance flood: recipients that route toward
// the identified peer through the sender recompute their own distance as
// the received value plus one, capped at unreachable, and propagate further
// only when the value actually changed.
func (m *Manager) onUpdateDistance(p *Peer, raw wire.Message) {
	msg := raw.(*wire.MsgUpdateDistance)
	if msg.ID == m.self.ID {
		return
	}

	distance := msg.Distance
	if distance < DistanceUnreachable {
		distance++
	}

	target := m.peers[msg.ID]
	if target == nil {
		if distance >= DistanceUnreachable {
			return
		}
		// First sight of this peer; it is reachable through the
		// sender.  Ask the sender to relay for us so the route is
		// usable, and record it optimistically meanwhile.
		target = &Peer{
			ID:       msg.ID,
			Distance: distance,
			BridgeID: p.ID,
		}
		m.mu.Lock()
		m.peers[msg.ID] = target
		m.mu.Unlock()
		log.Infof("New bridged peer %v via %v (distance %d)", msg.ID,
			p.ID, distance)
		m.sendMsg(wire.NewMsgForwardTo(msg.ID), p)
		m.notifyConnection(target)
		m.propagateToDirect(wire.NewMsgUpdateDistance(msg.ID,
			distance), p)
		return
	}

	if target.direct() {
		// A direct connection always beats gossip.
		return
	}

	if target.BridgeID == p.ID {
		if distance == target.Distance {
			return
		}
		if distance >= DistanceUnreachable {
			m.setBridge(target, wire.PeerID{}, DistanceUnreachable)
		} else {
			m.setBridge(target, p.ID, distance)
		}
		m.propagateToDirect(wire.NewMsgUpdateDistance(msg.ID,
			target.Distance), p)
		return
	}

	if distance < target.Distance {
		// The sender offers a shorter route; ask it to relay for us.
		// The switch happens when the relay is confirmed with
		// forwarding_to.
		m.sendMsg(wire.NewMsgForwardTo(msg.ID), p)
	}
}

// onRetrieveDistance answers a distance query from the local table.
func (m *Manager) onRetrieveDistance(p *Peer, raw wire.Message) {
	msg := raw.(*wire.MsgRetrieveDistance)

	distance := DistanceUnreachable
	if msg.ID == m.self.ID {
		distance = DistanceSelf
	} else if target := m.peers[msg.ID]; target != nil {
		distance = target.Distance
	}
	m.sendMsg(wire.NewMsgUpdateDistance(msg.ID, distance), p)
}

// onRetrievePeers answers a roster query with every peer we know other than
// the requester itself.
func (m *Manager) onRetrievePeers(p *Peer, raw wire.Message) {
	reply := wire.NewMsgPeersList(len(m.peers))
	for _, q := range m.peers {
		if q.ID == p.ID {
			continue
		}
		entry := wire.PeerEntry{ID: q.ID, Addr: q.Addr, Port: q.Port}
		if err := reply.AddPeer(entry); err != nil {
			log.Warnf("Unable to include %v in peers list: %v",
				q.ID, err)
			break
		}
	}
	m.sendMsg(reply, p)
}

// onPeersList continues admission: the joiner attempts to dial every roster
// entry in list order and reports every failed dial back to the sender with
// connect_to.  The sender handles that report in onConnectTo and does not
// relay it to other peers.
func (m *Manager) onPeersList(p *Peer, raw wire.Message) {
	msg := raw.(*wire.MsgPeersList)

	entries := make([]wire.PeerEntry, 0, len(msg.Peers))
	for _, entry := range msg.Peers {
		if entry.ID == m.self.ID || m.peers[entry.ID] != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return
	}

	log.Debugf("Dialing %d peers from the roster of %v", len(entries),
		p.ID)
	seed := p
	go func() {
		for _, entry := range entries {
			q, err := m.transport.Connect(entry.Addr, entry.Port)
			if err != nil {
				m.sendMsg(wire.NewMsgConnectTo(entry.ID,
					entry.Addr, entry.Port), seed)
				continue
			}
			m.PeerConnected(q)
		}
	}()
}

// onPeerDisconnection reacts to graceful-leave gossip.  The loss of a
// direct peer is detected locally through its socket, so only records
// reached through a bridge path are dropped here, and the announcement is
// propagated exactly once.
func (m *Manager) onPeerDisconnection(p *Peer, raw wire.Message) {
	msg := raw.(*wire.MsgPeerDisconnection)
	if msg.ID == m.self.ID {
		return
	}

	target := m.peers[msg.ID]
	if target == nil || target.direct() {
		return
	}

	m.mu.Lock()
	delete(m.peers, msg.ID)
	m.mu.Unlock()
	m.dropForwardingFor(msg.ID)

	log.Infof("Peer %v left the overlay", msg.ID)
	m.propagateToDirect(wire.NewMsgPeerDisconnection(msg.ID), p)
	m.notifyDisconnection(target)
}

// onKeepAlive handles liveness probes.  The transport already reset the
// idle timer when the frame arrived.
func (m *Manager) onKeepAlive(p *Peer, raw wire.Message) {
	log.Tracef("Received keep_alive from %v", p.ID)
}

// deliverData resolves the source peer and invokes the data listeners.
func (m *Manager) deliverData(source wire.PeerID, data []byte, sentToAll bool) {
	from := m.peers[source]
	if from == nil {
		// The source is not in our table (for example a relayed
		// payload that outlived our record of the sender).  Deliver
		// with a detached record.
		from = &Peer{ID: source, Distance: DistanceUnreachable}
	}
	for _, callback := range m.dataListeners.snapshot() {
		callback.(DataListener)(m, from, data, sentToAll)
	}
}

// notifyConnection invokes the connection listeners for the peer.
func (m *Manager) notifyConnection(p *Peer) {
	for _, callback := range m.connListeners.snapshot() {
		callback.(ConnectionListener)(m, p)
	}
}

// notifyDisconnection invokes the disconnection listeners for the peer.
func (m *Manager) notifyDisconnection(p *Peer) {
	for _, callback := range m.dcListeners.snapshot() {
		callback.(DisconnectionListener)(m, p)
	}
}

// sendMsg enqueues a message toward the peer, logging delivery failures.
// Failed sends surface as disconnections through the transport, so they are
// not propagated further here.
func (m *Manager) sendMsg(msg wire.Message, p *Peer) {
	if err := m.transport.Send(msg, p); err != nil {
		log.Debugf("Unable to send %v to %v: %v", msg.Command(), p.ID,
			err)
	}
}

// propagateToDirect sends the message to every direct peer except the
// provided one.
func (m *Manager) propagateToDirect(msg wire.Message, except *Peer) {
	for _, q := range m.peers {
		if !q.direct() || q == except {
			continue
		}
		m.sendMsg(msg, q)
	}
}

// setBridge updates the routing fields of a peer record under the table
// lock so external snapshots stay consistent.
func (m *Manager) setBridge(p *Peer, bridge wire.PeerID, distance uint8) {
	m.mu.Lock()
	p.BridgeID = bridge
	p.Distance = distance
	m.mu.Unlock()
}

// dropForwardingFor removes every forwarding entry that references the
// identity as either target or requester.
func (m *Manager) dropForwardingFor(id wire.PeerID) {
	for target, requester := range m.forwarding {
		if target == id || requester == id {
			delete(m.forwarding, target)
		}
	}
}
