// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package mesh implements the weft overlay peer manager.

The peer manager owns the set of known peers, runs the admission handshake,
executes the overlay control protocol (membership dissemination, distance and
bridge negotiation, graceful disconnection propagation), dispatches
application payloads to registered listeners, and forwards traffic on behalf
of bridged pairs.

A node joins the overlay by dialing any one existing member.  Once admitted
it learns the full membership and establishes, where possible, direct
connections to every other member.  When a direct connection can not be
established a third peer is elected to bridge messages between the two.

# Concurrency

A single background worker goroutine owns the peer table, the forwarding
table, and all command handling.  Every command handler and every listener
callback runs on that worker, so listener bodies must not block and must not
re-enter operations that wait on the worker, such as Disconnect.  Listeners
may add or remove other listeners; the effect is observed from the next event
onward.

SendTo, SendToAll, Connect, Disconnect, and the listener registry operations
are safe to call from any goroutine.

# Transports

The manager is written against the Transport interface and works with any
implementation that provides the required capability set.  The tcpio package
provides the reference TCP transport and the wsio package an alternative one
on top of WebSocket.
*/
package mesh
