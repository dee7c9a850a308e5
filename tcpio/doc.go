// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package tcpio provides the reference TCP transport for the weft overlay.

The transport owns socket accept and connect, the protocol preamble and
identity handshake, buffered frame reads and writes, keep-alive probes, and
the idle timeout that tears down silent connections.  Everything above the
frame boundary belongs to the peer manager in the mesh package.

Dialing goes through a configurable dial function, so connections can be
established through a SOCKS5 proxy or any other tunnel that produces a
net.Conn.
*/
package tcpio
