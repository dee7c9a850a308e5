// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
weft is a demonstration node for the weft peer-to-peer overlay mesh.

Every participant is simultaneously a client and a server: a node joins the
overlay by dialing any one existing member, learns the full membership, and
establishes direct connections where it can.  When two members can not reach
each other directly, a common acquaintance is elected to bridge messages
between them.

Usage:

	weft [OPTIONS]

Start the first node of a new overlay:

	weft --listen 3479

Join from another machine and say hello:

	weft --connect host:3479 --broadcast hello

Use --help to show the full list of options, including the WebSocket
transport and SOCKS5 proxy support.
*/
package main
