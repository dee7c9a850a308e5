// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package wsio provides a WebSocket transport for the weft overlay.

It implements the same contract as the reference TCP transport in the tcpio
package, which makes it a drop-in replacement for environments where raw TCP
is unavailable, such as behind HTTP-only middleboxes.

Each overlay frame rides a single binary WebSocket message consisting of the
one-byte command tag followed by the command payload; the outer length
prefix of the TCP framing is subsumed by the message boundary.  The protocol
preamble and the identity packet ride the first two messages after the
WebSocket upgrade completes.
*/
package wsio
