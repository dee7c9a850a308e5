// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package wire implements the weft overlay protocol.

This package is designed to handle everything that travels over the
network between mesh peers: the protocol preamble that is exchanged
immediately after a connection is established, the identity packet that
follows it, and the length-prefixed frames that carry the closed set of
overlay commands afterwards.

# Wire Format

Every frame on the wire consists of a 4-byte little-endian length
followed by a one-byte command tag and the command payload.  All
multi-byte integers are little endian with the single exception of the
two port bytes inside the identity packet, which are transmitted high
byte first for compatibility with existing deployments.

# Messages

Each command has a concrete message type which implements the Message
interface.  The interface allows messages to be read from and written to
an underlying reader/writer while enforcing a per-command maximum payload
length so a malicious peer can not induce unbounded allocations.

# Errors

Protocol errors returned by this package are of type MessageError, which
wraps an ErrorKind, so callers can inspect the reason for a failure with
errors.Is.  Errors from the underlying reader or writer, such as io.EOF,
are returned unchanged.
*/
package wire
