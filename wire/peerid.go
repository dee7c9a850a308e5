// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"

	"github.com/google/uuid"
)

// PeerIDSize is the number of bytes in a peer identifier.
const PeerIDSize = 16

// PeerID uniquely identifies a peer on the overlay.  It is generated once per
// process at startup and never changes for the lifetime of the process.
//
// Identifiers form a total order under lexicographic byte comparison.  That
// order is the sole tie-breaker for symmetric decisions on the overlay, such
// as electing a bridge between two peers that can not reach each other
// directly.
type PeerID [PeerIDSize]byte

// NewPeerID returns a freshly generated random peer identifier.
func NewPeerID() PeerID {
	return PeerID(uuid.New())
}

// IsZero returns whether the identifier is the all-zero value, which is never
// assigned to a live peer and doubles as "no peer" in bridge references.
func (id PeerID) IsZero() bool {
	return id == PeerID{}
}

// Compare returns -1, 0, or 1 depending on whether id is lexicographically
// smaller than, equal to, or larger than other.
func (id PeerID) Compare(other PeerID) int {
	return bytes.Compare(id[:], other[:])
}

// Less returns whether id sorts lexicographically before other.
func (id PeerID) Less(other PeerID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// String returns the canonical UUID form of the identifier.
func (id PeerID) String() string {
	return uuid.UUID(id).String()
}

// readPeerID reads a peer identifier from r.
func readPeerID(r io.Reader, id *PeerID) error {
	_, err := io.ReadFull(r, id[:])
	return err
}

// writePeerID writes a peer identifier to w.
func writePeerID(w io.Writer, id PeerID) error {
	_, err := w.Write(id[:])
	return err
}
