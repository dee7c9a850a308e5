// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgPeerDisconnection implements the Message interface and represents a
// peer_disconnection message.  The sender announces that the identified peer
// left the overlay gracefully; recipients that do not hold a direct
// connection to that peer drop the record and propagate the announcement
// once.
type MsgPeerDisconnection struct {
	ID PeerID
}

// Decode decodes r using the overlay protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgPeerDisconnection) Decode(r io.Reader) error {
	return readPeerID(r, &msg.ID)
}

// Encode encodes the receiver to w using the overlay protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgPeerDisconnection) Encode(w io.Writer) error {
	return writePeerID(w, msg.ID)
}

// Command returns the protocol command tag for the message.  This is part of
// the Message interface implementation.
func (msg *MsgPeerDisconnection) Command() Cmd {
	return CmdPeerDisconnection
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgPeerDisconnection) MaxPayloadLength() uint32 {
	return PeerIDSize
}

// NewMsgPeerDisconnection returns a new peer_disconnection message for the
// given peer.
func NewMsgPeerDisconnection(id PeerID) *MsgPeerDisconnection {
	return &MsgPeerDisconnection{ID: id}
}
