// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// DistanceUnreachable is the hop count that marks a peer as unreachable or
// disconnected.  Distance updates are capped at this value.
const DistanceUnreachable uint8 = 255

// MsgUpdateDistance implements the Message interface and represents an
// update_distance message.  The sender reports its current hop count toward
// the identified peer; recipients that route toward that peer through the
// sender recompute their own distance as the received value plus one, capped
// at DistanceUnreachable, and propagate further only when the value actually
// changed.
type MsgUpdateDistance struct {
	ID       PeerID
	Distance uint8
}

// Decode decodes r using the overlay protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgUpdateDistance) Decode(r io.Reader) error {
	if err := readPeerID(r, &msg.ID); err != nil {
		return err
	}
	return readUint8(r, &msg.Distance)
}

// Encode encodes the receiver to w using the overlay protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgUpdateDistance) Encode(w io.Writer) error {
	if err := writePeerID(w, msg.ID); err != nil {
		return err
	}
	return writeUint8(w, msg.Distance)
}

// Command returns the protocol command tag for the message.  This is part of
// the Message interface implementation.
func (msg *MsgUpdateDistance) Command() Cmd {
	return CmdUpdateDistance
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgUpdateDistance) MaxPayloadLength() uint32 {
	return PeerIDSize + 1
}

// NewMsgUpdateDistance returns a new update_distance message for the given
// peer and hop count.
func NewMsgUpdateDistance(id PeerID, distance uint8) *MsgUpdateDistance {
	return &MsgUpdateDistance{ID: id, Distance: distance}
}

// MsgRetrieveDistance implements the Message interface and represents a
// retrieve_distance message.  The recipient answers with an update_distance
// for the identified peer from its own table.
type MsgRetrieveDistance struct {
	ID PeerID
}

// Decode decodes r using the overlay protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgRetrieveDistance) Decode(r io.Reader) error {
	return readPeerID(r, &msg.ID)
}

// Encode encodes the receiver to w using the overlay protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgRetrieveDistance) Encode(w io.Writer) error {
	return writePeerID(w, msg.ID)
}

// Command returns the protocol command tag for the message.  This is part of
// the Message interface implementation.
func (msg *MsgRetrieveDistance) Command() Cmd {
	return CmdRetrieveDistance
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgRetrieveDistance) MaxPayloadLength() uint32 {
	return PeerIDSize
}

// NewMsgRetrieveDistance returns a new retrieve_distance message for the
// given peer.
func NewMsgRetrieveDistance(id PeerID) *MsgRetrieveDistance {
	return &MsgRetrieveDistance{ID: id}
}
