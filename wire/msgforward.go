// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// The relay negotiation family.  Each of these messages carries a single peer
// identifier as its payload:
//
//   - forward_to asks the recipient to relay the sender's traffic toward the
//     identified peer.
//   - forwarding_to informs the recipient that the sender now relays its
//     traffic toward the identified peer.
//   - stop_forwarding cancels a relay, either because the requester no longer
//     needs it or because a better bridge won the election.
//   - cant_connect reports a failed dial toward the identified peer and is
//     what triggers bridge election at a common acquaintance.

// MsgForwardTo implements the Message interface and represents a forward_to
// message.
type MsgForwardTo struct {
	ID PeerID
}

// Decode decodes r using the overlay protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgForwardTo) Decode(r io.Reader) error {
	return readPeerID(r, &msg.ID)
}

// Encode encodes the receiver to w using the overlay protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgForwardTo) Encode(w io.Writer) error {
	return writePeerID(w, msg.ID)
}

// Command returns the protocol command tag for the message.  This is part of
// the Message interface implementation.
func (msg *MsgForwardTo) Command() Cmd {
	return CmdForwardTo
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgForwardTo) MaxPayloadLength() uint32 {
	return PeerIDSize
}

// NewMsgForwardTo returns a new forward_to message for the given peer.
func NewMsgForwardTo(id PeerID) *MsgForwardTo {
	return &MsgForwardTo{ID: id}
}

// MsgStopForwarding implements the Message interface and represents a
// stop_forwarding message.
type MsgStopForwarding struct {
	ID PeerID
}

// Decode decodes r using the overlay protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgStopForwarding) Decode(r io.Reader) error {
	return readPeerID(r, &msg.ID)
}

// Encode encodes the receiver to w using the overlay protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgStopForwarding) Encode(w io.Writer) error {
	return writePeerID(w, msg.ID)
}

// Command returns the protocol command tag for the message.  This is part of
// the Message interface implementation.
func (msg *MsgStopForwarding) Command() Cmd {
	return CmdStopForwarding
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgStopForwarding) MaxPayloadLength() uint32 {
	return PeerIDSize
}

// NewMsgStopForwarding returns a new stop_forwarding message for the given
// peer.
func NewMsgStopForwarding(id PeerID) *MsgStopForwarding {
	return &MsgStopForwarding{ID: id}
}

// MsgForwardingTo implements the Message interface and represents a
// forwarding_to message.
type MsgForwardingTo struct {
	ID PeerID
}

// Decode decodes r using the overlay protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgForwardingTo) Decode(r io.Reader) error {
	return readPeerID(r, &msg.ID)
}

// Encode encodes the receiver to w using the overlay protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgForwardingTo) Encode(w io.Writer) error {
	return writePeerID(w, msg.ID)
}

// Command returns the protocol command tag for the message.  This is part of
// the Message interface implementation.
func (msg *MsgForwardingTo) Command() Cmd {
	return CmdForwardingTo
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgForwardingTo) MaxPayloadLength() uint32 {
	return PeerIDSize
}

// NewMsgForwardingTo returns a new forwarding_to message for the given peer.
func NewMsgForwardingTo(id PeerID) *MsgForwardingTo {
	return &MsgForwardingTo{ID: id}
}

// MsgCantConnect implements the Message interface and represents a
// cant_connect message.
type MsgCantConnect struct {
	ID PeerID
}

// Decode decodes r using the overlay protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgCantConnect) Decode(r io.Reader) error {
	return readPeerID(r, &msg.ID)
}

// Encode encodes the receiver to w using the overlay protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgCantConnect) Encode(w io.Writer) error {
	return writePeerID(w, msg.ID)
}

// Command returns the protocol command tag for the message.  This is part of
// the Message interface implementation.
func (msg *MsgCantConnect) Command() Cmd {
	return CmdCantConnect
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgCantConnect) MaxPayloadLength() uint32 {
	return PeerIDSize
}

// NewMsgCantConnect returns a new cant_connect message for the given peer.
func NewMsgCantConnect(id PeerID) *MsgCantConnect {
	return &MsgCantConnect{ID: id}
}
