// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// sendToFlagBroadcast marks a relayed payload that originated as a broadcast
// so the final recipient still observes it as sent to the whole overlay.
const sendToFlagBroadcast uint8 = 1 << 0

// MsgSendTo implements the Message interface and represents a send_to
// message.  It carries an application payload addressed to a single peer.
//
// When the target can not be reached directly the frame is emitted on the
// elected bridge's connection instead; the bridge consults its forwarding
// table and re-emits the frame toward the target exactly once.  The source
// and target identifiers therefore ride in band.
type MsgSendTo struct {
	Source    PeerID
	Target    PeerID
	Broadcast bool
	Data      []byte
}

// Decode decodes r using the overlay protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgSendTo) Decode(r io.Reader) error {
	if err := readPeerID(r, &msg.Source); err != nil {
		return err
	}
	if err := readPeerID(r, &msg.Target); err != nil {
		return err
	}
	var flags uint8
	if err := readUint8(r, &flags); err != nil {
		return err
	}
	msg.Broadcast = flags&sendToFlagBroadcast != 0

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	msg.Data = data
	return nil
}

// Encode encodes the receiver to w using the overlay protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgSendTo) Encode(w io.Writer) error {
	if err := writePeerID(w, msg.Source); err != nil {
		return err
	}
	if err := writePeerID(w, msg.Target); err != nil {
		return err
	}
	var flags uint8
	if msg.Broadcast {
		flags |= sendToFlagBroadcast
	}
	if err := writeUint8(w, flags); err != nil {
		return err
	}
	_, err := w.Write(msg.Data)
	return err
}

// Command returns the protocol command tag for the message.  This is part of
// the Message interface implementation.
func (msg *MsgSendTo) Command() Cmd {
	return CmdSendTo
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgSendTo) MaxPayloadLength() uint32 {
	return MaxFramePayload - 1
}

// NewMsgSendTo returns a new send_to message addressed from source to target
// carrying the provided bytes.
func NewMsgSendTo(source, target PeerID, data []byte) *MsgSendTo {
	return &MsgSendTo{Source: source, Target: target, Data: data}
}
