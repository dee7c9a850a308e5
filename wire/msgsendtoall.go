// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgSendToAll implements the Message interface and represents a send_to_all
// message.  It carries an application payload broadcast by the source to the
// entire overlay.  Recipients deliver it locally and never re-broadcast;
// every direct peer receives the broadcast straight from the origin and
// bridged peers receive it as a relayed send_to with the broadcast flag set.
type MsgSendToAll struct {
	Source PeerID
	Data   []byte
}

// Decode decodes r using the overlay protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgSendToAll) Decode(r io.Reader) error {
	if err := readPeerID(r, &msg.Source); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	msg.Data = data
	return nil
}

// Encode encodes the receiver to w using the overlay protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgSendToAll) Encode(w io.Writer) error {
	if err := writePeerID(w, msg.Source); err != nil {
		return err
	}
	_, err := w.Write(msg.Data)
	return err
}

// Command returns the protocol command tag for the message.  This is part of
// the Message interface implementation.
func (msg *MsgSendToAll) Command() Cmd {
	return CmdSendToAll
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgSendToAll) MaxPayloadLength() uint32 {
	return MaxFramePayload - 1
}

// NewMsgSendToAll returns a new send_to_all message originated by source
// carrying the provided bytes.
func NewMsgSendToAll(source PeerID, data []byte) *MsgSendToAll {
	return &MsgSendToAll{Source: source, Data: data}
}
