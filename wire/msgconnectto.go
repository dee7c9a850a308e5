// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
)

// MaxAddrLen is the maximum length in bytes of an advertised address.
const MaxAddrLen = 255

// MsgConnectTo implements the Message interface and represents a connect_to
// message.  The sender asks the recipient to attempt a dial to the
// identified peer at the given endpoint; a joiner issues it to its seed for
// every roster entry it failed to dial itself.  A recipient that does not
// know the identified peer dials it and answers a failed dial with
// cant_connect; a recipient that already knows it ignores the message.  The
// message is not relayed onward.
type MsgConnectTo struct {
	ID   PeerID
	Port uint16
	Addr string
}

// Decode decodes r using the overlay protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgConnectTo) Decode(r io.Reader) error {
	const op = "MsgConnectTo.Decode"

	if err := readPeerID(r, &msg.ID); err != nil {
		return err
	}
	if err := readUint16LE(r, &msg.Port); err != nil {
		return err
	}
	addr, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(addr) > MaxAddrLen {
		str := fmt.Sprintf("address is too long [len %d, max %d]",
			len(addr), MaxAddrLen)
		return messageError(op, ErrAddrTooLong, str)
	}
	msg.Addr = string(addr)
	return nil
}

// Encode encodes the receiver to w using the overlay protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgConnectTo) Encode(w io.Writer) error {
	const op = "MsgConnectTo.Encode"

	if len(msg.Addr) > MaxAddrLen {
		str := fmt.Sprintf("address is too long [len %d, max %d]",
			len(msg.Addr), MaxAddrLen)
		return messageError(op, ErrAddrTooLong, str)
	}
	if err := writePeerID(w, msg.ID); err != nil {
		return err
	}
	if err := writeUint16LE(w, msg.Port); err != nil {
		return err
	}
	_, err := io.WriteString(w, msg.Addr)
	return err
}

// Command returns the protocol command tag for the message.  This is part of
// the Message interface implementation.
func (msg *MsgConnectTo) Command() Cmd {
	return CmdConnectTo
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgConnectTo) MaxPayloadLength() uint32 {
	return PeerIDSize + 2 + MaxAddrLen
}

// NewMsgConnectTo returns a new connect_to message for the given peer and
// endpoint.
func NewMsgConnectTo(id PeerID, addr string, port uint16) *MsgConnectTo {
	return &MsgConnectTo{ID: id, Port: port, Addr: addr}
}
