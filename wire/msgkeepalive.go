// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgKeepAlive implements the Message interface and represents a keep_alive
// message.  It carries no payload and exists solely to reset the remote idle
// timer.
type MsgKeepAlive struct{}

// Decode decodes r using the overlay protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgKeepAlive) Decode(r io.Reader) error {
	return nil
}

// Encode encodes the receiver to w using the overlay protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgKeepAlive) Encode(w io.Writer) error {
	return nil
}

// Command returns the protocol command tag for the message.  This is part of
// the Message interface implementation.
func (msg *MsgKeepAlive) Command() Cmd {
	return CmdKeepAlive
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgKeepAlive) MaxPayloadLength() uint32 {
	return 0
}

// NewMsgKeepAlive returns a new keep_alive message.
func NewMsgKeepAlive() *MsgKeepAlive {
	return &MsgKeepAlive{}
}
