// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
)

// Message is an interface that describes a weft overlay message.  A type that
// implements Message has complete control over the representation of its data
// and may therefore contain additional or fewer fields than those which are
// used directly in the protocol-encoded message.
type Message interface {
	Decode(io.Reader) error
	Encode(io.Writer) error
	Command() Cmd
	MaxPayloadLength() uint32
}

// MakeEmptyMessage creates a message of the appropriate concrete type based
// on the command tag.
func MakeEmptyMessage(cmd Cmd) (Message, error) {
	const op = "MakeEmptyMessage"

	var msg Message
	switch cmd {
	case CmdSendTo:
		msg = &MsgSendTo{}

	case CmdSendToAll:
		msg = &MsgSendToAll{}

	case CmdForwardTo:
		msg = &MsgForwardTo{}

	case CmdStopForwarding:
		msg = &MsgStopForwarding{}

	case CmdForwardingTo:
		msg = &MsgForwardingTo{}

	case CmdConnectTo:
		msg = &MsgConnectTo{}

	case CmdCantConnect:
		msg = &MsgCantConnect{}

	case CmdUpdateDistance:
		msg = &MsgUpdateDistance{}

	case CmdRetrieveDistance:
		msg = &MsgRetrieveDistance{}

	case CmdRetrievePeers:
		msg = &MsgRetrievePeers{}

	case CmdPeersList:
		msg = &MsgPeersList{}

	case CmdPeerDisconnection:
		msg = &MsgPeerDisconnection{}

	case CmdKeepAlive:
		msg = &MsgKeepAlive{}

	default:
		str := fmt.Sprintf("unhandled command [%v]", cmd)
		return nil, messageError(op, ErrUnknownCmd, str)
	}
	return msg, nil
}
