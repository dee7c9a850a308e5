// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import "fmt"

// Cmd is the one-byte command tag carried as the first byte of every frame
// body.  The set of commands is closed; CmdNullCommand is the exclusive upper
// bound used for tag validation and never appears on the wire.
type Cmd uint8

// Commands used in frames which describe the type of message.
const (
	// CmdSendTo carries an application payload addressed to a single
	// peer, possibly relayed through a bridge.
	CmdSendTo Cmd = iota

	// CmdSendToAll carries an application payload broadcast to every
	// member of the overlay.
	CmdSendToAll

	// CmdForwardTo asks the recipient to relay the sender's traffic
	// toward the identified peer.
	CmdForwardTo

	// CmdStopForwarding asks the recipient to stop relaying toward the
	// identified peer.
	CmdStopForwarding

	// CmdForwardingTo informs the recipient that the sender accepted a
	// relay role and now bridges toward the identified peer.
	CmdForwardingTo

	// CmdConnectTo asks the recipient to attempt a dial to the identified
	// peer at the given endpoint.
	CmdConnectTo

	// CmdCantConnect informs the recipient that the sender failed to dial
	// the identified peer.
	CmdCantConnect

	// CmdUpdateDistance reports a new hop count toward the identified
	// peer.
	CmdUpdateDistance

	// CmdRetrieveDistance requests a distance report for the identified
	// peer.
	CmdRetrieveDistance

	// CmdRetrievePeers requests the recipient's view of the overlay
	// membership.
	CmdRetrievePeers

	// CmdPeersList carries the sender's view of the overlay membership.
	CmdPeersList

	// CmdPeerDisconnection announces that the identified peer left the
	// overlay gracefully.
	CmdPeerDisconnection

	// CmdKeepAlive resets the remote idle timer and carries no payload.
	CmdKeepAlive

	// CmdNullCommand is the exclusive upper bound for tag validation.
	CmdNullCommand
)

// commandStrings maps commands to their human-readable names for logging.
var commandStrings = map[Cmd]string{
	CmdSendTo:            "send_to",
	CmdSendToAll:         "send_to_all",
	CmdForwardTo:         "forward_to",
	CmdStopForwarding:    "stop_forwarding",
	CmdForwardingTo:      "forwarding_to",
	CmdConnectTo:         "connect_to",
	CmdCantConnect:       "cant_connect",
	CmdUpdateDistance:    "update_distance",
	CmdRetrieveDistance:  "retrieve_distance",
	CmdRetrievePeers:     "retrieve_peers",
	CmdPeersList:         "peers_list",
	CmdPeerDisconnection: "peer_disconnection",
	CmdKeepAlive:         "keep_alive",
	CmdNullCommand:       "null_command",
}

// IsValid returns whether the command is a member of the closed command set
// that is allowed to appear on the wire.
func (c Cmd) IsValid() bool {
	return c < CmdNullCommand
}

// String returns the command name.  Unknown commands render with their
// numeric tag.
func (c Cmd) String() string {
	if s, ok := commandStrings[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown_command_%d", uint8(c))
}
