// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
)

// MaxPeersPerList is the maximum number of entries a single peers_list
// message may carry.
const MaxPeersPerList = 4096

// PeerEntry describes one member of the overlay inside a peers_list message.
type PeerEntry struct {
	ID   PeerID
	Addr string
	Port uint16
}

// MsgRetrievePeers implements the Message interface and represents a
// retrieve_peers message.  It carries no payload; the recipient answers with
// a peers_list enumerating every peer it knows other than the requester.
type MsgRetrievePeers struct{}

// Decode decodes r using the overlay protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgRetrievePeers) Decode(r io.Reader) error {
	return nil
}

// Encode encodes the receiver to w using the overlay protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgRetrievePeers) Encode(w io.Writer) error {
	return nil
}

// Command returns the protocol command tag for the message.  This is part of
// the Message interface implementation.
func (msg *MsgRetrievePeers) Command() Cmd {
	return CmdRetrievePeers
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgRetrievePeers) MaxPayloadLength() uint32 {
	return 0
}

// NewMsgRetrievePeers returns a new retrieve_peers message.
func NewMsgRetrievePeers() *MsgRetrievePeers {
	return &MsgRetrievePeers{}
}

// MsgPeersList implements the Message interface and represents a peers_list
// message.  It carries the sender's current view of the overlay membership
// as (id, address, port) triples.
type MsgPeersList struct {
	Peers []PeerEntry
}

// AddPeer adds the specified entry to the list of peers stored in the
// message.  An attempt to store more than MaxPeersPerList entries returns an
// error.
func (msg *MsgPeersList) AddPeer(entry PeerEntry) error {
	const op = "MsgPeersList.AddPeer"

	if len(msg.Peers) >= MaxPeersPerList {
		str := fmt.Sprintf("too many peers for message [count %d, "+
			"max %d]", len(msg.Peers)+1, MaxPeersPerList)
		return messageError(op, ErrTooManyPeers, str)
	}
	if len(entry.Addr) > MaxAddrLen {
		str := fmt.Sprintf("address is too long [len %d, max %d]",
			len(entry.Addr), MaxAddrLen)
		return messageError(op, ErrAddrTooLong, str)
	}
	msg.Peers = append(msg.Peers, entry)
	return nil
}

// Decode decodes r using the overlay protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgPeersList) Decode(r io.Reader) error {
	const op = "MsgPeersList.Decode"

	var count uint16
	if err := readUint16LE(r, &count); err != nil {
		return err
	}
	if count > MaxPeersPerList {
		str := fmt.Sprintf("too many peers in message [count %d, "+
			"max %d]", count, MaxPeersPerList)
		return messageError(op, ErrTooManyPeers, str)
	}

	msg.Peers = make([]PeerEntry, 0, count)
	for i := 0; i < int(count); i++ {
		var entry PeerEntry
		if err := readPeerID(r, &entry.ID); err != nil {
			return err
		}
		if err := readUint16LE(r, &entry.Port); err != nil {
			return err
		}
		var addrLen uint8
		if err := readUint8(r, &addrLen); err != nil {
			return err
		}
		addr := make([]byte, addrLen)
		if _, err := io.ReadFull(r, addr); err != nil {
			return err
		}
		entry.Addr = string(addr)
		msg.Peers = append(msg.Peers, entry)
	}
	return nil
}

// Encode encodes the receiver to w using the overlay protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgPeersList) Encode(w io.Writer) error {
	const op = "MsgPeersList.Encode"

	if len(msg.Peers) > MaxPeersPerList {
		str := fmt.Sprintf("too many peers in message [count %d, "+
			"max %d]", len(msg.Peers), MaxPeersPerList)
		return messageError(op, ErrTooManyPeers, str)
	}
	if err := writeUint16LE(w, uint16(len(msg.Peers))); err != nil {
		return err
	}
	for i := range msg.Peers {
		entry := &msg.Peers[i]
		if len(entry.Addr) > MaxAddrLen {
			str := fmt.Sprintf("address is too long [len %d, "+
				"max %d]", len(entry.Addr), MaxAddrLen)
			return messageError(op, ErrAddrTooLong, str)
		}
		if err := writePeerID(w, entry.ID); err != nil {
			return err
		}
		if err := writeUint16LE(w, entry.Port); err != nil {
			return err
		}
		if err := writeUint8(w, uint8(len(entry.Addr))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, entry.Addr); err != nil {
			return err
		}
	}
	return nil
}

// Command returns the protocol command tag for the message.  This is part of
// the Message interface implementation.
func (msg *MsgPeersList) Command() Cmd {
	return CmdPeersList
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.  This is part of the Message interface implementation.
func (msg *MsgPeersList) MaxPayloadLength() uint32 {
	// maxEntryLen is the max length of a single serialized entry.
	const maxEntryLen = PeerIDSize + 2 + 1 + MaxAddrLen
	return 2 + MaxPeersPerList*maxEntryLen
}

// NewMsgPeersList returns a new peers_list message with room for the
// provided number of entries.
func NewMsgPeersList(capacity int) *MsgPeersList {
	if capacity > MaxPeersPerList {
		capacity = MaxPeersPerList
	}
	return &MsgPeersList{
		Peers: make([]PeerEntry, 0, capacity),
	}
}
