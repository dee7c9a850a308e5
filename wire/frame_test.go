// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"errors"
	"testing"
)

// TestFrameRoundTrip ensures a message survives a write and read cycle
// through the frame codec.
func TestFrameRoundTrip(t *testing.T) {
	source, target := NewPeerID(), NewPeerID()
	msg := NewMsgSendTo(source, target, []byte{0x01, 0x02, 0x03})
	msg.Broadcast = true

	var buf bytes.Buffer
	if err := WriteMessage(&buf, msg); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	sendTo, ok := got.(*MsgSendTo)
	if !ok {
		t.Fatalf("wrong concrete type: %T", got)
	}
	if sendTo.Source != source || sendTo.Target != target {
		t.Fatalf("addressing mismatch: %v -> %v", sendTo.Source,
			sendTo.Target)
	}
	if !sendTo.Broadcast || !bytes.Equal(sendTo.Data, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("payload mismatch: %+v", sendTo)
	}
}

// TestFrameUnknownCommand ensures a frame tagged with an unknown command is
// consumed entirely so the connection can be preserved, and that the frame
// behind it remains readable.
func TestFrameUnknownCommand(t *testing.T) {
	var buf bytes.Buffer

	// A frame with an out-of-range tag followed by a valid keep_alive.
	body := []byte{byte(CmdNullCommand) + 3, 0xde, 0xad}
	var lenBuf [4]byte
	littleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	buf.Write(lenBuf[:])
	buf.Write(body)
	if err := WriteMessage(&buf, NewMsgKeepAlive()); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	_, _, err := ReadFrame(&buf)
	if !errors.Is(err, ErrUnknownCmd) {
		t.Fatalf("expected ErrUnknownCmd, got %v", err)
	}

	cmd, payload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("stream not resynchronized: %v", err)
	}
	if cmd != CmdKeepAlive || len(payload) != 0 {
		t.Fatalf("wrong follow-up frame: %v with %d payload bytes",
			cmd, len(payload))
	}
}

// TestFrameTooLarge ensures a length prefix beyond the overall cap is
// rejected before any allocation.
func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	littleEndian.PutUint32(lenBuf[:], MaxFramePayload+1)
	buf.Write(lenBuf[:])

	_, _, err := ReadFrame(&buf)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

// TestFrameEmptyBody ensures a zero-length frame body is rejected as
// malformed.
func TestFrameEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	buf.Write(lenBuf[:])

	_, _, err := ReadFrame(&buf)
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
}

// TestDecodePayloadCaps ensures per-command payload limits are enforced on
// decode.
func TestDecodePayloadCaps(t *testing.T) {
	// forwarding_to carries exactly one identifier.
	payload := make([]byte, PeerIDSize+1)
	_, err := DecodeMessage(CmdForwardingTo, payload)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}

	// A truncated identifier fails as malformed without tearing state.
	_, err = DecodeMessage(CmdForwardingTo, payload[:4])
	if !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
}

// TestUpdateDistanceRoundTrip ensures the distance report keeps its hop
// count through the codec.
func TestUpdateDistanceRoundTrip(t *testing.T) {
	id := NewPeerID()
	msg := NewMsgUpdateDistance(id, DistanceUnreachable)

	var buf bytes.Buffer
	if err := WriteMessage(&buf, msg); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	upd := got.(*MsgUpdateDistance)
	if upd.ID != id || upd.Distance != DistanceUnreachable {
		t.Fatalf("round trip mismatch: %+v", upd)
	}
}

// TestConnectToRoundTrip ensures endpoint introductions keep their
// identifier, address, and port through the codec.
func TestConnectToRoundTrip(t *testing.T) {
	id := NewPeerID()
	msg := NewMsgConnectTo(id, "2001:db8::68", 3479)

	var buf bytes.Buffer
	if err := WriteMessage(&buf, msg); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	intro := got.(*MsgConnectTo)
	if intro.ID != id || intro.Addr != "2001:db8::68" || intro.Port != 3479 {
		t.Fatalf("round trip mismatch: %+v", intro)
	}
}
