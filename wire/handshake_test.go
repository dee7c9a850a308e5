// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"errors"
	"testing"
)

// TestPreambleRoundTrip ensures the protocol preamble encodes to the two
// expected little endian halves and is accepted on read.
func TestPreambleRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePreamble(&buf); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	// 755960663 and 1683390694, little endian.
	want := []byte{0x57, 0x0b, 0x0f, 0x2d, 0xe6, 0x80, 0x56, 0x64}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("preamble encoding mismatch: got %x want %x",
			buf.Bytes(), want)
	}

	if err := ReadPreamble(&buf); err != nil {
		t.Fatalf("own preamble rejected: %v", err)
	}
}

// TestPreambleMismatch ensures a foreign protocol identifier is rejected
// with ErrProtocolMismatch.
func TestPreambleMismatch(t *testing.T) {
	var buf bytes.Buffer
	if err := writeUint32LE(&buf, ProtocolID1+1); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	if err := writeUint32LE(&buf, ProtocolID2); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	err := ReadPreamble(&buf)
	if !errors.Is(err, ErrProtocolMismatch) {
		t.Fatalf("expected ErrProtocolMismatch, got %v", err)
	}
}

// TestIdentityRoundTrip ensures the identity packet survives an encode and
// decode cycle, including the high-byte-first port quirk.
func TestIdentityRoundTrip(t *testing.T) {
	id := NewPeerID()
	const port = 3479

	var buf bytes.Buffer
	if err := WriteIdentity(&buf, id, port); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	// [len:1][id:16][portHi:1][portLo:1]
	raw := buf.Bytes()
	if len(raw) != 19 || raw[0] != 18 {
		t.Fatalf("bad identity packet shape: %x", raw)
	}
	if raw[17] != 0x0d || raw[18] != 0x97 {
		t.Fatalf("port bytes not high first: %x", raw[17:])
	}

	gotID, gotPort, err := ReadIdentity(&buf)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if gotID != id || gotPort != port {
		t.Fatalf("round trip mismatch: got %v:%d want %v:%d", gotID,
			gotPort, id, port)
	}
}

// TestIdentityBadLength ensures identity packets whose length prefix does
// not match the fixed identifier scheme are rejected.
func TestIdentityBadLength(t *testing.T) {
	tests := []struct {
		name   string
		length byte
	}{
		{name: "zero", length: 0},
		{name: "too short", length: 10},
		{name: "exceeds the declared buffer length", length: 0xfd},
	}

	for _, test := range tests {
		packet := make([]byte, 1+18)
		packet[0] = test.length
		_, _, err := ReadIdentity(bytes.NewReader(packet))
		if !errors.Is(err, ErrMalformedIdentity) {
			t.Fatalf("%s: expected ErrMalformedIdentity, got %v",
				test.name, err)
		}
	}
}

// TestPeerIDOrdering ensures identifiers order lexicographically by byte
// comparison.
func TestPeerIDOrdering(t *testing.T) {
	var small, large PeerID
	small[0] = 0x01
	large[0] = 0x02

	if !small.Less(large) || large.Less(small) {
		t.Fatal("lexicographic ordering broken")
	}
	if small.Compare(small) != 0 {
		t.Fatal("identifier not equal to itself")
	}
	if small.IsZero() {
		t.Fatal("non-zero identifier reported zero")
	}
	var zero PeerID
	if !zero.IsZero() {
		t.Fatal("zero identifier not reported zero")
	}
}
