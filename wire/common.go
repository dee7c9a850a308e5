// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"io"
)

var (
	// littleEndian is a convenience variable since binary.LittleEndian is
	// quite long.
	littleEndian = binary.LittleEndian
)

// readUint8 reads a byte and stores it to *value.
func readUint8(r io.Reader, value *uint8) error {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	*value = b[0]
	return nil
}

// readUint16LE reads the little endian encoding of a uint16 and stores it to
// *value.
func readUint16LE(r io.Reader, value *uint16) error {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	*value = littleEndian.Uint16(b[:])
	return nil
}

// readUint32LE reads the little endian encoding of a uint32 and stores it to
// *value.
func readUint32LE(r io.Reader, value *uint32) error {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	*value = littleEndian.Uint32(b[:])
	return nil
}

// writeUint8 writes a single byte to w.
func writeUint8(w io.Writer, value uint8) error {
	b := [1]byte{value}
	_, err := w.Write(b[:])
	return err
}

// writeUint16LE writes the little endian encoding of a uint16 to w.
func writeUint16LE(w io.Writer, value uint16) error {
	var b [2]byte
	littleEndian.PutUint16(b[:], value)
	_, err := w.Write(b[:])
	return err
}

// writeUint32LE writes the little endian encoding of a uint32 to w.
func writeUint32LE(w io.Writer, value uint32) error {
	var b [4]byte
	littleEndian.PutUint32(b[:], value)
	_, err := w.Write(b[:])
	return err
}
