// Copyright (c) 2023-2026 The Weft developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"fmt"
	"io"
)

// MaxFramePayload is the maximum number of bytes a frame body may occupy
// regardless of other individual limits imposed by messages themselves.  The
// body includes the one-byte command tag.
const MaxFramePayload = 1024 * 1024 // 1MiB

// frameHeaderSize is the number of bytes in the length prefix of a frame.
const frameHeaderSize = 4

// ReadFrame reads a single length-prefixed frame from r and returns its
// command tag and payload.  The payload excludes the tag byte.
//
// A zero length prefix fails with ErrMalformedFrame, a length prefix above
// MaxFramePayload fails with ErrPayloadTooLarge, and an unknown command tag
// fails with ErrUnknownCmd.  The reader is left positioned after the
// offending frame in the last case so the connection can be preserved.
func ReadFrame(r io.Reader) (Cmd, []byte, error) {
	const op = "ReadFrame"

	var bodyLen uint32
	if err := readUint32LE(r, &bodyLen); err != nil {
		return 0, nil, err
	}
	if bodyLen == 0 {
		str := "frame body may not be empty"
		return 0, nil, messageError(op, ErrMalformedFrame, str)
	}
	if bodyLen > MaxFramePayload {
		str := fmt.Sprintf("frame body is too large [%d, max %d]",
			bodyLen, MaxFramePayload)
		return 0, nil, messageError(op, ErrPayloadTooLarge, str)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}

	cmd := Cmd(body[0])
	if !cmd.IsValid() {
		str := fmt.Sprintf("unknown command tag %d", body[0])
		return cmd, nil, messageError(op, ErrUnknownCmd, str)
	}
	return cmd, body[1:], nil
}

// WriteFrame writes a single length-prefixed frame carrying the provided
// command tag and payload to w.
func WriteFrame(w io.Writer, cmd Cmd, payload []byte) error {
	const op = "WriteFrame"

	if !cmd.IsValid() {
		str := fmt.Sprintf("refusing to send unknown command tag %d",
			uint8(cmd))
		return messageError(op, ErrUnknownCmd, str)
	}
	bodyLen := 1 + len(payload)
	if bodyLen > MaxFramePayload {
		str := fmt.Sprintf("frame body is too large [%d, max %d]",
			bodyLen, MaxFramePayload)
		return messageError(op, ErrPayloadTooLarge, str)
	}

	buf := make([]byte, frameHeaderSize+bodyLen)
	littleEndian.PutUint32(buf[:4], uint32(bodyLen))
	buf[4] = byte(cmd)
	copy(buf[5:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads the next frame from r, decodes it into the concrete
// message type for its command, and returns the message.
//
// Decoding failures for a syntactically valid frame are reported as
// MessageError so the caller can drop the frame while preserving the
// connection.  A payload that does not decode wraps ErrMalformedFrame; a
// payload over the command's limits wraps ErrPayloadTooLarge,
// ErrAddrTooLong, or ErrTooManyPeers.
func ReadMessage(r io.Reader) (Message, error) {
	cmd, payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodeMessage(cmd, payload)
}

// DecodeMessage decodes a reassembled frame body into the concrete message
// type for the provided command.
func DecodeMessage(cmd Cmd, payload []byte) (Message, error) {
	const op = "DecodeMessage"

	msg, err := MakeEmptyMessage(cmd)
	if err != nil {
		return nil, err
	}
	if uint32(len(payload)) > msg.MaxPayloadLength() {
		str := fmt.Sprintf("payload exceeds max length for command "+
			"[%v] - got %d bytes, max %d", cmd, len(payload),
			msg.MaxPayloadLength())
		return nil, messageError(op, ErrPayloadTooLarge, str)
	}
	if err := msg.Decode(bytes.NewReader(payload)); err != nil {
		if _, ok := err.(MessageError); ok {
			return nil, err
		}
		str := fmt.Sprintf("unable to decode command [%v]: %v", cmd, err)
		return nil, messageError(op, ErrMalformedFrame, str)
	}
	return msg, nil
}

// WriteMessage encodes the provided message and writes it to w as a single
// frame.
func WriteMessage(w io.Writer, msg Message) error {
	const op = "WriteMessage"

	var bw bytes.Buffer
	if err := msg.Encode(&bw); err != nil {
		return err
	}
	payload := bw.Bytes()
	if uint32(len(payload)) > msg.MaxPayloadLength() {
		str := fmt.Sprintf("message payload is too large - encoded %d "+
			"bytes, but maximum payload size for command [%v] is %d",
			len(payload), msg.Command(), msg.MaxPayloadLength())
		return messageError(op, ErrPayloadTooLarge, str)
	}
	return WriteFrame(w, msg.Command(), payload)
}

// EncodePayload encodes the provided message body without the surrounding
// frame.  It is used by transports that provide their own framing.
func EncodePayload(msg Message) ([]byte, error) {
	var bw bytes.Buffer
	if err := msg.Encode(&bw); err != nil {
		return nil, err
	}
	return bw.Bytes(), nil
}
