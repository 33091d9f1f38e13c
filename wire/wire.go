// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wire implements the bus wire protocol: frame layout,
// envelope encoding, the payload codec, and the curve25519 handshake
// that secures a connection.
//
// Every connection, on both the ingestion and the broadcast channel,
// carries a stream of frames. A frame is a one byte type, a uint32
// big-endian length, and length bytes of body. On a secured
// connection every body after the handshake is a NaCl box sealed with
// the shared key negotiated during the handshake.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// magic is the protocol magic number, sent in the server hello.
// It's "LBUS" with a non-ASCII high bit.
const magic = 0x4cc25553

// ProtocolVersion is sent by both sides during the handshake.
const ProtocolVersion = 1

// MaxFrameSize is the maximum size of a frame body. A frame
// advertising a larger body is a protocol error.
const MaxFrameSize = 1 << 20

// FrameType is the one byte type header on every frame.
type FrameType byte

const (
	// FrameServerHello is sent by the broker on accept: magic,
	// version, and the broker's public key (secured listeners only).
	FrameServerHello = FrameType(0x01)
	// FrameClientHello is the client's reply: its public key and a
	// sealed challenge proving possession of the private half.
	FrameClientHello = FrameType(0x02)
	// FramePublish carries an envelope from a client to the broker's
	// ingestion endpoint.
	FramePublish = FrameType(0x03)
	// FrameDeliver carries an envelope from the broker to a
	// subscribed client.
	FrameDeliver = FrameType(0x04)
	// FrameSubscribe and FrameUnsubscribe carry a topic token on the
	// broadcast channel.
	FrameSubscribe   = FrameType(0x05)
	FrameUnsubscribe = FrameType(0x06)
	// FramePing and FramePong implement the broker liveness probe.
	FramePing = FrameType(0x07)
	FramePong = FrameType(0x08)
	// FrameSubscribed acknowledges a FrameSubscribe, echoing its
	// topic token. Once the subscriber has it, a subsequently
	// published event on that topic is guaranteed to be delivered.
	FrameSubscribed = FrameType(0x09)
)

func (t FrameType) String() string {
	switch t {
	case FrameServerHello:
		return "ServerHello"
	case FrameClientHello:
		return "ClientHello"
	case FramePublish:
		return "Publish"
	case FrameDeliver:
		return "Deliver"
	case FrameSubscribe:
		return "Subscribe"
	case FrameUnsubscribe:
		return "Unsubscribe"
	case FramePing:
		return "Ping"
	case FramePong:
		return "Pong"
	case FrameSubscribed:
		return "Subscribed"
	}
	return fmt.Sprintf("FrameType(0x%02x)", byte(t))
}

var bin = binary.BigEndian

// WriteFrame writes a complete frame and flushes bw.
func WriteFrame(bw *bufio.Writer, t FrameType, body []byte) error {
	if err := WriteFrameHeader(bw, t, uint32(len(body))); err != nil {
		return err
	}
	if _, err := bw.Write(body); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteFrameHeader writes a frame type and body length, without
// flushing.
func WriteFrameHeader(bw *bufio.Writer, t FrameType, frameLen uint32) error {
	if err := bw.WriteByte(byte(t)); err != nil {
		return err
	}
	return putUint32(bw, frameLen)
}

// ReadFrameHeader reads the next frame's type and body length.
func ReadFrameHeader(br *bufio.Reader) (t FrameType, frameLen uint32, err error) {
	tb, err := br.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	frameLen, err = readUint32(br, MaxFrameSize)
	if err != nil {
		return 0, 0, err
	}
	return FrameType(tb), frameLen, nil
}

// ReadFrame reads one complete frame.
func ReadFrame(br *bufio.Reader) (t FrameType, body []byte, err error) {
	t, frameLen, err := ReadFrameHeader(br)
	if err != nil {
		return 0, nil, err
	}
	body = make([]byte, frameLen)
	if _, err := io.ReadFull(br, body); err != nil {
		return 0, nil, err
	}
	return t, body, nil
}

// ReadFrameType reads a frame and returns its body, failing if the
// frame is not of type want.
func ReadFrameType(br *bufio.Reader, want FrameType) ([]byte, error) {
	t, body, err := ReadFrame(br)
	if err != nil {
		return nil, err
	}
	if t != want {
		return nil, fmt.Errorf("bad frame type %v, want %v", t, want)
	}
	return body, nil
}

func putUint32(w io.ByteWriter, v uint32) error {
	var b [4]byte
	bin.PutUint32(b[:], v)
	for _, bb := range b {
		if err := w.WriteByte(bb); err != nil {
			return err
		}
	}
	return nil
}

func readUint32(r io.Reader, maxVal uint32) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	val := bin.Uint32(b[:])
	if val > maxVal {
		return 0, fmt.Errorf("uint32 %d exceeds limit %d", val, maxVal)
	}
	return val, nil
}
