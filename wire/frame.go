// Package wire implements the EmberMesh frame codec: the bit-exact,
// little-endian, length-prefixed binary encoding of the on-wire Frame,
// and the structural checks that let a node reject garbage before it
// ever reaches signature verification.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// Magic is the constant that opens every valid header.
const Magic uint16 = 0xEB01

// CurrentVersion is the only version this implementation speaks.
const CurrentVersion uint8 = 1

// InitialTTL is the hop budget a freshly built frame starts with.
const InitialTTL uint8 = 3

// MessageType is the closed enumerant carried in the header. Dispatch
// over it is exhaustive: every known variant plus an explicit Unknown
// arm, never a default fallthrough that silently accepts garbage.
type MessageType uint8

const (
	Hello     MessageType = 0x01
	PeerList  MessageType = 0x02
	Chat      MessageType = 0x03
	FileChunk MessageType = 0x04
	Ack       MessageType = 0x05
	Unknown   MessageType = 0xFF
)

// BroadcastID is the all-zero destination meaning "every node".
var BroadcastID = [8]byte{}

// Header is the fixed-width portion of a Frame, exactly as laid out
// in SPEC_FULL.md §6. Field order and widths are load-bearing: this
// layout is signed over, and signer/verifier must agree on it bit for
// bit.
type Header struct {
	Magic        uint16
	Version      uint8
	MsgType      MessageType
	TTL          uint8
	Flags        uint8
	MsgID        uint64
	SrcID        [8]byte
	DestID       [8]byte
	SenderPubkey [32]byte
	PayloadLen   uint16
}

const headerSize = 2 + 1 + 1 + 1 + 1 + 8 + 8 + 8 + 32 + 2 // 64 bytes

// Frame is the atomic protocol unit: header, (encrypted) payload, and
// an Ed25519 signature over the canonicalized header plus payload.
type Frame struct {
	Header    Header
	Payload   []byte
	Signature [64]byte
}

var (
	errShortHeader    = errors.New("wire: buffer shorter than header")
	errShortPayload   = errors.New("wire: buffer shorter than declared payload")
	errShortSignature = errors.New("wire: signature length prefix mismatch")
)

func putHeader(buf *bytes.Buffer, h Header) {
	var tmp [headerSize]byte
	binary.LittleEndian.PutUint16(tmp[0:2], h.Magic)
	tmp[2] = h.Version
	tmp[3] = byte(h.MsgType)
	tmp[4] = h.TTL
	tmp[5] = h.Flags
	binary.LittleEndian.PutUint64(tmp[6:14], h.MsgID)
	copy(tmp[14:22], h.SrcID[:])
	copy(tmp[22:30], h.DestID[:])
	copy(tmp[30:62], h.SenderPubkey[:])
	binary.LittleEndian.PutUint16(tmp[62:64], h.PayloadLen)
	buf.Write(tmp[:])
}

func getHeader(b []byte) (Header, error) {
	if len(b) < headerSize {
		return Header{}, errShortHeader
	}
	var h Header
	h.Magic = binary.LittleEndian.Uint16(b[0:2])
	h.Version = b[2]
	h.MsgType = MessageType(b[3])
	h.TTL = b[4]
	h.Flags = b[5]
	h.MsgID = binary.LittleEndian.Uint64(b[6:14])
	copy(h.SrcID[:], b[14:22])
	copy(h.DestID[:], b[22:30])
	copy(h.SenderPubkey[:], b[30:62])
	h.PayloadLen = binary.LittleEndian.Uint16(b[62:64])
	return h, nil
}

// Encode serializes a Frame to its wire form: header, then the
// length-prefixed payload, then the length-prefixed 64-byte signature.
// Variable-length byte strings are prefixed with a 64-bit length, per
// SPEC_FULL.md §6.
func Encode(f Frame) []byte {
	var buf bytes.Buffer
	putHeader(&buf, f.Header)

	var lenPrefix [8]byte
	binary.LittleEndian.PutUint64(lenPrefix[:], uint64(len(f.Payload)))
	buf.Write(lenPrefix[:])
	buf.Write(f.Payload)

	binary.LittleEndian.PutUint64(lenPrefix[:], uint64(len(f.Signature)))
	buf.Write(lenPrefix[:])
	buf.Write(f.Signature[:])

	return buf.Bytes()
}

// Decode parses the wire form produced by Encode. It performs no
// semantic validation beyond what's needed to slice the buffer
// correctly; call IsValidStructure on the result before trusting it.
func Decode(b []byte) (Frame, error) {
	h, err := getHeader(b)
	if err != nil {
		return Frame{}, err
	}
	rest := b[headerSize:]

	if len(rest) < 8 {
		return Frame{}, errShortPayload
	}
	payloadLen := binary.LittleEndian.Uint64(rest[0:8])
	rest = rest[8:]
	if uint64(len(rest)) < payloadLen {
		return Frame{}, errShortPayload
	}
	payload := make([]byte, payloadLen)
	copy(payload, rest[:payloadLen])
	rest = rest[payloadLen:]

	if len(rest) < 8 {
		return Frame{}, errShortSignature
	}
	sigLen := binary.LittleEndian.Uint64(rest[0:8])
	rest = rest[8:]
	if sigLen != 64 || uint64(len(rest)) < sigLen {
		return Frame{}, errShortSignature
	}
	var sig [64]byte
	copy(sig[:], rest[:64])

	return Frame{Header: h, Payload: payload, Signature: sig}, nil
}

// IsValidStructure checks magic, the payload-length/payload-bytes
// agreement, and that ttl has not already reached zero. It does not
// touch signatures or cryptography.
func IsValidStructure(f Frame) bool {
	if f.Header.Magic != Magic {
		return false
	}
	if int(f.Header.PayloadLen) != len(f.Payload) {
		return false
	}
	if f.Header.TTL == 0 {
		return false
	}
	return true
}

// DecrementTTL decrements ttl in place and reports whether the frame
// may still be forwarded (ttl was >= 2 before the call, so it is >= 1
// after). It never lets ttl wrap below zero.
func DecrementTTL(f *Frame) bool {
	if f.Header.TTL > 0 {
		f.Header.TTL--
		return f.Header.TTL >= 1
	}
	return false
}

// SigningDigest computes the bytes that are signed: the header with
// ttl and flags zeroed (so forwarding mutations never invalidate the
// signature), concatenated with the payload. Signer and verifier MUST
// call this exact function — any divergence silently breaks
// authentication.
func SigningDigest(f Frame) []byte {
	h := f.Header
	h.TTL = 0
	h.Flags = 0

	var buf bytes.Buffer
	putHeader(&buf, h)
	buf.Write(f.Payload)
	return buf.Bytes()
}
