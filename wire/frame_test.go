package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrame() Frame {
	return Frame{
		Header: Header{
			Magic:        Magic,
			Version:      CurrentVersion,
			MsgType:      Chat,
			TTL:          InitialTTL,
			Flags:        0,
			MsgID:        0x0102030405060708,
			SrcID:        [8]byte{1, 2, 3, 4, 5, 6, 7, 8},
			DestID:       [8]byte{9, 10, 11, 12, 13, 14, 15, 16},
			SenderPubkey: [32]byte{0xAA},
			PayloadLen:   5,
		},
		Payload:   []byte("hello"),
		Signature: [64]byte{0xFF},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := sampleFrame()
	b := Encode(f)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, f.Header, got.Header)
	assert.True(t, bytes.Equal(f.Payload, got.Payload))
	assert.Equal(t, f.Signature, got.Signature)
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeRejectsTruncatedSignature(t *testing.T) {
	f := sampleFrame()
	b := Encode(f)
	_, err := Decode(b[:len(b)-10])
	assert.Error(t, err)
}

func TestIsValidStructure(t *testing.T) {
	f := sampleFrame()
	assert.True(t, IsValidStructure(f))

	bad := f
	bad.Header.Magic = 0
	assert.False(t, IsValidStructure(bad))

	bad = f
	bad.Header.PayloadLen = 99
	assert.False(t, IsValidStructure(bad))

	bad = f
	bad.Header.TTL = 0
	assert.False(t, IsValidStructure(bad))
}

func TestDecrementTTL(t *testing.T) {
	f := sampleFrame()
	f.Header.TTL = 2
	assert.True(t, DecrementTTL(&f))
	assert.Equal(t, uint8(1), f.Header.TTL)

	assert.False(t, DecrementTTL(&f))
	assert.Equal(t, uint8(0), f.Header.TTL)

	assert.False(t, DecrementTTL(&f))
	assert.Equal(t, uint8(0), f.Header.TTL)
}

func TestSigningDigestIgnoresTTLAndFlags(t *testing.T) {
	f := sampleFrame()
	f.Header.TTL = 3
	f.Header.Flags = 0

	forwarded := f
	forwarded.Header.TTL = 1
	forwarded.Header.Flags = 0xFF

	assert.True(t, bytes.Equal(SigningDigest(f), SigningDigest(forwarded)))
}

func TestSigningDigestChangesWithPayload(t *testing.T) {
	f := sampleFrame()
	other := f
	other.Payload = []byte("world")
	assert.False(t, bytes.Equal(SigningDigest(f), SigningDigest(other)))
}
