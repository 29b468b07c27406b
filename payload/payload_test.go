package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-mesh/emberd/chunker"
)

func TestPeerListRoundTrip(t *testing.T) {
	addrs := []string{"10.0.0.1:9000", "10.0.0.2:9000"}
	b := EncodePeerList(addrs)

	got, err := DecodePeerList(b)
	require.NoError(t, err)
	assert.Equal(t, addrs, got)
}

func TestChunkRoundTrip(t *testing.T) {
	c := chunker.Chunk{MsgID: 7, Total: 3, Index: 1, Data: []byte("fragment")}
	b := EncodeChunk(c)

	got, err := DecodeChunk(b)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestAckRoundTrip(t *testing.T) {
	b := EncodeAck(123456789)

	got, err := DecodeAck(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(123456789), got)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodePeerList([]byte{0xFF, 0xFF, 0xFF})
	assert.Error(t, err)
}
