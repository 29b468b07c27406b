// Package payload encodes and decodes the inner plaintexts carried by
// non-control frames (PeerList, FileChunk, Ack), shared between the
// node engine (decoding on receipt) and the send pipeline (encoding
// before encryption). Grounded on the teacher's use of cbor's
// canonical mode for ratchet.go's SavedKeys and disk.go's State.
package payload

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/ember-mesh/emberd/chunker"
)

var encMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("payload: building cbor encode mode: " + err.Error())
	}
	return mode
}()

// EncodePeerList serializes a list of peer address strings.
func EncodePeerList(addrs []string) []byte {
	b, err := encMode.Marshal(addrs)
	if err != nil {
		panic("payload: marshaling peer list: " + err.Error())
	}
	return b
}

// DecodePeerList parses the bytes produced by EncodePeerList.
func DecodePeerList(b []byte) ([]string, error) {
	var addrs []string
	if err := cbor.Unmarshal(b, &addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

// EncodeChunk serializes a single chunker.Chunk record.
func EncodeChunk(c chunker.Chunk) []byte {
	b, err := encMode.Marshal(c)
	if err != nil {
		panic("payload: marshaling chunk: " + err.Error())
	}
	return b
}

// DecodeChunk parses the bytes produced by EncodeChunk.
func DecodeChunk(b []byte) (chunker.Chunk, error) {
	var c chunker.Chunk
	if err := cbor.Unmarshal(b, &c); err != nil {
		return chunker.Chunk{}, err
	}
	return c, nil
}

// EncodeAck serializes the original frame's msg_id for an Ack payload.
func EncodeAck(msgID uint64) []byte {
	b, err := encMode.Marshal(msgID)
	if err != nil {
		panic("payload: marshaling ack: " + err.Error())
	}
	return b
}

// DecodeAck parses the bytes produced by EncodeAck.
func DecodeAck(b []byte) (uint64, error) {
	var id uint64
	if err := cbor.Unmarshal(b, &id); err != nil {
		return 0, err
	}
	return id, nil
}
