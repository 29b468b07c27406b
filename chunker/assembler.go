// Package chunker splits oversized messages into bounded chunks and
// reassembles them on receipt, grounded on
// original_source/src/chunker.rs. Per that prototype's own revision
// history, Total and Index were deliberately widened from u8 to u32 so
// that messages fragmenting into more than 255 pieces don't silently
// wrap; SPEC_FULL.md §3 preserves that widening.
package chunker

import (
	"time"
)

// Size is the maximum number of data bytes carried by a single chunk.
const Size = 500

// StaleAfter is how long a reassembly buffer may sit incomplete before
// Assembler.CleanupStale discards it.
const StaleAfter = 60 * time.Second

// Chunk is one fragment of a fragmented large message.
type Chunk struct {
	MsgID uint64
	Total uint32
	Index uint32
	Data  []byte
}

// Split partitions data into ceil(len(data)/Size) chunks, all sharing
// Total and msgID, indexed 0..Total-1. A zero-length input yields zero
// chunks; the function is total even though the send pipeline only
// ever calls it on oversized messages.
func Split(msgID uint64, data []byte) []Chunk {
	if len(data) == 0 {
		return nil
	}
	total := (len(data) + Size - 1) / Size
	chunks := make([]Chunk, 0, total)
	for i := 0; i < total; i++ {
		start := i * Size
		end := start + Size
		if end > len(data) {
			end = len(data)
		}
		piece := make([]byte, end-start)
		copy(piece, data[start:end])
		chunks = append(chunks, Chunk{
			MsgID: msgID,
			Total: uint32(total),
			Index: uint32(i),
			Data:  piece,
		})
	}
	return chunks
}

type buffer struct {
	total     uint32
	pieces    map[uint32][]byte
	firstSeen time.Time
}

// Assembler reassembles chunk streams keyed by msg_id. It is not safe
// for concurrent use; the node engine owns it exclusively under its
// own coarse mutex.
type Assembler struct {
	buffers map[uint64]*buffer
	now     func() time.Time
}

// New returns an empty assembler.
func New() *Assembler {
	return &Assembler{
		buffers: make(map[uint64]*buffer),
		now:     time.Now,
	}
}

// Add stores chunk's data under its index in the buffer for its
// msg_id, creating the buffer (and fixing its authoritative Total to
// this first-seen chunk's Total) if this is the first chunk seen for
// that msg_id. A chunk whose Index is >= the buffer's authoritative
// Total is dropped: it cannot belong to a consistent stream. Once the
// number of distinct indices stored equals the authoritative Total,
// the assembled bytes are returned and the buffer is removed.
func (a *Assembler) Add(chunk Chunk) ([]byte, bool) {
	buf, ok := a.buffers[chunk.MsgID]
	if !ok {
		buf = &buffer{
			total:     chunk.Total,
			pieces:    make(map[uint32][]byte),
			firstSeen: a.now(),
		}
		a.buffers[chunk.MsgID] = buf
	}

	if chunk.Index >= buf.total {
		return nil, false
	}

	buf.pieces[chunk.Index] = chunk.Data

	if uint32(len(buf.pieces)) != buf.total {
		return nil, false
	}

	out := make([]byte, 0, int(buf.total)*Size)
	for i := uint32(0); i < buf.total; i++ {
		out = append(out, buf.pieces[i]...)
	}
	delete(a.buffers, chunk.MsgID)
	return out, true
}

// CleanupStale removes any reassembly buffer whose first chunk
// arrived more than StaleAfter ago.
func (a *Assembler) CleanupStale() {
	cutoff := a.now().Add(-StaleAfter)
	for id, buf := range a.buffers {
		if buf.firstSeen.Before(cutoff) {
			delete(a.buffers, id)
		}
	}
}
