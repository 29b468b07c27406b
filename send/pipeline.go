// Package send builds and transmits outbound frames: single frames
// for small messages, fragmented/paced frames for oversized ones, and
// the periodic Hello heartbeat, grounded on
// original_source/src/main.rs's build_frame/process_command and the
// katzenpost client2 ARQ's pacing discipline (client2/arq.go).
package send

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"time"

	"github.com/ember-mesh/emberd/chunker"
	"github.com/ember-mesh/emberd/identity"
	"github.com/ember-mesh/emberd/meshcrypto"
	"github.com/ember-mesh/emberd/payload"
	"github.com/ember-mesh/emberd/wire"
)

// DirectThreshold is the largest plaintext, in bytes, sent as a single
// frame. Anything larger is fragmented by the chunk assembler.
const DirectThreshold = 800

// ChunkPause is the pacing delay between consecutive fragments of a
// large message, so a big transfer doesn't burst the whole mesh at
// once.
const ChunkPause = 250 * time.Millisecond

// HeartbeatInterval is the default period of the Hello heartbeat and
// prune/cleanup tick. cmd/emberd takes the period from its
// configuration (internal/config), whose default has the same value.
const HeartbeatInterval = 5 * time.Second

// NeighborTimeout is the default liveness window after which a
// neighbor is pruned. cmd/emberd takes the window from its
// configuration (internal/config), whose default has the same value.
const NeighborTimeout = 15 * time.Second

// Transport is everything the send pipeline needs from the datagram
// layer: fire-and-forget delivery to a single address. Errors are
// swallowed by the implementation, per SPEC_FULL.md §7 ("Send
// failure: swallow (UDP)").
type Transport interface {
	SendTo(data []byte, addr net.Addr)
}

// Sleeper abstracts time.Sleep so tests can run fragmentation pacing
// without actually waiting.
type Sleeper func(time.Duration)

// Pipeline builds, signs, and transmits outbound frames on behalf of
// a single node identity.
type Pipeline struct {
	id        *identity.Identity
	cipher    *meshcrypto.Cipher
	transport Transport
	sleep     Sleeper
}

// New builds a Pipeline. If sleep is nil, time.Sleep is used.
func New(id *identity.Identity, cipher *meshcrypto.Cipher, transport Transport, sleep Sleeper) *Pipeline {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Pipeline{id: id, cipher: cipher, transport: transport, sleep: sleep}
}

func randMsgID() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("send: rng failure: " + err.Error())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// buildFrame signs a fresh frame with a newly drawn random msg_id, ttl
// InitialTTL, and the given (already encrypted) payload.
func (p *Pipeline) buildFrame(destID [8]byte, msgType wire.MessageType, encryptedPayload []byte) wire.Frame {
	h := wire.Header{
		Magic:        wire.Magic,
		Version:      wire.CurrentVersion,
		MsgType:      msgType,
		TTL:          wire.InitialTTL,
		Flags:        0,
		MsgID:        randMsgID(),
		SrcID:        p.id.NodeID(),
		DestID:       destID,
		SenderPubkey: p.id.PublicKey(),
		PayloadLen:   uint16(len(encryptedPayload)),
	}
	f := wire.Frame{Header: h, Payload: encryptedPayload}
	digest := wire.SigningDigest(f)
	sig, err := p.id.Sign(digest)
	if err != nil {
		panic("send: signing frame: " + err.Error())
	}
	f.Signature = sig
	return f
}

func (p *Pipeline) transmitToAll(f wire.Frame, neighbors []net.Addr) {
	pkt := wire.Encode(f)
	for _, addr := range neighbors {
		p.transport.SendTo(pkt, addr)
	}
}

// Send dispatches plaintext to destID (wire.BroadcastID for
// broadcast) as msgType. A FileChunk send always goes out as one or
// more cbor-encoded chunker.Chunk payloads — the receiving engine's
// reassembler expects that framing regardless of size. Any other
// msgType whose plaintext exceeds DirectThreshold is fragmented the
// same way (the wire frames themselves carry FileChunk, and the
// receiving engine's generic reassembler hands the joined bytes back
// as plain text once complete); everything else goes out as a single
// frame, per SPEC_FULL.md §4.8.
func (p *Pipeline) Send(destID [8]byte, msgType wire.MessageType, plaintext []byte, neighbors []net.Addr) {
	if msgType == wire.FileChunk || len(plaintext) > DirectThreshold {
		p.sendChunked(destID, plaintext, neighbors)
		return
	}

	enc := p.cipher.Encrypt(plaintext)
	f := p.buildFrame(destID, msgType, enc)
	p.transmitToAll(f, neighbors)
}

func (p *Pipeline) sendChunked(destID [8]byte, plaintext []byte, neighbors []net.Addr) {
	bigMsgID := randMsgID()
	chunks := chunker.Split(bigMsgID, plaintext)
	for i, c := range chunks {
		enc := p.cipher.Encrypt(payload.EncodeChunk(c))
		f := p.buildFrame(destID, wire.FileChunk, enc)
		p.transmitToAll(f, neighbors)
		if i < len(chunks)-1 {
			p.sleep(ChunkPause)
		}
	}
}

// Heartbeat builds and transmits a broadcast Hello with an empty
// encrypted payload to every given neighbor.
func (p *Pipeline) Heartbeat(neighbors []net.Addr) {
	enc := p.cipher.Encrypt(nil)
	f := p.buildFrame(wire.BroadcastID, wire.Hello, enc)
	p.transmitToAll(f, neighbors)
}

// Ack builds and transmits an Ack frame, addressed to destID,
// acknowledging originalMsgID to a single target address. The ack
// target the node engine returns is itself just an address, not a
// neighbor-table membership, so this bypasses the all-neighbors
// fan-out.
func (p *Pipeline) Ack(target net.Addr, destID [8]byte, originalMsgID uint64) {
	enc := p.cipher.Encrypt(payload.EncodeAck(originalMsgID))
	f := p.buildFrame(destID, wire.Ack, enc)
	p.transport.SendTo(wire.Encode(f), target)
}

// Relay re-transmits an already-validated, ttl-decremented frame to
// every neighbor except the one it arrived from.
func (p *Pipeline) Relay(f wire.Frame, neighbors []net.Addr, except net.Addr) {
	pkt := wire.Encode(f)
	for _, addr := range neighbors {
		if except != nil && addr.String() == except.String() {
			continue
		}
		p.transport.SendTo(pkt, addr)
	}
}
