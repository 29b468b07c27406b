// Package node implements the inbound state machine: the per-frame
// decision procedure that validates, authenticates, decrypts,
// classifies, and dispatches a frame, grounded on
// original_source/src/node.rs's Node::on_frame.
package node

import (
	"encoding/hex"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/ember-mesh/emberd/chunker"
	"github.com/ember-mesh/emberd/identity"
	"github.com/ember-mesh/emberd/meshcrypto"
	"github.com/ember-mesh/emberd/neighbors"
	"github.com/ember-mesh/emberd/payload"
	"github.com/ember-mesh/emberd/replay"
	"github.com/ember-mesh/emberd/wire"
)

// State is an observable attribute of the engine with no behavioral
// requirement placed on it (SPEC_FULL.md §9 / spec.md Open
// Questions): it guards against nothing that isn't otherwise
// serialized by mu. OnFrame sets Processing on entry and Idle on
// return, both while holding mu; since State() also takes mu, a
// caller outside OnFrame only ever observes Idle.
type State int

const (
	Idle State = iota
	Processing
)

// FileSink is the filesystem-sink collaborator: given a filename and
// bytes, it persists a completed file transfer (SPEC_FULL.md §6).
type FileSink interface {
	Save(filename string, data []byte) error
}

// Metrics is the ambient observability collaborator (SPEC_FULL.md
// §4.11). A nil Metrics is valid; every call is a no-op in that case.
type Metrics interface {
	FrameProcessed()
	FrameDropped(reason string)
	NeighborsActive(n int)
	RelayFrame()
	ChunksReassembled()
	AcksSent()
}

// AckTarget names the neighbor address and original msg_id an
// acknowledgement frame should be built for. Building and sending that
// frame is the send pipeline's job, not the engine's.
type AckTarget struct {
	Addr   net.Addr
	DestID [8]byte
	MsgID  uint64
}

// Result is everything on_frame hands back to its caller: an optional
// frame to relay, an optional ack to send, and an optional line to
// log (surfaced to the UI collaborator over a channel, per
// SPEC_FULL.md §4.9, and mirrored into the structured logger).
type Result struct {
	Relay *wire.Frame
	Ack   *AckTarget
	Log   string
}

func (r Result) hasLog() bool { return r.Log != "" }

// Engine is the node's inbound state machine. It exclusively owns the
// replay cache, neighbor table, and reassembly buffer; a single coarse
// mutex guards all of it plus State, matching SPEC_FULL.md §5's
// explicit intent that per-frame latency is dominated by signature
// verification, not lock contention.
type Engine struct {
	mu sync.Mutex

	state State

	myID [8]byte

	replayCache *replay.Cache
	table       *neighbors.Table
	assembler   *chunker.Assembler
	cipher      *meshcrypto.Cipher

	sink FileSink
	log  *logging.Logger
	mx   Metrics
}

// New builds an Engine for myID. sink and log must not be nil; mx may
// be nil.
func New(myID [8]byte, cipher *meshcrypto.Cipher, sink FileSink, log *logging.Logger, mx Metrics) *Engine {
	if mx == nil {
		mx = noopMetrics{}
	}
	return &Engine{
		myID:        myID,
		replayCache: replay.New(),
		table:       neighbors.New(),
		assembler:   chunker.New(),
		cipher:      cipher,
		sink:        sink,
		log:         log,
		mx:          mx,
	}
}

// State reports the engine's current observable state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Peers returns a point-in-time snapshot of known neighbor addresses.
func (e *Engine) Peers() []net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.Snapshot()
}

// PruneNeighbors expires neighbors idle longer than timeout and
// cleans stale reassembly buffers in the same pass, returning the
// addresses that were pruned. This is the maintenance-tick operation
// of SPEC_FULL.md §4.8.
func (e *Engine) PruneNeighbors(timeout time.Duration) []net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assembler.CleanupStale()
	dead := e.table.Prune(timeout)
	e.mx.NeighborsActive(e.table.Len())
	return dead
}

// OnFrame is the per-frame decision procedure described in
// SPEC_FULL.md §4.7. It executes atomically with respect to every
// other operation on the engine's internal state.
func (e *Engine) OnFrame(frame wire.Frame, src net.Addr) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = Processing
	defer func() { e.state = Idle }()

	// 1. Structural check.
	if !wire.IsValidStructure(frame) {
		e.mx.FrameDropped("structure")
		return Result{}
	}

	// 2. Replay check.
	key := replay.Key{Sender: frame.Header.SrcID, MsgID: msgIDBytes(frame.Header.MsgID)}
	if e.replayCache.Seen(key) {
		e.mx.FrameDropped("replay")
		return Result{}
	}

	// 3. Signature check.
	if !verifyFrame(frame) {
		e.mx.FrameDropped("signature")
		msg := "invalid signature from " + src.String()
		e.log.Warning(msg)
		return Result{Log: msg}
	}

	// 4. Neighbor refresh.
	isNewNeighbor := e.table.Add(src)
	e.mx.NeighborsActive(e.table.Len())

	// 5. Addressing classification.
	isBroadcast := frame.Header.DestID == wire.BroadcastID
	isForMe := frame.Header.DestID == e.myID

	// 6. Pure-forward shortcut: avoid decrypting payloads addressed
	// elsewhere for non-control types.
	if !isBroadcast && !isForMe && frame.Header.MsgType != wire.Hello && frame.Header.MsgType != wire.PeerList {
		if wire.DecrementTTL(&frame) {
			e.mx.RelayFrame()
			return Result{Relay: &frame}
		}
		return Result{}
	}

	e.mx.FrameProcessed()

	// 7. Decrypt.
	plaintext, ok := e.cipher.Decrypt(frame.Payload)

	// 8. Dispatch by msg_type, only if decryption succeeded.
	var result Result
	if ok {
		result = e.dispatch(frame, src, isBroadcast, isForMe, isNewNeighbor, plaintext)
	}

	if result.hasLog() {
		e.log.Info(result.Log)
	}

	// 9. Forward decision.
	if isBroadcast {
		if wire.DecrementTTL(&frame) {
			e.mx.RelayFrame()
			result.Relay = &frame
		}
	} else if !isForMe {
		if wire.DecrementTTL(&frame) {
			e.mx.RelayFrame()
			result.Relay = &frame
		}
	}

	return result
}

func (e *Engine) dispatch(frame wire.Frame, src net.Addr, isBroadcast, isForMe, isNewNeighbor bool, plaintext []byte) Result {
	switch frame.Header.MsgType {
	case wire.Hello:
		if isNewNeighbor {
			return Result{Log: "new neighbor " + src.String()}
		}
		return Result{}

	case wire.PeerList:
		return e.dispatchPeerList(plaintext, src)

	case wire.Chat:
		return e.dispatchChat(frame, src, isBroadcast, isForMe, plaintext)

	case wire.FileChunk:
		if !isForMe && !isBroadcast {
			return Result{}
		}
		return e.dispatchFileChunk(frame, src, plaintext)

	case wire.Ack:
		if !isForMe {
			return Result{}
		}
		return e.dispatchAck(plaintext)

	default: // Unknown or unrecognized.
		return Result{}
	}
}

func (e *Engine) dispatchPeerList(plaintext []byte, src net.Addr) Result {
	addrs, err := payload.DecodePeerList(plaintext)
	if err != nil {
		return Result{}
	}
	var lastLearned string
	for _, a := range addrs {
		if a == src.String() {
			continue
		}
		addr, rerr := net.ResolveUDPAddr("udp", a)
		if rerr != nil {
			continue
		}
		if e.table.Contains(addr) {
			continue
		}
		e.table.Add(addr)
		lastLearned = a
	}
	if lastLearned != "" {
		return Result{Log: "route learned: " + lastLearned}
	}
	return Result{}
}

func (e *Engine) dispatchChat(frame wire.Frame, src net.Addr, isBroadcast, isForMe bool, plaintext []byte) Result {
	text := string(plaintext)
	e.table.Refresh(src)
	if isForMe && !isBroadcast {
		e.mx.AcksSent()
		return Result{
			Log: "private from " + shortID(frame.Header.SrcID) + ": " + text,
			Ack: &AckTarget{Addr: src, DestID: frame.Header.SrcID, MsgID: frame.Header.MsgID},
		}
	}
	return Result{Log: shortID(frame.Header.SrcID) + ": " + text}
}

const filePrefix = "FILE:"

func (e *Engine) dispatchFileChunk(frame wire.Frame, src net.Addr, plaintext []byte) Result {
	chunk, err := payload.DecodeChunk(plaintext)
	if err != nil {
		return Result{}
	}
	full, done := e.assembler.Add(chunk)
	if !done {
		return Result{}
	}
	e.mx.ChunksReassembled()
	e.mx.AcksSent()
	ack := &AckTarget{Addr: src, DestID: frame.Header.SrcID, MsgID: frame.Header.MsgID}

	if strings.HasPrefix(string(full), filePrefix) {
		rest := full[len(filePrefix):]
		sep := indexByte(rest, '|')
		if sep >= 0 {
			name := string(rest[:sep])
			content := rest[sep+1:]
			path := "downloads/" + name
			if err := e.sink.Save(name, content); err != nil {
				return Result{Log: "disk error: " + err.Error(), Ack: ack}
			}
			return Result{Log: "file saved: " + path, Ack: ack}
		}
	}

	return Result{Log: "message reassembled: " + string(full), Ack: ack}
}

func (e *Engine) dispatchAck(plaintext []byte) Result {
	id, err := payload.DecodeAck(plaintext)
	if err != nil {
		return Result{}
	}
	return Result{Log: "acknowledged (id: " + itoa(id) + ")"}
}

func verifyFrame(f wire.Frame) bool {
	digest := wire.SigningDigest(f)
	return identity.Verify(f.Header.SenderPubkey, digest, f.Signature)
}

func msgIDBytes(id uint64) [8]byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(id >> (8 * i))
	}
	return b
}

func shortID(id [8]byte) string {
	return hex.EncodeToString(id[:4])
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func itoa(id uint64) string {
	return strconv.FormatUint(id, 10)
}

type noopMetrics struct{}

func (noopMetrics) FrameProcessed()     {}
func (noopMetrics) FrameDropped(string) {}
func (noopMetrics) NeighborsActive(int) {}
func (noopMetrics) RelayFrame()         {}
func (noopMetrics) ChunksReassembled()  {}
func (noopMetrics) AcksSent()           {}
