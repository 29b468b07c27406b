// Command emberd runs a single EmberMesh node: it binds a UDP socket,
// loads or generates its signing identity, and drives the receive
// loop, the 5-second heartbeat/maintenance tick, and a line-oriented
// command surface, per spec.md §6 and SPEC_FULL.md §4.13.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/ember-mesh/emberd/identity"
	"github.com/ember-mesh/emberd/internal/config"
	"github.com/ember-mesh/emberd/internal/filesink"
	"github.com/ember-mesh/emberd/internal/keystore"
	"github.com/ember-mesh/emberd/internal/metrics"
	"github.com/ember-mesh/emberd/internal/worker"
	"github.com/ember-mesh/emberd/meshcrypto"
	"github.com/ember-mesh/emberd/node"
	"github.com/ember-mesh/emberd/send"
	"github.com/ember-mesh/emberd/transport"
	"github.com/ember-mesh/emberd/wire"
)

// NetworkKey is the process-wide pre-shared mesh secret. Per
// SPEC_FULL.md §9, this is an immutable resource for the life of the
// process; a future version may replace it with a negotiated session
// key (the frame format already carries a sender public key).
var NetworkKey = [32]byte{
	'E', 'M', 'B', 'E', 'R', '_', 'M', 'E', 'S', 'H', '_', 'S', 'E', 'C', 'R', 'E',
	'T', '_', 'K', 'E', 'Y', '_', 'v', '1', '_', '2', '0', '2', '4', '_', 'O', 'K',
}

var log = newLogger("emberd")

func newLogger(module string) *logging.Logger {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatter := logging.MustStringFormatter(
		`%{time:15:04:05.000} %{level:.4s} %{module}: %{message}`,
	)
	formatted := logging.NewBackendFormatter(backend, formatter)
	logging.SetBackend(formatted)
	return logging.MustGetLogger(module)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: emberd <local-port> [initial-peer-host:port]")
		os.Exit(1)
	}

	port, err := strconv.Atoi(os.Args[1])
	if err != nil {
		log.Fatalf("invalid port %q: %v", os.Args[1], err)
	}

	var initialPeer *net.UDPAddr
	if len(os.Args) > 2 {
		initialPeer, err = net.ResolveUDPAddr("udp", os.Args[2])
		if err != nil {
			log.Fatalf("invalid peer address %q: %v", os.Args[2], err)
		}
	}

	cfg, cerr := config.Load("emberd.toml")
	if cerr != nil {
		log.Warningf("config: using defaults (%v)", cerr)
	}

	scope := strconv.Itoa(port)
	store, serr := keystore.Open(
		filepath.Join(".", fmt.Sprintf("identity_%s.bolt", scope)),
		filepath.Join(".", fmt.Sprintf("identity_%s.key", scope)),
	)
	if serr != nil {
		log.Fatalf("keystore: %v", serr)
	}
	defer store.Close()

	id, ierr := identity.LoadOrGenerate(scope, store)
	if ierr != nil {
		log.Fatalf("identity: %v", ierr)
	}
	log.Infof("node id: %x", id.NodeID())

	cipher := meshcrypto.New(NetworkKey)

	udp, terr := transport.Bind(port)
	if terr != nil {
		log.Fatalf("transport: bind %d: %v", port, terr)
	}

	reg := prometheus.NewRegistry()
	mx := metrics.New(reg)
	go serveMetrics(reg)

	sink := filesink.New(cfg.DownloadsDir)
	engine := node.New(id.NodeID(), cipher, sink, log, mx)
	pipeline := send.New(id, cipher, udp, nil)

	var w worker.Worker

	logCh := make(chan string, 64)

	if initialPeer != nil {
		pipeline.Heartbeat([]net.Addr{initialPeer})
	}

	w.Go(func() { receiveLoop(&w, udp, engine, pipeline, logCh) })
	w.Go(func() {
		maintenanceLoop(&w, engine, pipeline, cfg, logCh)
	})
	w.Go(func() { drainLogs(&w, logCh) })

	commandLoop(id, pipeline, engine, logCh)

	// Closing the socket unblocks the receive loop's in-flight Recv so
	// Halt's WaitGroup wait actually returns.
	udp.Close()
	w.Halt()
}

func serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	_ = http.ListenAndServe("127.0.0.1:0", mux)
}

func receiveLoop(w *worker.Worker, udp *transport.UDPTransport, engine *node.Engine, pipeline *send.Pipeline, logCh chan<- string) {
	for {
		select {
		case <-w.HaltCh():
			return
		default:
		}

		data, src, err := udp.Recv()
		if err != nil {
			return
		}
		frame, derr := wire.Decode(data)
		if derr != nil {
			continue
		}

		result := engine.OnFrame(frame, src)

		if result.Log != "" {
			select {
			case logCh <- result.Log:
			default:
			}
		}
		if result.Relay != nil {
			pipeline.Relay(*result.Relay, engine.Peers(), src)
		}
		if result.Ack != nil {
			pipeline.Ack(result.Ack.Addr, result.Ack.DestID, result.Ack.MsgID)
		}
	}
}

func maintenanceLoop(w *worker.Worker, engine *node.Engine, pipeline *send.Pipeline, cfg config.Config, logCh chan<- string) {
	ticker := time.NewTicker(cfg.HeartbeatInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-w.HaltCh():
			return
		case <-ticker.C:
			dead := engine.PruneNeighbors(cfg.NeighborTimeout.Duration)
			for _, addr := range dead {
				select {
				case logCh <- "neighbor timeout: " + addr.String():
				default:
				}
			}
			peers := engine.Peers()
			if len(peers) > 0 {
				pipeline.Heartbeat(peers)
			}
		}
	}
}

func drainLogs(w *worker.Worker, logCh <-chan string) {
	for {
		select {
		case <-w.HaltCh():
			return
		case msg := <-logCh:
			log.Info(msg)
		}
	}
}

func commandLoop(id *identity.Identity, pipeline *send.Pipeline, engine *node.Engine, logCh chan<- string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		dispatchCommand(line, id, pipeline, engine, logCh)
	}
}

// dispatchCommand implements the reference command grammar of
// spec.md §6: /help, /status, /dm <hex_id> <text>, /send <path>, and
// free text (broadcast chat). It is a thin, freely-reimplementable
// default, per SPEC_FULL.md §4.13 — not the UI collaborator itself.
func dispatchCommand(line string, id *identity.Identity, pipeline *send.Pipeline, engine *node.Engine, logCh chan<- string) {
	switch {
	case line == "/help":
		logCh <- "commands: /dm <hex_id> <text>, /send <path>, /status, or free text to broadcast"

	case line == "/status":
		var addrs []string
		for _, a := range engine.Peers() {
			addrs = append(addrs, a.String())
		}
		logCh <- "active neighbors: " + strings.Join(addrs, ", ")

	case strings.HasPrefix(line, "/dm "):
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 3 {
			return
		}
		destID, ok := parseHexID(parts[1])
		if !ok {
			logCh <- "invalid id: " + parts[1]
			return
		}
		pipeline.Send(destID, wire.Chat, []byte(parts[2]), engine.Peers())

	case strings.HasPrefix(line, "/send "):
		path := strings.TrimPrefix(line, "/send ")
		data, err := os.ReadFile(path)
		if err != nil {
			logCh <- "read error: " + err.Error()
			return
		}
		name := filepath.Base(path)
		framed := append([]byte("FILE:"+name+"|"), data...)
		pipeline.Send(wire.BroadcastID, wire.FileChunk, framed, engine.Peers())

	default:
		pipeline.Send(wire.BroadcastID, wire.Chat, []byte(line), engine.Peers())
	}
}

func parseHexID(s string) ([8]byte, bool) {
	var out [8]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) > 8 {
		return out, false
	}
	copy(out[:], b)
	return out, true
}
