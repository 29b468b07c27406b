// Package transport provides a default UDP datagram transport, the
// collaborator spec.md §6 says is "thin and can be reimplemented
// freely". Grounded on original_source/src/transport.rs (bind, send,
// recv, try_clone over a non-blocking socket with a 65535-byte receive
// buffer) and shaped like sockatz/common.QUICProxyConn's
// net.PacketConn wrapper.
package transport

import (
	"net"
)

// MaxDatagram is the largest UDP payload this transport will ever
// read, per spec.md §6.
const MaxDatagram = 65535

// UDPTransport wraps a bound UDP socket. Sends are fire-and-forget:
// errors are swallowed, per spec.md §7 ("Send failure: swallow (UDP)").
type UDPTransport struct {
	conn *net.UDPConn
}

// Bind opens a UDP socket on the given local port, listening on all
// interfaces.
func Bind(port int) (*UDPTransport, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &UDPTransport{conn: conn}, nil
}

// SendTo implements send.Transport: it fires a single datagram at
// addr and discards any error.
func (t *UDPTransport) SendTo(data []byte, addr net.Addr) {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		resolved, err := net.ResolveUDPAddr("udp", addr.String())
		if err != nil {
			return
		}
		udpAddr = resolved
	}
	_, _ = t.conn.WriteToUDP(data, udpAddr)
}

// Recv blocks until a datagram arrives and returns its payload and
// source address, or an error if the socket is closed or otherwise
// fails.
func (t *UDPTransport) Recv() ([]byte, net.Addr, error) {
	buf := make([]byte, MaxDatagram)
	n, addr, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, err
	}
	return buf[:n], addr, nil
}

// Close releases the underlying socket, unblocking any in-flight Recv.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// LocalAddr reports the address the transport is bound to.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}
