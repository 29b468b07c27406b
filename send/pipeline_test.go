package send

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-mesh/emberd/identity"
	"github.com/ember-mesh/emberd/meshcrypto"
	"github.com/ember-mesh/emberd/payload"
	"github.com/ember-mesh/emberd/wire"
)

type memStore struct {
	data map[string][identity.SeedSize]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][identity.SeedSize]byte)}
}

func (m *memStore) Load(scope string) ([identity.SeedSize]byte, bool, error) {
	seed, ok := m.data[scope]
	return seed, ok, nil
}

func (m *memStore) Save(scope string, seed [identity.SeedSize]byte) error {
	m.data[scope] = seed
	return nil
}

type fakeTransport struct {
	sent []sentPacket
}

type sentPacket struct {
	data []byte
	addr net.Addr
}

func (f *fakeTransport) SendTo(data []byte, addr net.Addr) {
	cp := append([]byte(nil), data...)
	f.sent = append(f.sent, sentPacket{data: cp, addr: addr})
}

func testIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.LoadOrGenerate("test", newMemStore())
	require.NoError(t, err)
	return id
}

func testCipher() *meshcrypto.Cipher {
	var key [meshcrypto.KeySize]byte
	for i := range key {
		key[i] = byte(i)
	}
	return meshcrypto.New(key)
}

func noSleep(time.Duration) {}

func addrs(ss ...string) []net.Addr {
	var out []net.Addr
	for _, s := range ss {
		a, err := net.ResolveUDPAddr("udp", s)
		if err != nil {
			panic(err)
		}
		out = append(out, a)
	}
	return out
}

func TestSendBelowThresholdSingleFrame(t *testing.T) {
	transport := &fakeTransport{}
	p := New(testIdentity(t), testCipher(), transport, noSleep)

	dest := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	p.Send(dest, wire.Chat, []byte("short message"), addrs("127.0.0.1:9101", "127.0.0.1:9102"))

	require.Len(t, transport.sent, 2)
	for _, pkt := range transport.sent {
		f, err := wire.Decode(pkt.data)
		require.NoError(t, err)
		assert.Equal(t, wire.Chat, f.Header.MsgType)
		assert.Equal(t, dest, f.Header.DestID)
	}
}

func TestSendSmallFileChunkIsStillChunkEncoded(t *testing.T) {
	transport := &fakeTransport{}
	p := New(testIdentity(t), testCipher(), transport, noSleep)

	// Well under DirectThreshold, but msgType FileChunk must always be
	// sent as a cbor-encoded chunker.Chunk, since the receiving
	// engine's FileChunk dispatch only ever decodes that shape.
	p.Send(wire.BroadcastID, wire.FileChunk, []byte("FILE:a.txt|tiny"), addrs("127.0.0.1:9150"))

	require.Len(t, transport.sent, 1)
	f, err := wire.Decode(transport.sent[0].data)
	require.NoError(t, err)
	assert.Equal(t, wire.FileChunk, f.Header.MsgType)

	plain, ok := testCipher().Decrypt(f.Payload)
	require.True(t, ok)
	c, err := payload.DecodeChunk(plain)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), c.Total)
	assert.Equal(t, []byte("FILE:a.txt|tiny"), c.Data)
}

func TestSendAboveThresholdFragmentsAndPaces(t *testing.T) {
	transport := &fakeTransport{}
	var pauses int
	p := New(testIdentity(t), testCipher(), transport, func(time.Duration) { pauses++ })

	big := make([]byte, DirectThreshold+10)
	neighborList := addrs("127.0.0.1:9201")
	p.Send(wire.BroadcastID, wire.Chat, big, neighborList)

	require.NotEmpty(t, transport.sent)
	for _, pkt := range transport.sent {
		f, err := wire.Decode(pkt.data)
		require.NoError(t, err)
		assert.Equal(t, wire.FileChunk, f.Header.MsgType)
	}
	assert.Equal(t, len(transport.sent)-1, pauses) // paced between chunks, not after the last
}

func TestHeartbeatBroadcastsHello(t *testing.T) {
	transport := &fakeTransport{}
	p := New(testIdentity(t), testCipher(), transport, noSleep)

	p.Heartbeat(addrs("127.0.0.1:9301", "127.0.0.1:9302"))
	require.Len(t, transport.sent, 2)

	f, err := wire.Decode(transport.sent[0].data)
	require.NoError(t, err)
	assert.Equal(t, wire.Hello, f.Header.MsgType)
	assert.Equal(t, wire.BroadcastID, f.Header.DestID)
}

func TestAckIsUnicastNotFanOut(t *testing.T) {
	transport := &fakeTransport{}
	p := New(testIdentity(t), testCipher(), transport, noSleep)

	target := addrs("127.0.0.1:9401")[0]
	destID := [8]byte{9, 9, 9, 9, 9, 9, 9, 9}
	p.Ack(target, destID, 555)

	require.Len(t, transport.sent, 1)
	assert.Equal(t, target.String(), transport.sent[0].addr.String())

	f, err := wire.Decode(transport.sent[0].data)
	require.NoError(t, err)
	assert.Equal(t, wire.Ack, f.Header.MsgType)
	assert.Equal(t, destID, f.Header.DestID)
}

func TestRelaySkipsExceptAddr(t *testing.T) {
	transport := &fakeTransport{}
	p := New(testIdentity(t), testCipher(), transport, noSleep)

	skip := addrs("127.0.0.1:9501")[0]
	others := addrs("127.0.0.1:9501", "127.0.0.1:9502", "127.0.0.1:9503")

	f := wire.Frame{Header: wire.Header{Magic: wire.Magic, TTL: 1, PayloadLen: 0}}
	p.Relay(f, others, skip)

	require.Len(t, transport.sent, 2)
	for _, pkt := range transport.sent {
		assert.NotEqual(t, skip.String(), pkt.addr.String())
	}
}

func TestFramesAreSignedAndVerifiable(t *testing.T) {
	transport := &fakeTransport{}
	id := testIdentity(t)
	p := New(id, testCipher(), transport, noSleep)

	p.Heartbeat(addrs("127.0.0.1:9601"))
	f, err := wire.Decode(transport.sent[0].data)
	require.NoError(t, err)

	digest := wire.SigningDigest(f)
	assert.True(t, identity.Verify(f.Header.SenderPubkey, digest, f.Signature))
}
