package identity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	data map[string][SeedSize]byte
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][SeedSize]byte)}
}

func (m *memStore) Load(scope string) ([SeedSize]byte, bool, error) {
	if m.err != nil {
		return [SeedSize]byte{}, false, m.err
	}
	seed, ok := m.data[scope]
	return seed, ok, nil
}

func (m *memStore) Save(scope string, seed [SeedSize]byte) error {
	if m.err != nil {
		return m.err
	}
	m.data[scope] = seed
	return nil
}

func TestLoadOrGenerateGeneratesAndPersists(t *testing.T) {
	store := newMemStore()

	id, err := LoadOrGenerate("node-a", store)
	require.NoError(t, err)
	assert.NotEqual(t, [8]byte{}, id.NodeID())
	assert.Contains(t, store.data, "node-a")
}

func TestLoadOrGenerateReusesPersistedSeed(t *testing.T) {
	store := newMemStore()

	first, err := LoadOrGenerate("node-b", store)
	require.NoError(t, err)

	second, err := LoadOrGenerate("node-b", store)
	require.NoError(t, err)

	assert.Equal(t, first.NodeID(), second.NodeID())
	assert.Equal(t, first.PublicKey(), second.PublicKey())
}

func TestLoadOrGenerateFailsWhenCorruptStoreRejectsSave(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("corrupt record")

	id, err := LoadOrGenerate("node-c", store)
	require.Error(t, err) // Save also fails since the store is broken.
	assert.Nil(t, id)
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	store := newMemStore()
	id, err := LoadOrGenerate("node-d", store)
	require.NoError(t, err)

	msg := []byte("ship it")
	sig, err := id.Sign(msg)
	require.NoError(t, err)

	assert.True(t, Verify(id.PublicKey(), msg, sig))
}

func TestVerifyFailsOnTamperedMessage(t *testing.T) {
	store := newMemStore()
	id, err := LoadOrGenerate("node-e", store)
	require.NoError(t, err)

	sig, err := id.Sign([]byte("original"))
	require.NoError(t, err)

	assert.False(t, Verify(id.PublicKey(), []byte("tampered"), sig))
}

func TestVerifyFailsOnTamperedSignature(t *testing.T) {
	store := newMemStore()
	id, err := LoadOrGenerate("node-f", store)
	require.NoError(t, err)

	msg := []byte("original")
	sig, err := id.Sign(msg)
	require.NoError(t, err)
	sig[0] ^= 0x01

	assert.False(t, Verify(id.PublicKey(), msg, sig))
}

func TestVerifyFailsOnWrongKey(t *testing.T) {
	store := newMemStore()
	a, err := LoadOrGenerate("node-g", store)
	require.NoError(t, err)
	b, err := LoadOrGenerate("node-h", store)
	require.NoError(t, err)

	msg := []byte("original")
	sig, err := a.Sign(msg)
	require.NoError(t, err)

	assert.False(t, Verify(b.PublicKey(), msg, sig))
}

func TestNodeIDIsPrefixOfPublicKey(t *testing.T) {
	store := newMemStore()
	id, err := LoadOrGenerate("node-i", store)
	require.NoError(t, err)

	pub := id.PublicKey()
	nodeID := id.NodeID()
	assert.Equal(t, pub[:NodeIDSize], nodeID[:])
}
