// Package identity owns a node's long-term Ed25519 signing key,
// derives its 8-byte node id, and signs/verifies frames. Grounded on
// ratchet.go's use of "crypto/ed25519" and github.com/awnumar/memguard
// to keep long-lived secret key material out of the Go garbage
// collector's view (swapped, zeroed on Destroy) rather than sitting in
// an ordinary byte slice for the life of the process.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/awnumar/memguard"
)

// SeedSize is the length of the persisted secret in bytes.
const SeedSize = ed25519.SeedSize // 32

// NodeIDSize is the length of a node id: the first 8 bytes of the
// 32-byte Ed25519 public key.
const NodeIDSize = 8

// Store is the identity-store collaborator contract (SPEC_FULL.md
// §6): read and write a per-scope seed. Scope is typically the
// listen port. A concrete default lives in internal/keystore.
type Store interface {
	Load(scope string) (seed [SeedSize]byte, ok bool, err error)
	Save(scope string, seed [SeedSize]byte) error
}

// Identity is a node's signing identity. It is read-only after
// LoadOrGenerate returns.
type Identity struct {
	enclave *memguard.Enclave
	verify  ed25519.PublicKey
	nodeID  [NodeIDSize]byte
}

// LoadOrGenerate loads the seed persisted for scope from store, or
// draws SeedSize bytes from the OS RNG and persists them if none
// exists yet. A corrupt persisted seed (wrong length, store error) is
// treated the same as "absent": a fresh identity is generated and
// overwritten, per SPEC_FULL.md §7.
func LoadOrGenerate(scope string, store Store) (*Identity, error) {
	seed, ok, err := store.Load(scope)
	if err != nil || !ok {
		if _, rerr := rand.Read(seed[:]); rerr != nil {
			return nil, fmt.Errorf("identity: generating seed: %w", rerr)
		}
		if serr := store.Save(scope, seed); serr != nil {
			return nil, fmt.Errorf("identity: persisting seed: %w", serr)
		}
	}
	return fromSeed(seed), nil
}

func fromSeed(seed [SeedSize]byte) *Identity {
	priv := ed25519.NewKeyFromSeed(seed[:])
	verify := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(verify, priv.Public().(ed25519.PublicKey))

	var nodeID [NodeIDSize]byte
	copy(nodeID[:], verify[:NodeIDSize])

	enclave := memguard.NewEnclave(priv)
	// priv held a copy of the seed; scrub the local seed parameter's
	// backing array since the caller's copy may still be live.
	for i := range seed {
		seed[i] = 0
	}

	return &Identity{enclave: enclave, verify: verify, nodeID: nodeID}
}

// NodeID returns the first 8 bytes of the verifying key.
func (id *Identity) NodeID() [NodeIDSize]byte {
	return id.nodeID
}

// PublicKey returns the 32-byte Ed25519 verifying key.
func (id *Identity) PublicKey() [32]byte {
	var out [32]byte
	copy(out[:], id.verify)
	return out
}

// Sign returns the 64-byte Ed25519 signature over msg.
func (id *Identity) Sign(msg []byte) ([64]byte, error) {
	buf, err := id.enclave.Open()
	if err != nil {
		return [64]byte{}, fmt.Errorf("identity: opening enclave: %w", err)
	}
	defer buf.Destroy()

	priv := ed25519.PrivateKey(buf.Bytes())
	sig := ed25519.Sign(priv, msg)

	var out [64]byte
	copy(out[:], sig)
	return out, nil
}

// Verify checks a 64-byte signature over msg against a 32-byte
// Ed25519 public key. It never panics on malformed input; callers
// feed it attacker-controlled bytes off the wire.
func Verify(pubkey [32]byte, msg []byte, sig [64]byte) bool {
	return ed25519.Verify(pubkey[:], msg, sig[:])
}
