// Package meshcrypto provides authenticated encryption of frame
// payloads under the shared mesh secret, using XChaCha20-Poly1305 for
// its 192-bit nonce space (safe against collision under random
// sampling), grounded on the teacher's golang.org/x/crypto dependency
// the way disk.go and ratchet.go lean on golang.org/x/crypto's
// nacl/secretbox for the analogous encrypted-at-rest envelope.
package meshcrypto

import (
	"crypto/rand"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length in bytes of the pre-shared mesh key.
const KeySize = chacha20poly1305.KeySize // 32

// NonceSize is the length in bytes of the random nonce prefixed to
// every encrypted payload.
const NonceSize = chacha20poly1305.NonceSizeX // 24

// Cipher encrypts and decrypts frame payloads under a single
// process-wide mesh key. The mesh key is an immutable resource: it is
// set once at construction and never mutated for the lifetime of the
// Cipher.
type Cipher struct {
	aead cipherAEAD
}

type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// New builds a Cipher from a 32-byte mesh key. It panics if key is not
// exactly KeySize bytes, since an incorrectly sized mesh key is a
// startup configuration error, not a runtime condition to recover
// from.
func New(key [KeySize]byte) *Cipher {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		panic("meshcrypto: " + err.Error())
	}
	return &Cipher{aead: aead}
}

// Encrypt draws a fresh random nonce and returns nonce || ciphertext+tag.
func (c *Cipher) Encrypt(plaintext []byte) []byte {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		panic("meshcrypto: rng failure: " + err.Error())
	}
	out := make([]byte, 0, NonceSize+len(plaintext)+chacha20poly1305.Overhead)
	out = append(out, nonce...)
	return c.aead.Seal(out, nonce, plaintext, nil)
}

// Decrypt splits nonce from ciphertext and attempts authenticated
// decryption. It returns (nil, false) if the wire form is too short,
// if authentication fails, or if it was encrypted under a different
// key — callers must not distinguish these cases, since doing so
// would leak an oracle to an attacker probing validity.
func (c *Cipher) Decrypt(wire []byte) ([]byte, bool) {
	if len(wire) < NonceSize {
		return nil, false
	}
	nonce, ciphertext := wire[:NonceSize], wire[NonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, false
	}
	return plaintext, true
}
