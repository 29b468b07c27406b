// Package keystore provides a concrete default for the identity-store
// collaborator (SPEC_FULL.md §4.12): a single-bucket bbolt database,
// one record per scope, each record sealed with nacl/secretbox under
// a local envelope key — grounded on disk.go's StateWriter (its
// nonce‖ciphertext secretbox framing and atomic-write discipline) and
// on the teacher's go.etcd.io/bbolt dependency.
package keystore

import (
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/ember-mesh/emberd/identity"
)

const bucketName = "identities"

var errCorruptRecord = errors.New("keystore: corrupt record")

// Store is a bbolt-backed implementation of identity.Store.
type Store struct {
	db      *bbolt.DB
	sealKey [32]byte
}

// Open opens (creating if absent) a bbolt database at dbPath, and
// loads or generates the local envelope key at keyPath (0600
// permissions; it never leaves this host). Both files are created
// alongside each other if this is the first run.
func Open(dbPath, keyPath string) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	sealKey, err := loadOrGenerateSealKey(keyPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, sealKey: sealKey}, nil
}

func loadOrGenerateSealKey(path string) ([32]byte, error) {
	var key [32]byte
	raw, err := os.ReadFile(path)
	if err == nil && len(raw) == 32 {
		copy(key[:], raw)
		return key, nil
	}

	if _, rerr := rand.Read(key[:]); rerr != nil {
		return key, rerr
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return key, err
	}
	if err := os.WriteFile(path, key[:], 0600); err != nil {
		return key, err
	}
	return key, nil
}

// Close releases the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load implements identity.Store.
func (s *Store) Load(scope string) (seed [identity.SeedSize]byte, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		raw := b.Get([]byte(scope))
		if raw == nil {
			ok = false
			return nil
		}
		plain, open := s.open(raw)
		if !open || len(plain) != identity.SeedSize {
			return errCorruptRecord
		}
		copy(seed[:], plain)
		ok = true
		return nil
	})
	if err != nil {
		// Corrupt identity file: the caller regenerates and
		// overwrites, per SPEC_FULL.md §7.
		return seed, false, nil
	}
	return seed, ok, nil
}

// Save implements identity.Store.
func (s *Store) Save(scope string, seed [identity.SeedSize]byte) error {
	sealed := s.seal(seed[:])
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put([]byte(scope), sealed)
	})
}

func (s *Store) seal(plaintext []byte) []byte {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		panic("keystore: rng failure: " + err.Error())
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.sealKey)
}

func (s *Store) open(sealed []byte) ([]byte, bool) {
	if len(sealed) < 24 {
		return nil, false
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	return secretbox.Open(nil, sealed[24:], &nonce, &s.sealKey)
}
