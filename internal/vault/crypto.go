package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// entryVersion is the single on-disk format version this package writes and
// understands. A mismatch on read is treated as corruption.
const entryVersion byte = 1

const (
	seedSize  = 32
	keySize   = 32
	nonceSize = 12
)

// deriveKey derives a 32-byte AES-256 key from the machine-local seed and a
// key version, so rotate() can mint a fresh key without discarding the seed.
func deriveKey(seed []byte, keyVersion uint32) ([]byte, error) {
	info := make([]byte, 4)
	binary.BigEndian.PutUint32(info, keyVersion)

	r := hkdf.New(sha256.New, seed, nil, info)
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving vault key: %w", err)
	}
	return key, nil
}

// seal encrypts plaintext under the key for keyVersion, producing the
// on-disk blob: version byte | key-version (uint32 BE) | nonce | ciphertext+tag.
func seal(seed []byte, keyVersion uint32, plaintext []byte) ([]byte, error) {
	key, err := deriveKey(seed, keyVersion)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	out := make([]byte, 0, 1+4+nonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, entryVersion)
	var kv [4]byte
	binary.BigEndian.PutUint32(kv[:], keyVersion)
	out = append(out, kv[:]...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// open decrypts a blob written by seal. Any structural or AEAD failure is
// reported as ErrCorrupt.
func open(seed []byte, blob []byte) ([]byte, error) {
	if len(blob) < 1+4+nonceSize {
		return nil, ErrCorrupt
	}
	if blob[0] != entryVersion {
		return nil, ErrCorrupt
	}
	keyVersion := binary.BigEndian.Uint32(blob[1:5])
	nonce := blob[5 : 5+nonceSize]
	ciphertext := blob[5+nonceSize:]

	key, err := deriveKey(seed, keyVersion)
	if err != nil {
		return nil, fmt.Errorf("deriving vault key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrCorrupt
	}
	return plaintext, nil
}
