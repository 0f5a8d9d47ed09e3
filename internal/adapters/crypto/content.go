// Package crypto encrypts chat content at rest.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const KeySize = chacha20poly1305.KeySize

// blobVersion prefixes every sealed blob and is authenticated as part of the AAD.
const blobVersion byte = 0x01

const blobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var ErrMalformedBlob = errors.New("crypto: malformed blob")

// ContentCipher seals content with XChaCha20-Poly1305:
//
//	[version 1B][nonce 24B][ciphertext+tag]
//
// The caller's aad (e.g. the message id) binds a blob to its row.
type ContentCipher struct {
	key []byte
}

func NewContentCipher(key []byte) (*ContentCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &ContentCipher{key: k}, nil
}

// NewContentCipherFromBase64 accepts the configured key in standard base64.
func NewContentCipherFromBase64(encoded string) (*ContentCipher, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode key: %w", err)
	}
	return NewContentCipher(key)
}

func (c *ContentCipher) Seal(plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	out := make([]byte, 1+len(nonce), blobOverhead+len(plaintext))
	out[0] = blobVersion
	copy(out[1:], nonce[:])
	return aead.Seal(out, nonce[:], plaintext, withVersion(aad)), nil
}

func (c *ContentCipher) Open(blob, aad []byte) ([]byte, error) {
	if len(blob) < blobOverhead || blob[0] != blobVersion {
		return nil, ErrMalformedBlob
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher: %w", err)
	}
	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], withVersion(aad))
	if err != nil {
		return nil, fmt.Errorf("crypto: open: %w", err)
	}
	return plaintext, nil
}

func withVersion(aad []byte) []byte {
	out := make([]byte, 0, 1+len(aad))
	out = append(out, blobVersion)
	return append(out, aad...)
}

// Plaintext stores content as is. Used when no content key is configured.
type Plaintext struct{}

func (Plaintext) Seal(plaintext, _ []byte) ([]byte, error) { return plaintext, nil }
func (Plaintext) Open(blob, _ []byte) ([]byte, error)      { return blob, nil }

// GenerateKey returns a fresh random key in base64, for config files.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
