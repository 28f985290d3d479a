package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidAEADInput     = errors.New("invalid aead input")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// EncryptedBlob is an XChaCha20-Poly1305 ciphertext and the nonce it was
// sealed with.
type EncryptedBlob struct {
	Ciphertext []byte
	Nonce      []byte
}

// Seal encrypts plaintext under key with a fresh random nonce.
func Seal(key, plaintext, aad []byte) (EncryptedBlob, error) {
	if len(key) != chacha20poly1305.KeySize {
		return EncryptedBlob{}, fmt.Errorf("%w: key must be %d bytes", ErrInvalidAEADInput, chacha20poly1305.KeySize)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return EncryptedBlob{}, fmt.Errorf("construct xchacha20-poly1305: %w", err)
	}
	nonce, err := randomBytes(aead.NonceSize())
	if err != nil {
		return EncryptedBlob{}, err
	}
	return EncryptedBlob{
		Ciphertext: aead.Seal(nil, nonce, plaintext, aad),
		Nonce:      nonce,
	}, nil
}

// Open authenticates and decrypts blob.
func Open(key []byte, blob EncryptedBlob, aad []byte) ([]byte, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", ErrInvalidAEADInput, chacha20poly1305.KeySize)
	}
	if len(blob.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: nonce must be %d bytes", ErrInvalidAEADInput, chacha20poly1305.NonceSizeX)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("construct xchacha20-poly1305: %w", err)
	}
	plaintext, err := aead.Open(nil, blob.Nonce, blob.Ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}

// GenerateSalt returns length random bytes; length must be at least 16.
func GenerateSalt(length int) ([]byte, error) {
	if length < 16 {
		return nil, fmt.Errorf("generate salt: length must be >= 16, got %d", length)
	}
	return randomBytes(length)
}

func randomBytes(n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return out, nil
}
