package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/care-auth-api/internal/domain"
)

// CodeCipher encrypts verification codes at rest so a storage dump alone
// never yields plaintext codes.
type CodeCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type aesGCM struct {
	aead cipher.AEAD
}

// New builds an AES-256-GCM cipher from a 64-character hex key.
func New(hexKey string) (CodeCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode cipher key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("cipher key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &aesGCM{aead: aead}, nil
}

// Encrypt seals the code under a fresh random nonce. Output is
// base64(nonce || ciphertext).
func (c *aesGCM) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a stored ciphertext. Any failure — bad base64, truncated
// nonce, failed authentication — means the stored record was tampered with
// or corrupted, which is a platform fault, not user error.
func (c *aesGCM) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", domain.ErrCorruptedRecord)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("ciphertext shorter than nonce: %w", domain.ErrCorruptedRecord)
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", domain.ErrCorruptedRecord)
	}
	return string(plain), nil
}
