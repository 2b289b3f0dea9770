// Package fieldcrypt encrypts individual column values with AES-256-GCM.
//
// Encrypted values use the sentinel format enc:<iv>:<tag>:<ciphertext> where every part
// is hex encoded. Values without the prefix are treated as legacy plaintext on read.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	prefix    = "enc:"
	keyHexLen = 64
	ivSize    = 12
	tagSize   = 16
)

var (
	// ErrInvalidKey is returned when the configured key is not 32 bytes of hex.
	ErrInvalidKey = errors.New("field encryption key must be 64 hex characters")
	// ErrMalformed is returned when an enc: value cannot be parsed or authenticated.
	ErrMalformed = errors.New("malformed encrypted value")
)

// Cipher encrypts and decrypts string fields.
type Cipher struct {
	block cipher.Block
}

// New builds a Cipher from a 64 character hex key.
func New(hexKey string) (*Cipher, error) {
	hexKey = strings.TrimSpace(hexKey)
	if len(hexKey) != keyHexLen {
		return nil, ErrInvalidKey
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	return &Cipher{block: block}, nil
}

// IsEncrypted reports whether value carries the enc: sentinel.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, prefix)
}

// Encrypt seals plaintext with a fresh random IV. Empty strings and values that are
// already encrypted are returned unchanged.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || IsEncrypted(plaintext) {
		return plaintext, nil
	}
	aead, err := cipher.NewGCMWithNonceSize(c.block, ivSize)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return prefix + hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt opens an enc: value. Plain values pass through untouched.
func (c *Cipher) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	parts := strings.Split(strings.TrimPrefix(value, prefix), ":")
	if len(parts) != 3 {
		return "", ErrMalformed
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) == 0 {
		return "", ErrMalformed
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrMalformed
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformed
	}
	aead, err := cipher.NewGCMWithNonceSize(c.block, len(iv))
	if err != nil {
		return "", ErrMalformed
	}
	plain, err := aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return string(plain), nil
}

// EncryptPtr encrypts an optional value.
func (c *Cipher) EncryptPtr(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	out, err := c.Encrypt(*value)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DecryptPtr decrypts an optional value. A value that fails to decrypt yields nil and the
// error, so callers can log it and keep serving the rest of the record.
func (c *Cipher) DecryptPtr(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	out, err := c.Decrypt(*value)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
