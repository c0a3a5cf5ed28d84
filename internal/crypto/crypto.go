// Package crypto implements deterministic encryption for PII (email, phone,
// username). The same plaintext under the same key always yields the same
// ciphertext, so encrypted columns support equality lookups and UTM tokens
// stay stable across runs. This deliberately trades semantic security for
// determinism; do not rely on ciphertext indistinguishability.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"unicode/utf8"
)

const keySize = 32 // AES-256

// TokenAlphabet is the character set for short UTM tokens.
const TokenAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// TokenLength is the default length of generated UTM tokens.
const TokenLength = 8

// Cipher encrypts and decrypts strings under a fixed key using AES-256 in ECB
// mode with PKCS#7 padding, encoded as unpadded base64url. With an empty or
// all-zero key the cipher is a pass-through (unencrypted deployments).
type Cipher struct {
	key     []byte
	enabled bool
}

// New builds a Cipher from the configured key string. A 64-character hex
// string is taken as the raw 32 key bytes; any other non-empty string is
// repeated until long enough and truncated.
func New(key string) *Cipher {
	kb := normalizeKey(key)
	return &Cipher{key: kb, enabled: !allZero(kb)}
}

func normalizeKey(key string) []byte {
	if key == "" {
		return make([]byte, keySize)
	}
	if len(key) == keySize*2 {
		if raw, err := hex.DecodeString(key); err == nil {
			return raw
		}
	}
	kb := []byte(key)
	for len(kb) < keySize {
		kb = append(kb, kb...)
	}
	return kb[:keySize]
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// Enabled reports whether a real key is configured.
func (c *Cipher) Enabled() bool {
	return c.enabled
}

// Encrypt returns the deterministic ciphertext for plaintext. Empty input
// maps to empty output; with encryption disabled the plaintext is returned
// unchanged.
func (c *Cipher) Encrypt(plaintext string) string {
	if plaintext == "" || !c.enabled {
		return plaintext
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		// key is always keySize bytes, NewCipher cannot fail
		panic(err)
	}
	data := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
	}
	return base64.RawURLEncoding.EncodeToString(out)
}

// Result is the outcome of Decrypt. Legacy marks values that could not be
// decoded and were passed through as-is: rows written before encryption was
// introduced. Callers can log them as migration debt.
type Result struct {
	Value  string
	Legacy bool
}

// Decrypt reverses Encrypt. Malformed input is not an error: it is treated
// as a legacy unencrypted value and returned unchanged.
func (c *Cipher) Decrypt(ciphertext string) Result {
	if ciphertext == "" || !c.enabled {
		return Result{Value: ciphertext}
	}
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return Result{Value: ciphertext, Legacy: true}
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		panic(err)
	}
	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], raw[i:i+aes.BlockSize])
	}
	data, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil || !utf8.Valid(data) {
		return Result{Value: ciphertext, Legacy: true}
	}
	return Result{Value: string(data)}
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding byte %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("corrupt padding")
		}
	}
	return data[:len(data)-n], nil
}

// GenerateToken returns a random token of length over TokenAlphabet.
func GenerateToken(length int) (string, error) {
	out := make([]byte, length)
	max := big.NewInt(int64(len(TokenAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}
		out[i] = TokenAlphabet[n.Int64()]
	}
	return string(out), nil
}
