// Package secretbox cifra el client secret de Microsoft para poder guardarlo en
// YAML/env sin exponerlo en claro. AES-256-GCM, formato "enc:" + base64(nonce)|base64(ct).
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// Prefix marca un valor sellado.
	Prefix = "enc:"

	nonceSizeGCM      = 12
	requiredKeyLength = 32
	sep               = "|"
)

var ErrMalformed = errors.New("secretbox: formato inválido, esperado enc:base64(nonce)|base64(ciphertext)")

// Box sella/abre valores con una clave fija.
type Box struct {
	aead cipher.AEAD
}

// ParseKey acepta la clave en base64 (con o sin padding) o hex de 64 chars.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("secretbox: clave vacía; genere una con: openssl rand -base64 32")
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding} {
		if b, err := enc.DecodeString(s); err == nil && len(b) == requiredKeyLength {
			return b, nil
		}
	}
	if len(s) == 2*requiredKeyLength {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("secretbox: la clave debe decodificar a %d bytes", requiredKeyLength)
}

func New(key []byte) (*Box, error) {
	if len(key) != requiredKeyLength {
		return nil, fmt.Errorf("secretbox: clave inválida: %d bytes (requiere %d)", len(key), requiredKeyLength)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// IsSealed indica si v tiene el prefijo de valor cifrado.
func IsSealed(v string) bool { return strings.HasPrefix(strings.TrimSpace(v), Prefix) }

func (b *Box) Seal(plain string) (string, error) {
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}
	ct := b.aead.Seal(nil, nonce, []byte(plain), nil)
	return Prefix + base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

func (b *Box) Open(sealed string) (string, error) {
	sealed = strings.TrimSpace(sealed)
	if !strings.HasPrefix(sealed, Prefix) {
		return "", ErrMalformed
	}
	parts := strings.Split(strings.TrimPrefix(sealed, Prefix), sep)
	if len(parts) != 2 {
		return "", ErrMalformed
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSizeGCM {
		return "", ErrMalformed
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformed
	}
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm auth/decrypt: %w", err)
	}
	return string(pt), nil
}

// OpenWithKey es el atajo para config: parsea la clave y abre el valor.
func OpenWithKey(key, sealed string) (string, error) {
	k, err := ParseKey(key)
	if err != nil {
		return "", err
	}
	b, err := New(k)
	if err != nil {
		return "", err
	}
	return b.Open(sealed)
}
