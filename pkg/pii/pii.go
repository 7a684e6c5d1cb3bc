// Package pii encrypts and masks bank details before they are stored.
package pii

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"unicode"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrInvalidIBAN       = errors.New("invalid IBAN")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrEmptyKey          = errors.New("encryption key is required")
)

const (
	hkdfInfo        = "settlement/iban/aes-256-cbc"
	fingerprintInfo = "settlement/iban/fingerprint"
)

// Cipher is AES-256-CBC with PKCS#7 padding and a random IV per value.
// Sealed values look like iv_hex:ciphertext_hex.
type Cipher struct {
	key    []byte
	macKey []byte
}

// NewCipher accepts a 64 char hex key as is, and stretches anything else
// with HKDF-SHA256.
func NewCipher(secret string) (*Cipher, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrEmptyKey
	}
	key := make([]byte, 32)
	if raw, err := hex.DecodeString(secret); err == nil && len(raw) == 32 {
		key = raw
	} else if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	macKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(fingerprintInfo)), macKey); err != nil {
		return nil, fmt.Errorf("derive fingerprint key: %w", err)
	}
	return &Cipher{key: key, macKey: macKey}, nil
}

// Fingerprint is a keyed HMAC-SHA256 of plain. Equal inputs give equal
// fingerprints, so it can back a unique index without storing plain text.
func (c *Cipher) Fingerprint(plain string) string {
	mac := hmac.New(sha256.New, c.macKey)
	mac.Write([]byte(plain))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Cipher) Encrypt(plain string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("read iv: %w", err)
	}
	padded := pad([]byte(plain), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

func (c *Cipher) Decrypt(sealed string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(sealed, ":")
	if !ok {
		return "", ErrInvalidCiphertext
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrInvalidCiphertext
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", ErrInvalidCiphertext
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	plain, err := unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrInvalidCiphertext
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrInvalidCiphertext
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, ErrInvalidCiphertext
		}
	}
	return b[:len(b)-n], nil
}

// NormalizeIBAN strips spaces, upper-cases and checks the mod-97 digit.
func NormalizeIBAN(raw string) (string, error) {
	iban := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if len(iban) < 15 || len(iban) > 34 {
		return "", fmt.Errorf("%w: length %d", ErrInvalidIBAN, len(iban))
	}
	for i, r := range iban {
		switch {
		case i < 2 && !unicode.IsUpper(r):
			return "", fmt.Errorf("%w: country code", ErrInvalidIBAN)
		case i >= 2 && i < 4 && !unicode.IsDigit(r):
			return "", fmt.Errorf("%w: check digits", ErrInvalidIBAN)
		case !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9'):
			return "", fmt.Errorf("%w: character %q", ErrInvalidIBAN, r)
		}
	}
	if !mod97(iban) {
		return "", fmt.Errorf("%w: checksum", ErrInvalidIBAN)
	}
	return iban, nil
}

func mod97(iban string) bool {
	rearranged := iban[4:] + iban[:4]
	var digits strings.Builder
	for _, r := range rearranged {
		if r >= 'A' && r <= 'Z' {
			fmt.Fprintf(&digits, "%d", r-'A'+10)
		} else {
			digits.WriteRune(r)
		}
	}
	n, ok := new(big.Int).SetString(digits.String(), 10)
	if !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}

// MaskIBAN keeps the country and check digits and the last four characters.
func MaskIBAN(iban string) string {
	if len(iban) < 8 {
		return "****"
	}
	return iban[:4] + " **** **** **** " + iban[len(iban)-4:]
}

// MaskName keeps the first letter of every word.
func MaskName(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		runes := []rune(w)
		words[i] = string(runes[0]) + strings.Repeat("*", len(runes)-1)
	}
	return strings.Join(words, " ")
}
