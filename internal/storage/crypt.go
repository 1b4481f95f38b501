package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

const (
	formatCBC = "3NCR0PTD"
	formatGCM = "GCM3NCR0"

	kdfIterations = 100000
)

// Encrypt seals data with a password derived AES-256-CBC key.
// Format: magic(8) + hash(32) + length(8) + salt(16) + iv(16) + ciphertext,
// hash being sha256 over salt+iv+ciphertext.
func Encrypt(data []byte, password string) ([]byte, error) {
	salt := make([]byte, 16)
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate IV: %w", err)
	}

	key := pbkdf2.Key([]byte(password), salt, kdfIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := applyPKCS7Padding(data, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	body := make([]byte, 0, 32+len(ciphertext))
	body = append(body, salt...)
	body = append(body, iv...)
	body = append(body, ciphertext...)
	hash := sha256.Sum256(body)

	out := make([]byte, 0, 8+32+8+len(body))
	out = append(out, formatCBC...)
	out = append(out, hash[:]...)
	out = binary.BigEndian.AppendUint64(out, uint64(len(body)))
	out = append(out, body...)
	return out, nil
}

// Decrypt opens data produced by Encrypt or by the GCM variant
// (magic(8) + salt(16) + nonce(12) + ciphertext+tag).
func Decrypt(data []byte, password string) ([]byte, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("encrypted data too short: %d bytes", len(data))
	}
	switch string(data[:8]) {
	case formatCBC:
		return decryptCBC(data, password)
	case formatGCM:
		return decryptGCM(data, password)
	default:
		return nil, fmt.Errorf("unknown encryption format")
	}
}

// IsEncrypted reports whether data starts with a known magic number.
func IsEncrypted(data []byte) bool {
	return len(data) >= 8 && (string(data[:8]) == formatCBC || string(data[:8]) == formatGCM)
}

func decryptGCM(data []byte, password string) ([]byte, error) {
	if len(data) < 8+16+12+16 {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(data))
	}
	salt, nonce, sealed := data[8:24], data[24:36], data[36:]

	key := pbkdf2.Key([]byte(password), salt, kdfIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plaintext, nil
}

func decryptCBC(data []byte, password string) ([]byte, error) {
	if len(data) < 8+32+8+16+16 {
		return nil, fmt.Errorf("CBC data too short: %d bytes", len(data))
	}
	storedHash := data[8:40]
	length := binary.BigEndian.Uint64(data[40:48])
	body := data[48:]
	if uint64(len(body)) != length {
		return nil, fmt.Errorf("length mismatch: expected %d, got %d", length, len(body))
	}
	calculated := sha256.Sum256(body)
	if !bytes.Equal(storedHash, calculated[:]) {
		return nil, fmt.Errorf("hash verification failed - data corrupted")
	}

	salt, iv, ciphertext := body[:16], body[16:32], body[32:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext is not a multiple of block size")
	}
	key := pbkdf2.Key([]byte(password), salt, kdfIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := removePKCS7Padding(plaintext)
	if err != nil {
		log.Debug().Err(err).Msg("PKCS7 unpadding failed")
		return nil, fmt.Errorf("wrong password or corrupted data: %w", err)
	}
	return unpadded, nil
}

func applyPKCS7Padding(data []byte, blockSize int) []byte {
	padding := blockSize - (len(data) % blockSize)
	out := make([]byte, len(data), len(data)+padding)
	copy(out, data)
	return append(out, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func removePKCS7Padding(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}
	paddingLength := int(data[len(data)-1])
	if paddingLength == 0 || paddingLength > aes.BlockSize || paddingLength > len(data) {
		return nil, fmt.Errorf("invalid padding length: %d", paddingLength)
	}
	for i := len(data) - paddingLength; i < len(data); i++ {
		if data[i] != byte(paddingLength) {
			return nil, fmt.Errorf("invalid padding at position %d", i)
		}
	}
	return data[:len(data)-paddingLength], nil
}
