package util

import (
	"crypto/rand"
	"encoding/hex"
	"io"
)

// RandomHex gera n bytes aleatórios codificados em hexadecimal.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
