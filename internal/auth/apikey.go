package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidAPIKey é retornado para chaves mal formadas.
var ErrInvalidAPIKey = errors.New("api key inválida")

var params = &argon2id.Params{
	Memory:      64 * 1024, // 64 MB
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// GenerateAPIKey cria chave no formato <prefixo>.<segredo> e devolve o hash do segredo.
func GenerateAPIKey() (key, prefix, hash string, err error) {
	prefixBuf := make([]byte, 6)
	if _, err = rand.Read(prefixBuf); err != nil {
		return "", "", "", err
	}
	secretBuf := make([]byte, 24)
	if _, err = rand.Read(secretBuf); err != nil {
		return "", "", "", err
	}

	prefix = "onety_" + hex.EncodeToString(prefixBuf)
	secret := hex.EncodeToString(secretBuf)

	hash, err = argon2id.CreateHash(secret, params)
	if err != nil {
		return "", "", "", err
	}
	return prefix + "." + secret, prefix, hash, nil
}

// SplitAPIKey separa prefixo (usado na busca) e segredo (comparado ao hash).
func SplitAPIKey(key string) (prefix, secret string, err error) {
	prefix, secret, ok := strings.Cut(strings.TrimSpace(key), ".")
	if !ok || prefix == "" || secret == "" {
		return "", "", ErrInvalidAPIKey
	}
	return prefix, secret, nil
}

// VerifyAPIKey compara o segredo com o hash Argon2id (lendo parâmetros do próprio hash).
func VerifyAPIKey(secret, encodedHash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(secret, encodedHash)
}
