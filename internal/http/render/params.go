package render

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ErrMissingParam indica parâmetro obrigatório ausente.
var ErrMissingParam = errors.New("parâmetro ausente")

// URLID lê um identificador numérico positivo do path.
func URLID(r *http.Request, name string) (int64, error) {
	return parseID(chi.URLParam(r, name))
}

// QueryID lê um identificador numérico positivo da query string.
func QueryID(r *http.Request, names ...string) (int64, error) {
	for _, name := range names {
		if raw := strings.TrimSpace(r.URL.Query().Get(name)); raw != "" {
			return parseID(raw)
		}
	}
	return 0, ErrMissingParam
}

// QueryInt lê inteiro opcional, devolvendo def quando ausente ou inválido.
func QueryInt(r *http.Request, name string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// QueryBool aceita true/1/sim.
func QueryBool(r *http.Request, name string) bool {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name))) {
	case "true", "1", "sim", "yes":
		return true
	}
	return false
}

func parseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrMissingParam
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("identificador inválido")
	}
	return id, nil
}
