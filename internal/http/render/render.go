package render

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// ErrorBody é o formato de erro exposto aos clientes.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON escreve a resposta serializada com o status informado.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Error escreve {"error": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// ErrorCode escreve erro com código legível por máquina.
func ErrorCode(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorBody{Error: message, Code: code})
}

// ImportError usa a chave "erro" adotada pelas rotas de importação.
func ImportError(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"erro": message})
}

// Internal registra a falha e responde 500 sem detalhes internos.
func Internal(w http.ResponseWriter, r *http.Request, err error, label string) {
	event := log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path)
	if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
		event = event.Str("request_id", reqID)
	}
	event.Msg("❌ " + label)
	Error(w, http.StatusInternalServerError, "erro interno")
}

// DecodeJSON lê o corpo exigindo JSON válido.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("corpo da requisição vazio")
		}
		return errors.New("JSON inválido")
	}
	return nil
}
