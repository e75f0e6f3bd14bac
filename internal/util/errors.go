package util

import "errors"

// ValidationError carrega uma mensagem destinada ao cliente (HTTP 400).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Invalid cria um erro de validação.
func Invalid(message string) error {
	return &ValidationError{Message: message}
}

// AsValidation extrai a mensagem quando err é de validação.
func AsValidation(err error) (string, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message, true
	}
	return "", false
}
