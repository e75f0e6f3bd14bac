package banking

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("conta Inter não encontrada")

// Account é a visão pública de uma conta Inter; credenciais nunca saem da API.
type Account struct {
	ID             int64     `json:"id"`
	CompanyID      int64     `json:"empresa_id"`
	Nickname       string    `json:"apelido"`
	AccountNumber  string    `json:"conta_corrente"`
	ClientID       string    `json:"client_id"`
	HasCertificate bool      `json:"possui_certificado"`
	Default        bool      `json:"padrao"`
	CreatedAt      time.Time `json:"criado_em"`
}

// CreateInput são as credenciais de integração com o Banco Inter.
type CreateInput struct {
	CompanyID     int64   `json:"empresa_id" validate:"required"`
	Nickname      string  `json:"apelido" validate:"required"`
	AccountNumber string  `json:"conta_corrente" validate:"required"`
	ClientID      string  `json:"client_id" validate:"required"`
	ClientSecret  string  `json:"client_secret" validate:"required"`
	Certificate   *string `json:"certificado"`
	Key           *string `json:"chave"`
	Default       bool    `json:"padrao"`
}
