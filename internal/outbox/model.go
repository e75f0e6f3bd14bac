package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending = "pendente"
	StatusSent    = "enviado"
	StatusFailed  = "falhou"
)

const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
	ChannelWebhook  = "webhook"
)

var (
	ErrNotFound  = errors.New("entrega não encontrada")
	ErrNotFailed = errors.New("apenas entregas com falha podem ser reenviadas")
)

// Delivery é uma linha de pesquisa_entregas.
type Delivery struct {
	ID            int64           `json:"id"`
	SurveyKind    string          `json:"tipo_pesquisa"`
	SurveyID      int64           `json:"pesquisa_id"`
	Channel       string          `json:"canal"`
	Destination   string          `json:"destino"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	Attempts      int             `json:"tentativas"`
	LastError     *string         `json:"ultimo_erro"`
	NextAttemptAt time.Time       `json:"proxima_tentativa_em"`
	CreatedAt     time.Time       `json:"criado_em"`
	SentAt        *time.Time      `json:"enviado_em"`
}

// ListFilter restringe a listagem administrativa.
type ListFilter struct {
	Status  string
	Channel string
	Limit   int
}

var idempotencyNamespace = uuid.MustParse("6f1c1b0e-4d55-4c1a-9a53-0f5d8b7f3a21")

// IdempotencyKey é estável entre reenvios da mesma entrega.
func IdempotencyKey(id int64) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(fmt.Sprintf("entrega:%d", id))).String()
}

// NextAttempt calcula o próximo horário: 2^tentativas minutos.
func NextAttempt(now time.Time, attempts int) time.Time {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	return now.Add(time.Duration(1<<attempts) * time.Minute)
}

func validChannel(c string) bool {
	switch c {
	case ChannelEmail, ChannelWhatsApp, ChannelWebhook:
		return true
	}
	return false
}

func validStatus(s string) bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}
