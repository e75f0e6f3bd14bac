package notify

import (
	"context"
	"net/http"
	"strings"
	"unicode"

	"github.com/contabhub/onety/internal/config"
)

// WhatsAppSender publica mensagens de texto no gateway de WhatsApp.
type WhatsAppSender struct {
	apiURL string
	token  string
	client *http.Client
}

func NewWhatsAppSender(cfg config.WhatsAppConfig) *WhatsAppSender {
	return &WhatsAppSender{apiURL: cfg.APIURL, token: cfg.APIToken, client: newHTTPClient()}
}

func (s *WhatsAppSender) Send(ctx context.Context, msg Message) error {
	if s == nil || s.apiURL == "" {
		return ErrChannelDisabled
	}

	number := NormalizePhone(msg.To)
	if number == "" {
		return &InvalidMessageError{Reason: "telefone inválido"}
	}

	headers := map[string]string{}
	if s.token != "" {
		headers["Authorization"] = "Bearer " + s.token
	}
	payload := map[string]string{
		"number":  number,
		"message": msg.Body,
	}
	return postJSON(ctx, s.client, "whatsapp", s.apiURL+"/messages", headers, payload)
}

// NormalizePhone mantém apenas dígitos e prefixa 55 em números nacionais com DDD.
func NormalizePhone(raw string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
	digits = strings.TrimLeft(digits, "0")

	switch {
	case len(digits) == 10 || len(digits) == 11:
		return "55" + digits
	case (len(digits) == 12 || len(digits) == 13) && strings.HasPrefix(digits, "55"):
		return digits
	}
	return ""
}
