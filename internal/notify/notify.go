package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrChannelDisabled indica canal sem configuração; a entrega não deve ser repetida.
var ErrChannelDisabled = errors.New("canal de entrega não configurado")

// Message é o conteúdo de uma entrega em qualquer canal.
type Message struct {
	To             string          `json:"to"`
	Subject        string          `json:"subject,omitempty"`
	Body           string          `json:"body,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	IdempotencyKey string          `json:"-"`
}

// Sender entrega mensagens em um canal externo.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// StatusError é uma resposta HTTP não 2xx de um provedor.
type StatusError struct {
	Channel string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s respondeu %d: %s", e.Channel, e.Code, e.Body)
	}
	return fmt.Sprintf("%s respondeu %d", e.Channel, e.Code)
}

// InvalidMessageError indica conteúdo que nenhum reenvio conserta (destinatário inválido etc).
type InvalidMessageError struct {
	Reason string
}

func (e *InvalidMessageError) Error() string {
	return "mensagem inválida: " + e.Reason
}

// Retryable diz se vale tentar de novo: falhas de rede, 429 e 5xx.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrChannelDisabled) {
		return false
	}
	var invalid *InvalidMessageError
	if errors.As(err, &invalid) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= 500
	}
	return true
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func postJSON(ctx context.Context, client *http.Client, channel, url string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &InvalidMessageError{Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Channel: channel, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return nil
}
