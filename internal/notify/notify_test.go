package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contabhub/onety/internal/config"
)

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(ErrChannelDisabled))
	assert.False(t, Retryable(&InvalidMessageError{Reason: "x"}))
	assert.False(t, Retryable(&StatusError{Channel: "webhook", Code: http.StatusBadRequest}))
	assert.True(t, Retryable(&StatusError{Channel: "webhook", Code: http.StatusTooManyRequests}))
	assert.True(t, Retryable(&StatusError{Channel: "webhook", Code: http.StatusBadGateway}))
	assert.True(t, Retryable(errors.New("connection reset")))
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"(11) 98765-4321":    "5511987654321",
		"11 3456-7890":       "551134567890",
		"+55 11 98765-4321":  "5511987654321",
		"011 98765-4321":     "5511987654321",
		"12345":              "",
		"":                   "",
		"+1 (415) 555-01234": "",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizePhone(raw), raw)
	}
}

func TestWhatsAppSender(t *testing.T) {
	var got map[string]string
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sender := NewWhatsAppSender(config.WhatsAppConfig{APIURL: srv.URL, APIToken: "tok"})
	err := sender.Send(context.Background(), Message{To: "(11) 98765-4321", Body: "Olá"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, map[string]string{"number": "5511987654321", "message": "Olá"}, got)
}

func TestWhatsAppSenderErrors(t *testing.T) {
	err := NewWhatsAppSender(config.WhatsAppConfig{}).Send(context.Background(), Message{To: "11987654321"})
	assert.ErrorIs(t, err, ErrChannelDisabled)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "fora do ar", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sender := NewWhatsAppSender(config.WhatsAppConfig{APIURL: srv.URL})
	err = sender.Send(context.Background(), Message{To: "123"})
	var invalid *InvalidMessageError
	assert.ErrorAs(t, err, &invalid)

	err = sender.Send(context.Background(), Message{To: "11987654321"})
	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusServiceUnavailable, status.Code)
	assert.Contains(t, err.Error(), "fora do ar")
	assert.True(t, Retryable(err))
}

func TestWebhookSender(t *testing.T) {
	var key string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("X-Idempotency-Key")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewWebhookSender(srv.URL)
	err := sender.Send(context.Background(), Message{
		Data:           json.RawMessage(`{"evento":"pesquisa_criada","pesquisa_id":7}`),
		IdempotencyKey: "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", key)
	assert.JSONEq(t, `{"evento":"pesquisa_criada","pesquisa_id":7}`, string(body))

	err = NewWebhookSender("").Send(context.Background(), Message{})
	assert.ErrorIs(t, err, ErrChannelDisabled)
}

func TestEmailSenderValidation(t *testing.T) {
	err := NewEmailSender(config.SMTPConfig{}).Send(context.Background(), Message{To: "a@b.com"})
	assert.ErrorIs(t, err, ErrChannelDisabled)

	sender := NewEmailSender(config.SMTPConfig{Host: "smtp.invalid", Port: 587, From: "pesquisa@onety.com.br"})
	err = sender.Send(context.Background(), Message{To: "sem-arroba", Subject: "x", Body: "y"})
	var invalid *InvalidMessageError
	require.ErrorAs(t, err, &invalid)
	assert.False(t, Retryable(err))
}
