package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contabhub/onety/internal/access"
	"github.com/contabhub/onety/internal/auth"
	"github.com/contabhub/onety/internal/banking"
	"github.com/contabhub/onety/internal/config"
	"github.com/contabhub/onety/internal/department"
	"github.com/contabhub/onety/internal/finimport"
	"github.com/contabhub/onety/internal/goal"
	"github.com/contabhub/onety/internal/outbox"
	"github.com/contabhub/onety/internal/survey"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:       testSecret,
		RateLimitPublic: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
		RateLimitAuth:   config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
}

func testRouter(t *testing.T, ready Readiness) http.Handler {
	t.Helper()
	policy := access.NewPolicy(nil)
	logger := zerolog.Nop()
	messages := survey.Messages{PublicURL: "https://app.onety.com.br/pesquisa"}

	handlers := Handlers{
		Department: department.NewHandler(department.NewService(nil, false, nil), policy),
		Goal:       goal.NewHandler(goal.NewService(nil, nil), policy),
		Survey: survey.NewHandler(survey.NewService(nil, messages, logger),
			survey.NewDispatcher(context.Background(), nil, nil, nil, nil, messages, survey.DispatcherConfig{}, logger), policy),
		Outbox:  outbox.NewHandler(nil),
		Banking: banking.NewHandler(banking.NewService(nil), policy),
		Import:  finimport.NewHandler(finimport.NewService(nil, logger), policy),
	}
	return NewRouter(testConfig(), auth.NewJWTManager(testSecret, time.Minute), nil, ready, handlers)
}

func TestHealth(t *testing.T) {
	h := testRouter(t, Readiness{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReady(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	down := func(ctx context.Context) error { return errors.New("connection refused") }

	rec := httptest.NewRecorder()
	testRouter(t, Readiness{DB: ok, Redis: ok}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ready":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	testRouter(t, Readiness{DB: ok, Redis: down}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"connection refused"`)
}

func TestPrivateRoutesRequireAuth(t *testing.T) {
	h := testRouter(t, Readiness{})

	paths := []string{
		"/departments?companyId=1",
		"/organization?companyId=1",
		"/department-goals?companyId=1",
		"/pesquisa?companyId=1",
		"/inter-accounts?companyId=1",
		"/outbox",
	}
	for _, path := range paths {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestOutboxRequiresAdmin(t *testing.T) {
	jwtManager := auth.NewJWTManager(testSecret, time.Minute)
	token, err := jwtManager.GenerateAccessToken(7, access.RoleGestor, 1)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/outbox", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	testRouter(t, Readiness{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSendersSkipUnconfiguredChannels(t *testing.T) {
	cfg := testConfig()
	assert.Empty(t, Senders(cfg))

	cfg.WhatsApp = config.WhatsAppConfig{APIURL: "https://wa.example.com", APIToken: "t"}
	cfg.SurveyWebhookURL = "https://hooks.example.com/nps"
	senders := Senders(cfg)
	assert.Len(t, senders, 2)
	assert.Contains(t, senders, outbox.ChannelWhatsApp)
	assert.Contains(t, senders, outbox.ChannelWebhook)
}
