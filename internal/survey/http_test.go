package survey

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contabhub/onety/internal/access"
)

type stubMembership struct {
	companies map[int64]bool
}

func (s stubMembership) IsMember(ctx context.Context, userID, companyID int64) (bool, error) {
	return s.companies[companyID], nil
}

func (s stubMembership) LinkedDepartments(ctx context.Context, userID, companyID int64) ([]int64, error) {
	return nil, nil
}

func (s stubMembership) LedDepartments(ctx context.Context, userID, companyID int64) ([]int64, error) {
	return nil, nil
}

func onlyAdmins(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := access.FromContext(r.Context())
		if !p.HasRole(access.RoleSuperAdmin, access.RoleAdmin) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newTestRouter(store *stubStore, members stubMembership, principal *access.Principal) (http.Handler, *Dispatcher) {
	svc := newTestService(store, testMessages)
	dispatcher := NewDispatcher(context.Background(), store, store, &memoryJobs{}, &fakeWhatsApp{}, testMessages, DispatcherConfig{}, zerolog.Nop())
	dispatcher.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	h := NewHandler(svc, dispatcher, access.NewPolicy(members))

	r := chi.NewRouter()
	h.RegisterPublicRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if principal != nil {
					req = req.WithContext(access.WithPrincipal(req.Context(), *principal))
				}
				next.ServeHTTP(w, req)
			})
		})
		h.RegisterRoutes(r, onlyAdmins)
	})
	return r, dispatcher
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var admin = &access.Principal{ID: 1, Role: access.RoleAdmin}

func seeded(t *testing.T) *stubStore {
	store := newStubStore()
	store.subjects[KindCustomer] = []Subject{{ID: 1, CompanyID: 1, CompanyName: "Contab", Name: "Ana"}}
	_, err := newTestService(store, testMessages).GenerateForAllEligible(context.Background(), KindCustomer)
	require.NoError(t, err)
	return store
}

func TestRespondEndpoint(t *testing.T) {
	store := seeded(t)
	h, _ := newTestRouter(store, stubMembership{}, nil)

	rec := do(t, h, http.MethodPost, "/pesquisa/responder", `{"token":"tok-1","nota":8,"comentario":"bom"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"classificacao_nps":"sala_verde"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/pesquisa/responder", `{"token":"tok-1","nota":2}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/pesquisa/responder", `{"token":"desconhecido","nota":2}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRespondEndpointValidation(t *testing.T) {
	h, _ := newTestRouter(seeded(t), stubMembership{}, nil)

	cases := map[string]string{
		`{"nota":8}`:                    "token é obrigatório",
		`{"token":"tok-1"}`:             "nota é obrigatória",
		`{"token":"tok-1","nota":"8"}`:  "nota deve ser numérica",
		`{"token":"tok-1","nota":10.5}`: "nota deve ser um inteiro entre 0 e 10",
	}
	for body, msg := range cases {
		rec := do(t, h, http.MethodPost, "/pesquisa/responder", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"error":"`+msg+`"}`, rec.Body.String(), body)
	}
}

func TestTokenLookupIsPublic(t *testing.T) {
	h, _ := newTestRouter(seeded(t), stubMembership{}, nil)

	rec := do(t, h, http.MethodGet, "/pesquisa/token/tok-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Contab", body["empresa_nome"])
	assert.Equal(t, false, body["respondida"])
	assert.NotContains(t, rec.Body.String(), "tok-1")

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/pesquisa-franqueados/token/tok-1", "").Code)
}

func TestGenerateRequiresAdmin(t *testing.T) {
	store := newStubStore()
	store.subjects[KindCustomer] = []Subject{{ID: 1, CompanyID: 1}, {ID: 2, CompanyID: 1}}

	gestor := &access.Principal{ID: 3, Role: access.RoleGestor}
	h, _ := newTestRouter(store, stubMembership{}, gestor)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodPost, "/pesquisa/gerar", "").Code)

	h, _ = newTestRouter(store, stubMembership{}, admin)
	rec := do(t, h, http.MethodPost, "/pesquisa/gerar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"total":2,"skipped":0,"failed":0}`, rec.Body.String())
}

func TestStatsRequiresMembership(t *testing.T) {
	store := seeded(t)
	gestor := &access.Principal{ID: 3, Role: access.RoleGestor}

	h, _ := newTestRouter(store, stubMembership{}, gestor)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/pesquisa/estatisticas?companyId=1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/pesquisa/estatisticas", "").Code)

	store.counts = Counts{Total: 2, Answered: 1, Green: 1, ScoreSum: 9}
	h, _ = newTestRouter(store, stubMembership{companies: map[int64]bool{1: true}}, gestor)
	rec := do(t, h, http.MethodGet, "/pesquisa/estatisticas?companyId=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"taxa_satisfacao":100`)
	assert.Contains(t, rec.Body.String(), `"taxa_resposta":50`)
}

func TestSmartDispatchEndpoint(t *testing.T) {
	store := newStubStore()
	store.subjects[KindFranchisee] = []Subject{{ID: 1, CompanyID: 7, Phone: "11987654321"}}
	h, dispatcher := newTestRouter(store, stubMembership{}, admin)

	rec := do(t, h, http.MethodPost, "/pesquisa-franqueados/disparo-inteligente", `{"companyId":7,"quota":5}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var started struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.JobID)
	dispatcher.Wait()

	rec = do(t, h, http.MethodGet, "/pesquisa-franqueados/disparo-inteligente/"+started.JobID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"concluido"`)
	assert.Contains(t, rec.Body.String(), `"sent":1`)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/pesquisa-franqueados/disparo-inteligente/nao-existe", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/pesquisa-franqueados/disparo-inteligente", `{"quota":5}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/pesquisa-franqueados/disparo-inteligente", `{"companyId":7,"quota":0}`).Code)
}
