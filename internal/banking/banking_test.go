package banking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contabhub/onety/internal/access"
)

type storedAccount struct {
	Account
	secret string
}

type stubStore struct {
	accounts []storedAccount
}

func (s *stubStore) Create(ctx context.Context, in CreateInput) (int64, error) {
	if in.Default {
		for i := range s.accounts {
			if s.accounts[i].CompanyID == in.CompanyID {
				s.accounts[i].Default = false
			}
		}
	}
	id := int64(len(s.accounts) + 1)
	s.accounts = append(s.accounts, storedAccount{
		Account: Account{ID: id, CompanyID: in.CompanyID, Nickname: in.Nickname, AccountNumber: in.AccountNumber, ClientID: in.ClientID, Default: in.Default},
		secret:  in.ClientSecret,
	})
	return id, nil
}

func (s *stubStore) List(ctx context.Context, companyID int64) ([]Account, error) {
	out := []Account{}
	for _, a := range s.accounts {
		if a.CompanyID == companyID {
			out = append(out, a.Account)
		}
	}
	return out, nil
}

func (s *stubStore) SetDefault(ctx context.Context, id, companyID int64) error {
	found := false
	for _, a := range s.accounts {
		if a.ID == id && a.CompanyID == companyID {
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	for i := range s.accounts {
		if s.accounts[i].CompanyID == companyID {
			s.accounts[i].Default = s.accounts[i].ID == id
		}
	}
	return nil
}

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

func newTestRouter(store *stubStore, principal access.Principal) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(access.WithPrincipal(req.Context(), principal)))
		})
	})
	policy := access.NewPolicy(stubMembership{companies: map[int64]bool{1: true}})
	NewHandler(NewService(store), policy).RegisterRoutes(r)
	return r
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var gestor = access.Principal{ID: 5, Role: access.RoleGestor}

func TestCreateListsMissingFields(t *testing.T) {
	h := newTestRouter(&stubStore{}, gestor)

	rec := do(h, http.MethodPost, "/inter-accounts", `{"empresa_id":1,"apelido":"Principal"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"campos obrigatórios: conta_corrente, client_id, client_secret"}`, rec.Body.String())

	rec = do(h, http.MethodPost, "/inter-accounts", `{"empresa_id":1,"apelido":"  ","conta_corrente":"123","client_id":"a","client_secret":"b"}`)
	assert.JSONEq(t, `{"error":"campo obrigatório: apelido"}`, rec.Body.String())
}

func TestCreateResetsDefaultAndHidesSecrets(t *testing.T) {
	store := &stubStore{}
	h := newTestRouter(store, gestor)

	body := `{"empresa_id":1,"apelido":"%s","conta_corrente":"123","client_id":"cid","client_secret":"segredo","padrao":true}`
	rec := do(h, http.MethodPost, "/inter-accounts", strings.Replace(body, "%s", "Matriz", 1))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":1,"message":"Conta Inter cadastrada com sucesso"}`, rec.Body.String())

	rec = do(h, http.MethodPost, "/inter-accounts", strings.Replace(body, "%s", "Filial", 1))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(h, http.MethodGet, "/inter-accounts?companyId=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "segredo")

	var accounts []Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accounts))
	require.Len(t, accounts, 2)
	assert.False(t, accounts[0].Default)
	assert.True(t, accounts[1].Default)
}

func TestSetDefault(t *testing.T) {
	store := &stubStore{}
	_, _ = store.Create(context.Background(), CreateInput{CompanyID: 1, Nickname: "A", Default: true})
	_, _ = store.Create(context.Background(), CreateInput{CompanyID: 1, Nickname: "B"})
	h := newTestRouter(store, gestor)

	rec := do(h, http.MethodPut, "/inter-accounts/2/default?companyId=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, store.accounts[0].Default)
	assert.True(t, store.accounts[1].Default)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPut, "/inter-accounts/9/default?companyId=1", "").Code)
}

func TestCompanyMembershipEnforced(t *testing.T) {
	h := newTestRouter(&stubStore{}, gestor)

	assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "/inter-accounts?companyId=2", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/inter-accounts", "").Code)

	rec := do(h, http.MethodPost, "/inter-accounts", `{"empresa_id":2,"apelido":"x","conta_corrente":"1","client_id":"a","client_secret":"b"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
