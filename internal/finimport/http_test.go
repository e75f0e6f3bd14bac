package finimport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contabhub/onety/internal/access"
)

type stubStore struct {
	companyID int64
	rows      []Row
	err       error
}

func (s *stubStore) InsertPayables(ctx context.Context, companyID int64, rows []Row) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.companyID = companyID
	s.rows = append(s.rows, rows...)
	return int64(len(rows)), nil
}

type stubMembership struct{}

func (stubMembership) IsMember(ctx context.Context, userID, companyID int64) (bool, error) {
	return companyID == 3, nil
}

func (stubMembership) LinkedDepartments(ctx context.Context, userID, companyID int64) ([]int64, error) {
	return nil, nil
}

func (stubMembership) LedDepartments(ctx context.Context, userID, companyID int64) ([]int64, error) {
	return nil, nil
}

func newTestRouter(store *stubStore) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := access.Principal{ID: 2, Role: access.RoleFuncionario}
			next.ServeHTTP(w, req.WithContext(access.WithPrincipal(req.Context(), p)))
		})
	})
	NewHandler(NewService(store, zerolog.Nop()), access.NewPolicy(stubMembership{})).RegisterRoutes(r)
	return r
}

func upload(t *testing.T, h http.Handler, target, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("arquivo", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("outro", "x"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const sampleCSV = "descricao,valor,vencimento\nAluguel,1500.00,2024-04-10\nLuz,xx,2024-04-11\n"

func TestImportPreviewDoesNotWrite(t *testing.T) {
	store := &stubStore{}
	rec := upload(t, newTestRouter(store), "/financeiro/importar/contas-a-pagar/3?preview=true", "contas.csv", []byte(sampleCSV))

	require.Equal(t, http.StatusOK, rec.Code)
	var preview Preview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.True(t, preview.Preview)
	assert.Equal(t, 2, preview.Total)
	assert.Equal(t, 1, preview.Valid)
	assert.Len(t, preview.Errors, 1)
	assert.Empty(t, store.rows)
}

func TestImportWritesValidRows(t *testing.T) {
	store := &stubStore{}
	rec := upload(t, newTestRouter(store), "/financeiro/importar/contas-a-pagar/3", "contas.csv", []byte(sampleCSV))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"importadas":1,"ignoradas":1,"erros":[{"linha":3,"erro":"valor inválido: \"xx\""}]}`, rec.Body.String())
	assert.Equal(t, int64(3), store.companyID)
	require.Len(t, store.rows, 1)
	assert.Equal(t, "Aluguel", store.rows[0].Description)
}

func TestImportErrorsUseErroKey(t *testing.T) {
	h := newTestRouter(&stubStore{})

	rec := upload(t, h, "/financeiro/importar/contas-a-pagar/3", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"erro":"nenhum arquivo enviado"}`, rec.Body.String())

	rec = upload(t, h, "/financeiro/importar/contas-a-pagar/3", "contas.txt", []byte("x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"erro":"formato não suportado, envie .xlsx ou .csv"}`, rec.Body.String())

	rec = upload(t, h, "/financeiro/importar/contas-a-pagar/3", "contas.csv", []byte("\n\n"))
	assert.JSONEq(t, `{"erro":"planilha vazia"}`, rec.Body.String())

	rec = upload(t, h, "/financeiro/importar/contas-a-pagar/4", "contas.csv", []byte(sampleCSV))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestImportDatabaseFailure(t *testing.T) {
	rec := upload(t, newTestRouter(&stubStore{err: errors.New("copy falhou")}), "/financeiro/importar/contas-a-pagar/3", "contas.csv", []byte(sampleCSV))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"erro":"erro interno"}`, rec.Body.String())
}
