package outbox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdmin struct {
	filter  ListFilter
	items   []Delivery
	retried []int64
	retry   error
}

func (s *stubAdmin) List(ctx context.Context, f ListFilter) ([]Delivery, error) {
	s.filter = f
	return s.items, nil
}

func (s *stubAdmin) Retry(ctx context.Context, id int64) error {
	s.retried = append(s.retried, id)
	return s.retry
}

func serve(h *Handler, method, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestListDeliveries(t *testing.T) {
	store := &stubAdmin{items: []Delivery{{ID: 1, Channel: ChannelEmail, Status: StatusFailed, Payload: []byte(`{}`)}}}
	rec := serve(NewHandler(store), http.MethodGet, "/outbox?status=falhou&canal=email&limit=500")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ListFilter{Status: StatusFailed, Channel: ChannelEmail, Limit: maxListLimit}, store.filter)
	assert.Contains(t, rec.Body.String(), `"canal":"email"`)
}

func TestListRejectsUnknownFilters(t *testing.T) {
	h := NewHandler(&stubAdmin{})
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, "/outbox?status=perdido").Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, "/outbox?canal=sms").Code)
}

func TestRetryDelivery(t *testing.T) {
	store := &stubAdmin{}
	rec := serve(NewHandler(store), http.MethodPost, "/outbox/9/retry")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{9}, store.retried)
	assert.JSONEq(t, `{"id":9,"status":"pendente"}`, rec.Body.String())

	store.retry = ErrNotFound
	assert.Equal(t, http.StatusNotFound, serve(NewHandler(store), http.MethodPost, "/outbox/9/retry").Code)

	store.retry = ErrNotFailed
	assert.Equal(t, http.StatusConflict, serve(NewHandler(store), http.MethodPost, "/outbox/9/retry").Code)

	assert.Equal(t, http.StatusBadRequest, serve(NewHandler(store), http.MethodPost, "/outbox/abc/retry").Code)
}
