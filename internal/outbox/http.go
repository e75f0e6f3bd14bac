package outbox

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contabhub/onety/internal/http/render"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// AdminStore expõe consulta e reenvio de entregas.
type AdminStore interface {
	List(ctx context.Context, f ListFilter) ([]Delivery, error)
	Retry(ctx context.Context, id int64) error
}

// Handler expõe a fila para operadores.
type Handler struct {
	store AdminStore
}

func NewHandler(store AdminStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/outbox", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/{id}/retry", h.retry)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ListFilter{Status: q.Get("status"), Channel: q.Get("canal")}
	if f.Status != "" && !validStatus(f.Status) {
		render.Error(w, http.StatusBadRequest, "status inválido")
		return
	}
	if f.Channel != "" && !validChannel(f.Channel) {
		render.Error(w, http.StatusBadRequest, "canal inválido")
		return
	}

	limit := render.QueryInt(r, "limit", defaultListLimit)
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	f.Limit = limit

	items, err := h.store.List(r.Context(), f)
	if err != nil {
		render.Internal(w, r, err, "outbox: listar falhou")
		return
	}
	render.JSON(w, http.StatusOK, items)
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	id, err := render.URLID(r, "id")
	if err != nil {
		render.Error(w, http.StatusBadRequest, "id inválido")
		return
	}

	switch err := h.store.Retry(r.Context(), id); {
	case err == nil:
		render.JSON(w, http.StatusOK, map[string]any{"id": id, "status": StatusPending})
	case errors.Is(err, ErrNotFound):
		render.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotFailed):
		render.Error(w, http.StatusConflict, err.Error())
	default:
		render.Internal(w, r, err, "outbox: reenvio falhou")
	}
}
