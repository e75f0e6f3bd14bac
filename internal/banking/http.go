package banking

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contabhub/onety/internal/access"
	"github.com/contabhub/onety/internal/http/render"
	"github.com/contabhub/onety/internal/util"
)

// Handler expõe o cadastro de contas Inter.
type Handler struct {
	service *Service
	policy  *access.Policy
}

func NewHandler(service *Service, policy *access.Policy) *Handler {
	return &Handler{service: service, policy: policy}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/inter-accounts", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Put("/{id}/default", h.handleSetDefault)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	principal, ok := render.Principal(w, r)
	if !ok {
		return
	}

	var in CreateInput
	if err := render.DecodeJSON(r, &in); err != nil {
		render.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.CompanyID > 0 {
		if err := h.policy.RequireCompany(r.Context(), principal, in.CompanyID); err != nil {
			h.handleDomainError(w, r, err, "Erro ao verificar acesso")
			return
		}
	}

	id, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao criar conta Inter")
		return
	}
	render.JSON(w, http.StatusCreated, map[string]any{"id": id, "message": "Conta Inter cadastrada com sucesso"})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	accounts, err := h.service.List(r.Context(), companyID)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao listar contas Inter")
		return
	}
	render.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, err := render.URLID(r, "id")
	if err != nil {
		render.Error(w, http.StatusBadRequest, "id inválido")
		return
	}
	if err := h.service.SetDefault(r.Context(), id, companyID); err != nil {
		h.handleDomainError(w, r, err, "Erro ao definir conta padrão")
		return
	}
	render.JSON(w, http.StatusOK, map[string]any{"id": id, "message": "Conta padrão atualizada"})
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (int64, bool) {
	principal, ok := render.Principal(w, r)
	if !ok {
		return 0, false
	}
	companyID, err := render.QueryID(r, "companyId", "empresaId")
	if err != nil {
		if errors.Is(err, render.ErrMissingParam) {
			render.Error(w, http.StatusBadRequest, "companyId é obrigatório")
		} else {
			render.Error(w, http.StatusBadRequest, "companyId inválido")
		}
		return 0, false
	}
	if err := h.policy.RequireCompany(r.Context(), principal, companyID); err != nil {
		h.handleDomainError(w, r, err, "Erro ao verificar acesso")
		return 0, false
	}
	return companyID, true
}

func (h *Handler) handleDomainError(w http.ResponseWriter, r *http.Request, err error, label string) {
	switch {
	case errors.Is(err, access.ErrForbidden):
		render.Error(w, http.StatusForbidden, "sem acesso a esta empresa")
	case errors.Is(err, ErrNotFound):
		render.Error(w, http.StatusNotFound, err.Error())
	default:
		if msg, ok := util.AsValidation(err); ok {
			render.Error(w, http.StatusBadRequest, msg)
			return
		}
		render.Internal(w, r, err, label)
	}
}
