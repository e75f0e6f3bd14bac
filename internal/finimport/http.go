package finimport

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/contabhub/onety/internal/access"
	"github.com/contabhub/onety/internal/http/render"
	"github.com/contabhub/onety/internal/util"
)

const maxUploadSize = 10 << 20

// Handler recebe planilhas de contas a pagar.
type Handler struct {
	service *Service
	policy  *access.Policy
}

func NewHandler(service *Service, policy *access.Policy) *Handler {
	return &Handler{service: service, policy: policy}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/financeiro/importar/contas-a-pagar/{empresaId}", h.handleImport)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	principal, ok := access.FromContext(r.Context())
	if !ok {
		render.ImportError(w, http.StatusUnauthorized, "não autenticado")
		return
	}
	companyID, err := render.URLID(r, "empresaId")
	if err != nil {
		render.ImportError(w, http.StatusBadRequest, "empresaId inválido")
		return
	}
	if err := h.policy.RequireCompany(r.Context(), principal, companyID); err != nil {
		if errors.Is(err, access.ErrForbidden) {
			render.ImportError(w, http.StatusForbidden, "sem acesso a esta empresa")
			return
		}
		h.internal(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		render.ImportError(w, http.StatusBadRequest, "nenhum arquivo enviado")
		return
	}
	file, header, err := r.FormFile("arquivo")
	if err != nil {
		render.ImportError(w, http.StatusBadRequest, "nenhum arquivo enviado")
		return
	}
	defer file.Close()

	if render.QueryBool(r, "preview") {
		preview, err := h.service.Preview(header.Filename, file)
		if err != nil {
			h.handleParseError(w, r, err)
			return
		}
		render.JSON(w, http.StatusOK, preview)
		return
	}

	summary, err := h.service.Import(r.Context(), companyID, header.Filename, file)
	if err != nil {
		h.handleParseError(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleParseError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnsupportedFile), errors.Is(err, ErrEmptySheet):
		render.ImportError(w, http.StatusBadRequest, err.Error())
	default:
		if msg, ok := util.AsValidation(err); ok {
			render.ImportError(w, http.StatusBadRequest, msg)
			return
		}
		h.internal(w, r, err)
	}
}

func (h *Handler) internal(w http.ResponseWriter, r *http.Request, err error) {
	log.Error().Err(err).Str("path", r.URL.Path).Msg("❌ Erro ao importar contas a pagar")
	render.ImportError(w, http.StatusInternalServerError, "erro interno")
}
