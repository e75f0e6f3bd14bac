package survey

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/contabhub/onety/internal/access"
	"github.com/contabhub/onety/internal/http/render"
	"github.com/contabhub/onety/internal/util"
)

// Handler expõe as rotas de pesquisa de satisfação.
type Handler struct {
	service    *Service
	dispatcher *Dispatcher
	policy     *access.Policy
}

func NewHandler(service *Service, dispatcher *Dispatcher, policy *access.Policy) *Handler {
	return &Handler{service: service, dispatcher: dispatcher, policy: policy}
}

// RegisterPublicRoutes registra as rotas usadas pelo portador do token, sem autenticação.
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/pesquisa/token/{token}", h.handleByToken(KindCustomer))
	r.Post("/pesquisa/responder", h.handleRespond(KindCustomer))
	r.Get("/pesquisa-franqueados/token/{token}", h.handleByToken(KindFranchisee))
	r.Post("/pesquisa-franqueados/responder", h.handleRespond(KindFranchisee))
}

// RegisterRoutes registra as rotas autenticadas; admin restringe a geração em lote.
func (h *Handler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.With(admin).Post("/pesquisa/gerar", h.handleGenerate(KindCustomer))
	r.Get("/pesquisa", h.handleList(KindCustomer))
	r.Get("/pesquisa/estatisticas", h.handleStats(KindCustomer))

	r.With(admin).Post("/pesquisa-franqueados/gerar", h.handleGenerate(KindFranchisee))
	r.Get("/pesquisa-franqueados", h.handleList(KindFranchisee))
	r.Get("/pesquisa-franqueados/estatisticas", h.handleStats(KindFranchisee))
	r.Post("/pesquisa-franqueados/disparo-inteligente", h.handleSmartDispatch)
	r.Get("/pesquisa-franqueados/disparo-inteligente/{jobId}", h.handleDispatchStatus)
}

type respondRequest struct {
	Token         string          `json:"token"`
	Score         json.RawMessage `json:"nota"`
	Comment       string          `json:"comentario"`
	FiscalScore   json.RawMessage `json:"nota_fiscal"`
	PersonalScore json.RawMessage `json:"nota_pessoal"`
	AccountScore  json.RawMessage `json:"nota_contabil"`
}

func (h *Handler) handleRespond(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req respondRequest
		if err := render.DecodeJSON(r, &req); err != nil {
			render.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(req.Token) == "" {
			render.Error(w, http.StatusBadRequest, "token é obrigatório")
			return
		}

		score, err := ParseScore(req.Score, "nota", true)
		if err != nil {
			h.handleDomainError(w, r, err, "Erro ao validar resposta")
			return
		}
		answer := Answer{Token: req.Token, Score: *score, Comment: req.Comment}
		if kind == KindFranchisee {
			extras := []struct {
				raw   json.RawMessage
				field string
				dst   **int
			}{
				{req.FiscalScore, "nota_fiscal", &answer.FiscalScore},
				{req.PersonalScore, "nota_pessoal", &answer.PersonalScore},
				{req.AccountScore, "nota_contabil", &answer.AccountScore},
			}
			for _, e := range extras {
				v, err := ParseScore(e.raw, e.field, false)
				if err != nil {
					h.handleDomainError(w, r, err, "Erro ao validar resposta")
					return
				}
				*e.dst = v
			}
		}

		classification, err := h.service.Respond(r.Context(), kind, answer)
		if err != nil {
			h.handleDomainError(w, r, err, "Erro ao registrar resposta da pesquisa")
			return
		}
		render.JSON(w, http.StatusOK, map[string]any{"ok": true, "classificacao_nps": classification})
	}
}

func (h *Handler) handleByToken(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sv, err := h.service.GetByToken(r.Context(), kind, chi.URLParam(r, "token"))
		if err != nil {
			h.handleDomainError(w, r, err, "Erro ao buscar pesquisa")
			return
		}
		render.JSON(w, http.StatusOK, map[string]any{
			"id":           sv.ID,
			"tipo":         sv.Kind,
			"empresa_nome": sv.CompanyName,
			"nome":         sv.SubjectName,
			"respondida":   sv.Answered(),
			"enviado_em":   sv.SentAt,
		})
	}
}

func (h *Handler) handleGenerate(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h.service.GenerateForAllEligible(r.Context(), kind)
		if err != nil {
			h.handleDomainError(w, r, err, "Erro ao gerar pesquisas")
			return
		}
		render.JSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"total":   res.Created,
			"skipped": res.Skipped,
			"failed":  res.Failed,
		})
	}
}

func (h *Handler) handleList(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, companyID, ok := h.authorize(w, r, 0)
		if !ok {
			return
		}
		page, err := h.service.List(r.Context(), kind, ListFilter{
			CompanyID: companyID,
			Status:    r.URL.Query().Get("status"),
			Page:      render.QueryInt(r, "page", 1),
			Limit:     render.QueryInt(r, "limit", defaultPageLimit),
		})
		if err != nil {
			h.handleDomainError(w, r, err, "Erro ao listar pesquisas")
			return
		}
		render.JSON(w, http.StatusOK, page)
	}
}

func (h *Handler) handleStats(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, companyID, ok := h.authorize(w, r, 0)
		if !ok {
			return
		}
		st, err := h.service.Stats(r.Context(), kind, companyID)
		if err != nil {
			h.handleDomainError(w, r, err, "Erro ao calcular estatísticas")
			return
		}
		render.JSON(w, http.StatusOK, st)
	}
}

type dispatchRequest struct {
	CompanyID int64 `json:"companyId"`
	Quota     int   `json:"quota"`
}

func (h *Handler) handleSmartDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := render.DecodeJSON(r, &req); err != nil {
		render.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CompanyID <= 0 {
		render.Error(w, http.StatusBadRequest, "companyId é obrigatório")
		return
	}
	if _, _, ok := h.authorize(w, r, req.CompanyID); !ok {
		return
	}

	job, err := h.dispatcher.Start(r.Context(), req.CompanyID, req.Quota)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao iniciar disparo")
		return
	}
	render.JSON(w, http.StatusAccepted, map[string]any{"jobId": job.ID, "status": job.Status})
}

func (h *Handler) handleDispatchStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := render.Principal(w, r)
	if !ok {
		return
	}

	job, err := h.dispatcher.Status(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao consultar disparo")
		return
	}
	if err := h.policy.RequireCompany(r.Context(), principal, job.CompanyID); err != nil {
		h.handleDomainError(w, r, err, "Erro ao verificar acesso")
		return
	}
	render.JSON(w, http.StatusOK, job)
}

// authorize usa companyID quando informado; caso contrário lê companyId da query.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, companyID int64) (access.Principal, int64, bool) {
	principal, ok := render.Principal(w, r)
	if !ok {
		return access.Principal{}, 0, false
	}

	if companyID == 0 {
		id, err := render.QueryID(r, "companyId", "empresaId")
		if err != nil {
			if errors.Is(err, render.ErrMissingParam) {
				render.Error(w, http.StatusBadRequest, "companyId é obrigatório")
			} else {
				render.Error(w, http.StatusBadRequest, "companyId inválido")
			}
			return access.Principal{}, 0, false
		}
		companyID = id
	}

	if err := h.policy.RequireCompany(r.Context(), principal, companyID); err != nil {
		h.handleDomainError(w, r, err, "Erro ao verificar acesso")
		return access.Principal{}, 0, false
	}
	return principal, companyID, true
}

func (h *Handler) handleDomainError(w http.ResponseWriter, r *http.Request, err error, label string) {
	switch {
	case errors.Is(err, access.ErrForbidden):
		render.Error(w, http.StatusForbidden, "sem acesso a esta empresa")
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrJobNotFound):
		render.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyAnswered):
		render.Error(w, http.StatusConflict, err.Error())
	default:
		if msg, ok := util.AsValidation(err); ok {
			render.Error(w, http.StatusBadRequest, msg)
			return
		}
		render.Internal(w, r, err, label)
	}
}
