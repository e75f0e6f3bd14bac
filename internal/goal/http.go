package goal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/contabhub/onety/internal/access"
	"github.com/contabhub/onety/internal/http/render"
	"github.com/contabhub/onety/internal/util"
)

// Handler expõe as rotas de metas departamentais.
type Handler struct {
	service *Service
	policy  *access.Policy
	now     func() time.Time
}

func NewHandler(service *Service, policy *access.Policy) *Handler {
	return &Handler{service: service, policy: policy, now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/department-goals", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/organogram", h.handleOrganogram)
		r.Put("/monthly-goals/{monthlyId}", h.handleUpdateMonthly)
		r.Delete("/monthly-goals/{monthlyId}", h.handleDeleteMonthly)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
		r.Get("/{id}/monthly-goals", h.handleListMonthly)
		r.Post("/{id}/monthly-goals", h.handleCreateMonthly)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal, ok := render.Principal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	period, err := ResolvePeriod(r.URL.Query().Get("trimestre"), r.URL.Query().Get("ano"), h.now())
	if err != nil {
		h.handleDomainError(w, r, err, "")
		return
	}
	filter := ListFilter{
		Period: period,
		Page:   render.QueryInt(r, "page", 1),
		Limit:  render.QueryInt(r, "limit", 10),
	}

	departmentID, err := render.QueryID(r, "departmentId")
	switch {
	case err == nil:
		companyID, err := h.service.DepartmentCompany(ctx, departmentID)
		if err != nil {
			if errors.Is(err, ErrDepartmentNotFound) {
				render.Error(w, http.StatusNotFound, err.Error())
				return
			}
			h.handleDomainError(w, r, err, "Erro ao buscar departamento")
			return
		}
		scope, err := h.scope(ctx, principal, companyID)
		if err != nil {
			h.handleDomainError(w, r, err, "Erro ao verificar acesso")
			return
		}
		if !scope.Allows(departmentID) {
			h.handleDomainError(w, r, access.ErrForbidden, "")
			return
		}
		filter.DepartmentID = departmentID
		filter.CompanyID = companyID

	case errors.Is(err, render.ErrMissingParam):
		companyID, err := render.QueryID(r, "companyId")
		if err != nil {
			if errors.Is(err, render.ErrMissingParam) {
				render.Error(w, http.StatusBadRequest, "companyId ou departmentId é obrigatório")
			} else {
				render.Error(w, http.StatusBadRequest, "companyId inválido")
			}
			return
		}
		scope, err := h.scope(ctx, principal, companyID)
		if err != nil {
			h.handleDomainError(w, r, err, "Erro ao verificar acesso")
			return
		}
		if !scope.All {
			filter.DepartmentIDs = scope.List()
		}
		filter.CompanyID = companyID

	default:
		render.Error(w, http.StatusBadRequest, "departmentId inválido")
		return
	}

	page, err := h.service.List(ctx, filter)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao listar metas departamentais")
		return
	}
	render.JSON(w, http.StatusOK, page)
}

func (h *Handler) handleOrganogram(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	goals, err := h.service.Organogram(r.Context(), companyID)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao buscar metas do organograma")
		return
	}
	render.JSON(w, http.StatusOK, goals)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	g, err := h.service.Get(r.Context(), id, companyID)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao buscar meta")
		return
	}
	render.JSON(w, http.StatusOK, g)
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
	if in.CompanyID == 0 {
		if id, err := render.QueryID(r, "companyId"); err == nil {
			in.CompanyID = id
		}
	}
	if in.CompanyID != 0 {
		if err := h.policy.RequireCompany(r.Context(), principal, in.CompanyID); err != nil {
			h.handleDomainError(w, r, err, "Erro ao verificar acesso")
			return
		}
	}

	g, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao criar meta departamental")
		return
	}
	render.JSON(w, http.StatusCreated, g)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var body map[string]json.RawMessage
	if err := render.DecodeJSON(r, &body); err != nil {
		render.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	g, err := h.service.Update(r.Context(), id, companyID, body)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao atualizar meta departamental")
		return
	}
	render.JSON(w, http.StatusOK, g)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id, companyID); err != nil {
		h.handleDomainError(w, r, err, "Erro ao excluir meta departamental")
		return
	}
	render.JSON(w, http.StatusOK, map[string]string{"message": "Meta excluída com sucesso"})
}

func (h *Handler) handleListMonthly(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	monthly, err := h.service.ListMonthly(r.Context(), id, companyID)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao listar metas mensais")
		return
	}
	render.JSON(w, http.StatusOK, monthly)
}

func (h *Handler) handleCreateMonthly(w http.ResponseWriter, r *http.Request) {
	principal, ok := render.Principal(w, r)
	if !ok {
		return
	}
	parentID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var payload struct {
		MonthlyInput
		CompanyID      int64 `json:"company_id"`
		CompanyIDCamel int64 `json:"companyId"`
	}
	if err := render.DecodeJSON(r, &payload); err != nil {
		render.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	companyID := payload.CompanyID
	if companyID == 0 {
		companyID = payload.CompanyIDCamel
	}
	if companyID == 0 {
		if id, err := render.QueryID(r, "companyId"); err == nil {
			companyID = id
		}
	}
	if companyID == 0 {
		render.Error(w, http.StatusBadRequest, "companyId é obrigatório")
		return
	}
	if err := h.policy.RequireCompany(r.Context(), principal, companyID); err != nil {
		h.handleDomainError(w, r, err, "Erro ao verificar acesso")
		return
	}

	m, err := h.service.CreateMonthly(r.Context(), parentID, companyID, payload.MonthlyInput)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao criar meta mensal")
		return
	}
	render.JSON(w, http.StatusCreated, m)
}

func (h *Handler) handleUpdateMonthly(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "monthlyId")
	if !ok {
		return
	}

	var in MonthlyInput
	if err := render.DecodeJSON(r, &in); err != nil {
		render.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.service.UpdateMonthly(r.Context(), id, companyID, in)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao atualizar meta mensal")
		return
	}
	render.JSON(w, http.StatusOK, m)
}

func (h *Handler) handleDeleteMonthly(w http.ResponseWriter, r *http.Request) {
	companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "monthlyId")
	if !ok {
		return
	}

	if err := h.service.DeleteMonthly(r.Context(), id, companyID); err != nil {
		h.handleDomainError(w, r, err, "Erro ao excluir meta mensal")
		return
	}
	render.JSON(w, http.StatusOK, map[string]string{"message": "Meta mensal excluída com sucesso"})
}

func (h *Handler) scope(ctx context.Context, principal access.Principal, companyID int64) (access.Scope, error) {
	if err := h.policy.RequireCompany(ctx, principal, companyID); err != nil {
		return access.Scope{}, err
	}
	return h.policy.AllowedDepartments(ctx, principal, companyID)
}

// authorize exige companyId na query e vínculo do principal com a empresa.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (int64, bool) {
	principal, ok := render.Principal(w, r)
	if !ok {
		return 0, false
	}

	companyID, err := render.QueryID(r, "companyId")
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

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := render.URLID(r, name)
	if err != nil {
		render.Error(w, http.StatusBadRequest, name+" inválido")
		return 0, false
	}
	return id, true
}

func (h *Handler) handleDomainError(w http.ResponseWriter, r *http.Request, err error, label string) {
	switch {
	case errors.Is(err, access.ErrForbidden):
		render.Error(w, http.StatusForbidden, "sem acesso a esta empresa ou departamento")
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrMonthlyNotFound):
		render.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDepartmentNotFound), errors.Is(err, ErrOverlap):
		render.Error(w, http.StatusBadRequest, err.Error())
	default:
		if msg, ok := util.AsValidation(err); ok {
			render.Error(w, http.StatusBadRequest, msg)
			return
		}
		render.Internal(w, r, err, label)
	}
}
