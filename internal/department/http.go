package department

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contabhub/onety/internal/access"
	"github.com/contabhub/onety/internal/http/render"
	"github.com/contabhub/onety/internal/util"
)

// Handler expõe as rotas de departamentos e organograma.
type Handler struct {
	service *Service
	policy  *access.Policy
}

func NewHandler(service *Service, policy *access.Policy) *Handler {
	return &Handler{service: service, policy: policy}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/departments", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdate)
		r.Get("/{id}/members", h.handleMembers)
		r.Post("/{id}/members", h.handleLinkMember)
		r.Delete("/{id}/members/{userId}", h.handleUnlinkMember)
	})

	r.Route("/organization", func(r chi.Router) {
		r.Get("/", h.handleTree)
		r.Delete("/{id}", h.handleDelete)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	principal, companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	scope, err := h.policy.AllowedDepartments(r.Context(), principal, companyID)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao resolver escopo de departamentos")
		return
	}

	depts, err := h.service.List(r.Context(), companyID, scope)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao listar departamentos")
		return
	}
	render.JSON(w, http.StatusOK, depts)
}

func (h *Handler) handleTree(w http.ResponseWriter, r *http.Request) {
	principal, companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	scope, err := h.policy.AllowedDepartments(r.Context(), principal, companyID)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao resolver escopo de departamentos")
		return
	}

	tree, err := h.service.Tree(r.Context(), companyID, scope)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao montar organograma")
		return
	}
	render.JSON(w, http.StatusOK, tree)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	principal, companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	scope, err := h.policy.AllowedDepartments(r.Context(), principal, companyID)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao resolver escopo de departamentos")
		return
	}
	if !scope.Allows(id) {
		h.handleDomainError(w, r, access.ErrForbidden, "")
		return
	}

	dept, err := h.service.Get(r.Context(), id, companyID)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao buscar departamento")
		return
	}
	render.JSON(w, http.StatusOK, dept)
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

	dept, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao criar departamento")
		return
	}
	render.JSON(w, http.StatusCreated, dept)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	_, companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var payload struct {
		Title       *string         `json:"title"`
		Description *string         `json:"description"`
		ManagerID   json.RawMessage `json:"manager_id"`
		ParentID    *int64          `json:"parent_id"`
	}
	if err := render.DecodeJSON(r, &payload); err != nil {
		render.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	in := UpdateInput{Title: payload.Title, Description: payload.Description, ParentID: payload.ParentID}
	if len(payload.ManagerID) > 0 {
		if bytes.Equal(bytes.TrimSpace(payload.ManagerID), []byte("null")) {
			in.ClearManager = true
		} else {
			var managerID int64
			if err := json.Unmarshal(payload.ManagerID, &managerID); err != nil || managerID <= 0 {
				render.Error(w, http.StatusBadRequest, "manager_id inválido")
				return
			}
			in.ManagerID = &managerID
		}
	}

	dept, err := h.service.Update(r.Context(), id, companyID, in)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao atualizar departamento")
		return
	}
	render.JSON(w, http.StatusOK, dept)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	_, companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	opts := DeleteOptions{
		DeleteTasks:   render.QueryBool(r, "deleteTasks"),
		TransferTasks: render.QueryBool(r, "transferTasks"),
	}
	if opts.TransferTasks {
		target, err := render.QueryID(r, "transferToDepartment")
		if err != nil && !errors.Is(err, render.ErrMissingParam) {
			render.Error(w, http.StatusBadRequest, "transferToDepartment inválido")
			return
		}
		opts.TransferToDepartmentID = target
	}

	summary, err := h.service.Delete(r.Context(), id, companyID, opts)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao excluir departamento")
		return
	}
	render.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleMembers(w http.ResponseWriter, r *http.Request) {
	_, companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	members, err := h.service.Members(r.Context(), id, companyID)
	if err != nil {
		h.handleDomainError(w, r, err, "Erro ao listar membros")
		return
	}
	render.JSON(w, http.StatusOK, members)
}

func (h *Handler) handleLinkMember(w http.ResponseWriter, r *http.Request) {
	_, companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var payload struct {
		UserID int64 `json:"user_id" validate:"required"`
	}
	if err := render.DecodeJSON(r, &payload); err != nil {
		render.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := util.ValidateStruct(payload); err != nil {
		render.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.LinkMember(r.Context(), id, companyID, payload.UserID); err != nil {
		h.handleDomainError(w, r, err, "Erro ao vincular membro")
		return
	}
	render.JSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleUnlinkMember(w http.ResponseWriter, r *http.Request) {
	_, companyID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}

	if err := h.service.UnlinkMember(r.Context(), id, companyID, userID); err != nil {
		h.handleDomainError(w, r, err, "Erro ao desvincular membro")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorize resolve principal e companyId e exige vínculo com a empresa.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (access.Principal, int64, bool) {
	principal, ok := render.Principal(w, r)
	if !ok {
		return access.Principal{}, 0, false
	}

	companyID, err := render.QueryID(r, "companyId", "empresaId")
	if err != nil {
		if errors.Is(err, render.ErrMissingParam) {
			render.Error(w, http.StatusBadRequest, "companyId é obrigatório")
		} else {
			render.Error(w, http.StatusBadRequest, "companyId inválido")
		}
		return access.Principal{}, 0, false
	}

	if err := h.policy.RequireCompany(r.Context(), principal, companyID); err != nil {
		h.handleDomainError(w, r, err, "Erro ao verificar acesso")
		return access.Principal{}, 0, false
	}
	return principal, companyID, true
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
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrMemberNotFound):
		render.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRootDepartment):
		render.ErrorCode(w, http.StatusBadRequest, CodeRootDepartment, err.Error())
	case errors.Is(err, ErrRootExists), errors.Is(err, ErrCycle):
		render.Error(w, http.StatusBadRequest, err.Error())
	default:
		if msg, ok := util.AsValidation(err); ok {
			render.Error(w, http.StatusBadRequest, msg)
			return
		}
		render.Internal(w, r, err, label)
	}
}
