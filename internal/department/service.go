package department

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/contabhub/onety/internal/access"
	"github.com/contabhub/onety/internal/util"
)

// Store abstrai a persistência usada pelo serviço.
type Store interface {
	ListActive(ctx context.Context, companyID int64) ([]Department, error)
	Get(ctx context.Context, id, companyID int64) (Department, error)
	RootExists(ctx context.Context, companyID int64) (bool, error)
	Insert(ctx context.Context, in CreateInput) (Department, error)
	Update(ctx context.Context, id, companyID int64, in UpdateInput) (Department, error)
	Members(ctx context.Context, id, companyID int64) ([]Member, error)
	LinkMember(ctx context.Context, id, companyID, userID int64) error
	UnlinkMember(ctx context.Context, id, companyID, userID int64) error
	Cascade(ctx context.Context, atomic bool, fn func(ctx context.Context, ops CascadeOps) error) error
}

// CascadeOps são os passos da exclusão; cada um devolve as linhas afetadas.
type CascadeOps interface {
	ReparentChildren(ctx context.Context, id, parentID int64) (int64, error)
	UnlinkMembers(ctx context.Context, id int64) (int64, error)
	DeleteTasks(ctx context.Context, id int64) (int64, error)
	MoveTasks(ctx context.Context, from, to int64) (int64, error)
	MoveGoals(ctx context.Context, from, to int64) (int64, error)
	UnlinkKPIs(ctx context.Context, id int64) (int64, error)
	Deactivate(ctx context.Context, id int64) (int64, error)
}

// Invalidator descarta projeções em cache que dependem da árvore.
type Invalidator interface {
	InvalidateCompany(ctx context.Context, companyID int64)
}

// Service aplica as regras da árvore de departamentos.
type Service struct {
	store  Store
	atomic bool
	cache  Invalidator
}

// NewService cria o serviço. Com atomic, a exclusão em cascata roda numa única transação.
func NewService(store Store, atomic bool, cache Invalidator) *Service {
	return &Service{store: store, atomic: atomic, cache: cache}
}

// List devolve os departamentos ativos visíveis no escopo.
func (s *Service) List(ctx context.Context, companyID int64, scope access.Scope) ([]Department, error) {
	if scope.Empty() {
		return []Department{}, nil
	}
	depts, err := s.store.ListActive(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if scope.All {
		return depts, nil
	}

	visible := make([]Department, 0, len(depts))
	for _, d := range depts {
		if scope.Allows(d.ID) {
			visible = append(visible, d)
		}
	}
	return visible, nil
}

// Tree monta o organograma dos departamentos visíveis.
func (s *Service) Tree(ctx context.Context, companyID int64, scope access.Scope) ([]*Node, error) {
	depts, err := s.List(ctx, companyID, scope)
	if err != nil {
		return nil, err
	}
	return BuildTree(depts), nil
}

func (s *Service) Get(ctx context.Context, id, companyID int64) (Department, error) {
	return s.store.Get(ctx, id, companyID)
}

// Create insere um departamento respeitando a raiz única por empresa.
func (s *Service) Create(ctx context.Context, in CreateInput) (Department, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := util.ValidateStruct(in); err != nil {
		return Department{}, err
	}

	if in.ParentID == nil {
		exists, err := s.store.RootExists(ctx, in.CompanyID)
		if err != nil {
			return Department{}, err
		}
		if exists {
			return Department{}, ErrRootExists
		}
	} else if _, err := s.store.Get(ctx, *in.ParentID, in.CompanyID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Department{}, util.Invalid("departamento pai não encontrado nesta empresa")
		}
		return Department{}, err
	}

	dept, err := s.store.Insert(ctx, in)
	if err != nil {
		return Department{}, err
	}
	s.invalidate(ctx, in.CompanyID)
	return dept, nil
}

// Update renomeia, troca responsável ou move o departamento na árvore.
func (s *Service) Update(ctx context.Context, id, companyID int64, in UpdateInput) (Department, error) {
	current, err := s.store.Get(ctx, id, companyID)
	if err != nil {
		return Department{}, err
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return Department{}, util.Invalid("title obrigatório")
		}
		in.Title = &title
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		in.Description = &desc
	}

	if in.ParentID != nil {
		if current.IsRoot() {
			return Department{}, util.Invalid("o departamento raiz não pode ter departamento pai")
		}
		if *in.ParentID == id {
			return Department{}, ErrCycle
		}
		if _, err := s.store.Get(ctx, *in.ParentID, companyID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return Department{}, util.Invalid("departamento pai não encontrado nesta empresa")
			}
			return Department{}, err
		}
		depts, err := s.store.ListActive(ctx, companyID)
		if err != nil {
			return Department{}, err
		}
		if WouldCycle(depts, id, *in.ParentID) {
			return Department{}, ErrCycle
		}
	}

	dept, err := s.store.Update(ctx, id, companyID, in)
	if err != nil {
		return Department{}, err
	}
	s.invalidate(ctx, companyID)
	return dept, nil
}

type cascadeStep struct {
	name  string
	count *int64
	run   func() (int64, error)
}

// Delete inativa o departamento e redistribui filhos, membros, tarefas, metas e KPIs.
func (s *Service) Delete(ctx context.Context, id, companyID int64, opts DeleteOptions) (DeleteSummary, error) {
	dept, err := s.store.Get(ctx, id, companyID)
	if err != nil {
		return DeleteSummary{}, err
	}
	if dept.IsRoot() {
		return DeleteSummary{}, ErrRootDepartment
	}
	parentID := *dept.ParentID

	summary := DeleteSummary{
		DepartmentID: id,
		ParentID:     parentID,
		TaskAction:   TaskActionMovedToParent,
		GoalAction:   GoalActionMovedToParent,
		Warnings:     []string{},
	}
	taskTarget := parentID

	switch {
	case opts.DeleteTasks:
		summary.TaskAction = TaskActionDeleted
	case opts.TransferTasks:
		if opts.TransferToDepartmentID == 0 {
			return DeleteSummary{}, util.Invalid("transferToDepartment obrigatório para transferir tarefas")
		}
		if opts.TransferToDepartmentID == id {
			return DeleteSummary{}, util.Invalid("as tarefas não podem ser transferidas para o departamento excluído")
		}
		if _, err := s.store.Get(ctx, opts.TransferToDepartmentID, companyID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return DeleteSummary{}, util.Invalid("departamento de destino não encontrado nesta empresa")
			}
			return DeleteSummary{}, err
		}
		summary.TaskAction = TaskActionTransferred
		taskTarget = opts.TransferToDepartmentID
		summary.TasksTargetID = taskTarget
	}

	logger := log.With().
		Str("component", "department").
		Int64("department_id", id).
		Int64("company_id", companyID).
		Logger()

	err = s.store.Cascade(ctx, s.atomic, func(ctx context.Context, ops CascadeOps) error {
		steps := []cascadeStep{
			{"reparent_children", &summary.ChildrenReparented, func() (int64, error) {
				return ops.ReparentChildren(ctx, id, parentID)
			}},
			{"unlink_members", &summary.MembersUnlinked, func() (int64, error) {
				return ops.UnlinkMembers(ctx, id)
			}},
			{"tasks", &summary.TasksAffected, func() (int64, error) {
				if summary.TaskAction == TaskActionDeleted {
					return ops.DeleteTasks(ctx, id)
				}
				return ops.MoveTasks(ctx, id, taskTarget)
			}},
			{"goals", &summary.GoalsAffected, func() (int64, error) {
				return ops.MoveGoals(ctx, id, parentID)
			}},
			{"kpis", &summary.KPIsUnlinked, func() (int64, error) {
				return ops.UnlinkKPIs(ctx, id)
			}},
			{"deactivate", nil, func() (int64, error) {
				return ops.Deactivate(ctx, id)
			}},
		}

		for _, step := range steps {
			n, err := step.run()
			if err != nil {
				if s.atomic {
					return fmt.Errorf("%s: %w", step.name, err)
				}
				logger.Warn().Err(err).Str("step", step.name).Msg("⚠️ etapa da exclusão de departamento falhou")
				summary.Warnings = append(summary.Warnings, step.name)
				continue
			}
			if step.count != nil {
				*step.count = n
			}
		}
		return nil
	})
	if err != nil {
		return DeleteSummary{}, err
	}

	summary.Message = "Departamento excluído com sucesso"
	s.invalidate(ctx, companyID)
	return summary, nil
}

func (s *Service) Members(ctx context.Context, id, companyID int64) ([]Member, error) {
	if _, err := s.store.Get(ctx, id, companyID); err != nil {
		return nil, err
	}
	return s.store.Members(ctx, id, companyID)
}

func (s *Service) LinkMember(ctx context.Context, id, companyID, userID int64) error {
	if _, err := s.store.Get(ctx, id, companyID); err != nil {
		return err
	}
	return s.store.LinkMember(ctx, id, companyID, userID)
}

func (s *Service) UnlinkMember(ctx context.Context, id, companyID, userID int64) error {
	return s.store.UnlinkMember(ctx, id, companyID, userID)
}

func (s *Service) invalidate(ctx context.Context, companyID int64) {
	if s.cache != nil {
		s.cache.InvalidateCompany(ctx, companyID)
	}
}
