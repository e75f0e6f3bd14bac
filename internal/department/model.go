package department

import (
	"errors"
	"time"
)

const (
	StatusActive   = "ativo"
	StatusInactive = "inativo"

	// CodeRootDepartment é devolvido ao tentar excluir o departamento raiz.
	CodeRootDepartment = "ROOT_DEPARTMENT_CANNOT_BE_DELETED"
)

var (
	ErrNotFound       = errors.New("departamento não encontrado")
	ErrRootDepartment = errors.New("o departamento raiz não pode ser excluído")
	ErrRootExists     = errors.New("já existe um departamento raiz para esta empresa; informe o departamento pai")
	ErrCycle          = errors.New("um departamento não pode ser subordinado a si mesmo ou a um descendente")
	ErrMemberNotFound = errors.New("usuário não vinculado à empresa")
)

// Department espelha uma linha de departamentos.
type Department struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ParentID    *int64    `json:"parent_id"`
	ManagerID   *int64    `json:"manager_id"`
	Level       int       `json:"level"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsRoot indica departamento sem pai.
func (d Department) IsRoot() bool {
	return d.ParentID == nil
}

// CreateInput dados para um novo departamento.
type CreateInput struct {
	CompanyID   int64  `json:"company_id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	ManagerID   *int64 `json:"manager_id"`
	ParentID    *int64 `json:"parent_id"`
}

// UpdateInput altera apenas os campos informados.
type UpdateInput struct {
	Title        *string
	Description  *string
	ManagerID    *int64
	ClearManager bool
	ParentID     *int64
}

// DeleteOptions controla o destino das tarefas do departamento removido.
type DeleteOptions struct {
	DeleteTasks            bool
	TransferTasks          bool
	TransferToDepartmentID int64
}

// Member é um usuário vinculado à empresa.
type Member struct {
	UserID       int64  `json:"user_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	DepartmentID *int64 `json:"department_id"`
}

const (
	TaskActionDeleted       = "deleted"
	TaskActionTransferred   = "transferred"
	TaskActionMovedToParent = "moved_to_parent"
	GoalActionMovedToParent = "moved_to_parent"
)

// DeleteSummary descreve o que a exclusão em cascata alterou.
type DeleteSummary struct {
	Message            string   `json:"message"`
	DepartmentID       int64    `json:"department_id"`
	ParentID           int64    `json:"parent_id"`
	ChildrenReparented int64    `json:"children_reparented"`
	MembersUnlinked    int64    `json:"members_unlinked"`
	TaskAction         string   `json:"task_action"`
	TasksAffected      int64    `json:"tasks_affected"`
	TasksTargetID      int64    `json:"tasks_target_department_id,omitempty"`
	GoalAction         string   `json:"goal_action"`
	GoalsAffected      int64    `json:"goals_affected"`
	KPIsUnlinked       int64    `json:"kpis_unlinked"`
	Warnings           []string `json:"warnings"`
}
