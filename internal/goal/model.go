package goal

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const (
	DefaultStatus        = "in_progress"
	DefaultMonthlyStatus = MonthlyPending

	MonthlyPending    = "pendente"
	MonthlyInProgress = "em_andamento"
	MonthlyDone       = "concluida"
	MonthlyMissed     = "nao_atingida"
)

var (
	ErrNotFound           = errors.New("meta não encontrada")
	ErrMonthlyNotFound    = errors.New("meta mensal não encontrada")
	ErrDepartmentNotFound = errors.New("departamento não encontrado ou inativo nesta empresa")
	ErrOverlap            = errors.New("já existe uma meta mensal cadastrada que se sobrepõe ao período informado")
)

// Goal é uma meta departamental com nomes da API.
type Goal struct {
	ID              int64         `json:"id"`
	CompanyID       int64         `json:"company_id"`
	DepartmentID    int64         `json:"department_id"`
	DepartmentName  string        `json:"department_name,omitempty"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	TargetValue     float64       `json:"target_value"`
	CurrentValue    float64       `json:"current_value"`
	StartDate       *Date         `json:"start_date"`
	EndDate         *Date         `json:"end_date"`
	Status          string        `json:"status"`
	CalculationType string        `json:"calculation_type"`
	IndicatorType   string        `json:"indicator_type"`
	ProgressType    string        `json:"progress_type"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	MonthlyGoals    []MonthlyGoal `json:"monthlyGoals"`
	Rollup          *Rollup       `json:"rollup,omitempty"`
}

// MonthlyGoal é um recorte mensal de uma meta.
type MonthlyGoal struct {
	ID            int64     `json:"id"`
	ParentGoalID  int64     `json:"parent_goal_id"`
	StartDate     Date      `json:"start_date"`
	EndDate       Date      `json:"end_date"`
	TargetValue   float64   `json:"target_value"`
	AchievedValue float64   `json:"achieved_value"`
	Status        string    `json:"status"`
	Progress      float64   `json:"progress"`
	CreatedAt     time.Time `json:"created_at"`
}

// Rollup consolida as metas mensais sob a meta principal.
type Rollup struct {
	MonthlyTargetTotal   float64 `json:"monthlyTargetTotal"`
	MonthlyAchievedTotal float64 `json:"monthlyAchievedTotal"`
	MonthlyProgress      float64 `json:"monthlyProgress"`
	MonthsCompleted      int     `json:"monthsCompleted"`
	MonthsTotal          int     `json:"monthsTotal"`
}

// CreateInput dados de uma nova meta.
type CreateInput struct {
	CompanyID       int64    `json:"company_id" validate:"required"`
	DepartmentID    int64    `json:"department_id" validate:"required"`
	Title           string   `json:"title" validate:"required"`
	Description     string   `json:"description"`
	TargetValue     float64  `json:"target_value"`
	CurrentValue    *float64 `json:"current_value"`
	StartDate       *Date    `json:"start_date"`
	EndDate         *Date    `json:"end_date"`
	Status          string   `json:"status"`
	CalculationType string   `json:"calculation_type"`
	IndicatorType   string   `json:"indicator_type"`
	ProgressType    string   `json:"progress_type"`
}

// MonthlyInput dados de criação ou alteração de meta mensal. Campos nulos são mantidos na alteração.
type MonthlyInput struct {
	StartDate     *Date           `json:"start_date"`
	EndDate       *Date           `json:"end_date"`
	TargetValue   *float64        `json:"target_value"`
	AchievedValue *float64        `json:"achieved_value"`
	Status        json.RawMessage `json:"status"`
}

// ListFilter define o modo (empresa ou departamento), período e página.
type ListFilter struct {
	CompanyID     int64
	DepartmentID  int64
	DepartmentIDs []int64
	Period        *Period
	Page          int
	Limit         int
}

// Pagination acompanha respostas paginadas.
type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalCount  int64 `json:"totalCount"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
	Limit       int   `json:"limit"`
}

// Page é a resposta paginada de metas.
type Page struct {
	Data       []Goal     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// IsMonthlyStatus indica valor aceito para status de meta mensal.
func IsMonthlyStatus(status string) bool {
	switch status {
	case MonthlyPending, MonthlyInProgress, MonthlyDone, MonthlyMissed:
		return true
	}
	return false
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
