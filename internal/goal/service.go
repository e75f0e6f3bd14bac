package goal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/contabhub/onety/internal/util"
)

const organogramTTL = 60 * time.Second

// Store abstrai a persistência de metas.
type Store interface {
	List(ctx context.Context, filter ListFilter) ([]Goal, int64, error)
	ListForOrganogram(ctx context.Context, companyID int64) ([]Goal, error)
	MonthlyFor(ctx context.Context, goalIDs []int64) ([]MonthlyGoal, error)
	Get(ctx context.Context, id, companyID int64) (Goal, error)
	DepartmentCompany(ctx context.Context, departmentID int64) (int64, error)
	Insert(ctx context.Context, in CreateInput) (Goal, error)
	Update(ctx context.Context, id, companyID int64, patch Patch) (Goal, error)
	Delete(ctx context.Context, id, companyID int64) error
	ListMonthly(ctx context.Context, parentID, companyID int64) ([]MonthlyGoal, error)
	GetMonthly(ctx context.Context, id, companyID int64) (MonthlyGoal, error)
	SaveMonthly(ctx context.Context, companyID int64, m MonthlyGoal) (MonthlyGoal, error)
	DeleteMonthly(ctx context.Context, id, companyID int64) error
}

// Service concentra as regras de metas departamentais.
type Service struct {
	store Store
	cache *redis.Client
}

func NewService(store Store, cache *redis.Client) *Service {
	return &Service{store: store, cache: cache}
}

func organogramKey(companyID int64) string {
	return fmt.Sprintf("goals:organogram:%d", companyID)
}

// InvalidateCompany descarta o organograma em cache da empresa.
func (s *Service) InvalidateCompany(ctx context.Context, companyID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, organogramKey(companyID)).Err(); err != nil {
		log.Warn().Err(err).Int64("company_id", companyID).Msg("⚠️ falha ao invalidar cache de metas")
	}
}

// Organogram devolve as metas dos departamentos ativos com metas mensais e consolidação.
func (s *Service) Organogram(ctx context.Context, companyID int64) ([]Goal, error) {
	key := organogramKey(companyID)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var goals []Goal
			if json.Unmarshal(data, &goals) == nil {
				return goals, nil
			}
		}
	}

	goals, err := s.store.ListForOrganogram(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if err := s.attachMonthly(ctx, goals); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(goals); err == nil {
			_ = s.cache.Set(ctx, key, payload, organogramTTL).Err()
		}
	}
	return goals, nil
}

// List pagina metas por empresa ou por departamento.
func (s *Service) List(ctx context.Context, filter ListFilter) (Page, error) {
	filter.Page, filter.Limit = NormalizePage(filter.Page, filter.Limit)

	if filter.DepartmentIDs != nil && len(filter.DepartmentIDs) == 0 {
		return Page{Data: []Goal{}, Pagination: NewPagination(filter.Page, filter.Limit, 0)}, nil
	}

	goals, total, err := s.store.List(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	if err := s.attachMonthly(ctx, goals); err != nil {
		return Page{}, err
	}
	return Page{Data: goals, Pagination: NewPagination(filter.Page, filter.Limit, total)}, nil
}

// DepartmentCompany resolve a empresa dona do departamento.
func (s *Service) DepartmentCompany(ctx context.Context, departmentID int64) (int64, error) {
	return s.store.DepartmentCompany(ctx, departmentID)
}

func (s *Service) Get(ctx context.Context, id, companyID int64) (Goal, error) {
	g, err := s.store.Get(ctx, id, companyID)
	if err != nil {
		return Goal{}, err
	}
	return s.withMonthly(ctx, g)
}

// Create valida o departamento e aplica os padrões de valor atual e status.
func (s *Service) Create(ctx context.Context, in CreateInput) (Goal, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := util.ValidateStruct(in); err != nil {
		return Goal{}, err
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(in.StartDate.Time) {
		return Goal{}, util.Invalid("end_date deve ser posterior a start_date")
	}
	if err := s.ensureDepartment(ctx, in.DepartmentID, in.CompanyID); err != nil {
		return Goal{}, err
	}

	if in.CurrentValue == nil {
		zero := 0.0
		in.CurrentValue = &zero
	}
	in.Status = normalizeStatus(in.Status)
	if in.Status == "" {
		in.Status = DefaultStatus
	}

	g, err := s.store.Insert(ctx, in)
	if err != nil {
		return Goal{}, err
	}
	s.InvalidateCompany(ctx, in.CompanyID)
	g.MonthlyGoals = []MonthlyGoal{}
	g.Rollup = rollup(nil)
	return g, nil
}

// Update aplica uma alteração parcial com nomes da API.
func (s *Service) Update(ctx context.Context, id, companyID int64, body map[string]json.RawMessage) (Goal, error) {
	current, err := s.store.Get(ctx, id, companyID)
	if err != nil {
		return Goal{}, err
	}

	patch, err := TranslatePatch(body)
	if err != nil {
		return Goal{}, err
	}
	if len(patch) == 0 {
		return Goal{}, util.Invalid("nenhum campo para atualizar")
	}

	if deptID, ok := patch["departamento_id"].(int64); ok && deptID != current.DepartmentID {
		if err := s.ensureDepartment(ctx, deptID, companyID); err != nil {
			return Goal{}, err
		}
	}

	start, end := current.StartDate, current.EndDate
	if v, ok := patch["data_inicio"]; ok {
		start = patchDate(v)
	}
	if v, ok := patch["data_fim"]; ok {
		end = patchDate(v)
	}
	if start != nil && end != nil && end.Before(start.Time) {
		return Goal{}, util.Invalid("end_date deve ser posterior a start_date")
	}

	g, err := s.store.Update(ctx, id, companyID, patch)
	if err != nil {
		return Goal{}, err
	}
	s.InvalidateCompany(ctx, companyID)
	return s.withMonthly(ctx, g)
}

func (s *Service) Delete(ctx context.Context, id, companyID int64) error {
	if err := s.store.Delete(ctx, id, companyID); err != nil {
		return err
	}
	s.InvalidateCompany(ctx, companyID)
	return nil
}

func (s *Service) ListMonthly(ctx context.Context, parentID, companyID int64) ([]MonthlyGoal, error) {
	if _, err := s.store.Get(ctx, parentID, companyID); err != nil {
		return nil, err
	}
	monthly, err := s.store.ListMonthly(ctx, parentID, companyID)
	if err != nil {
		return nil, err
	}
	if monthly == nil {
		monthly = []MonthlyGoal{}
	}
	return monthly, nil
}

// CreateMonthly cria a meta mensal rejeitando períodos sobrepostos.
func (s *Service) CreateMonthly(ctx context.Context, parentID, companyID int64, in MonthlyInput) (MonthlyGoal, error) {
	if in.StartDate == nil || in.EndDate == nil || in.StartDate.IsZero() || in.EndDate.IsZero() {
		return MonthlyGoal{}, util.Invalid("start_date e end_date são obrigatórios")
	}
	status, err := ParseMonthlyStatus(in.Status)
	if err != nil {
		return MonthlyGoal{}, err
	}

	m := MonthlyGoal{
		ParentGoalID: parentID,
		StartDate:    NewDate(in.StartDate.Time),
		EndDate:      NewDate(in.EndDate.Time),
		Status:       status,
	}
	if in.TargetValue != nil {
		m.TargetValue = *in.TargetValue
	}
	if in.AchievedValue != nil {
		m.AchievedValue = *in.AchievedValue
	}
	if m.EndDate.Before(m.StartDate.Time) {
		return MonthlyGoal{}, util.Invalid("end_date deve ser posterior a start_date")
	}

	saved, err := s.store.SaveMonthly(ctx, companyID, m)
	if err != nil {
		return MonthlyGoal{}, err
	}
	s.InvalidateCompany(ctx, companyID)
	return saved, nil
}

// UpdateMonthly altera os campos informados, revalidando a sobreposição.
func (s *Service) UpdateMonthly(ctx context.Context, id, companyID int64, in MonthlyInput) (MonthlyGoal, error) {
	m, err := s.store.GetMonthly(ctx, id, companyID)
	if err != nil {
		return MonthlyGoal{}, err
	}

	if in.StartDate != nil && !in.StartDate.IsZero() {
		m.StartDate = NewDate(in.StartDate.Time)
	}
	if in.EndDate != nil && !in.EndDate.IsZero() {
		m.EndDate = NewDate(in.EndDate.Time)
	}
	if in.TargetValue != nil {
		m.TargetValue = *in.TargetValue
	}
	if in.AchievedValue != nil {
		m.AchievedValue = *in.AchievedValue
	}
	if len(in.Status) > 0 {
		if m.Status, err = ParseMonthlyStatus(in.Status); err != nil {
			return MonthlyGoal{}, err
		}
	}
	if m.EndDate.Before(m.StartDate.Time) {
		return MonthlyGoal{}, util.Invalid("end_date deve ser posterior a start_date")
	}

	saved, err := s.store.SaveMonthly(ctx, companyID, m)
	if err != nil {
		return MonthlyGoal{}, err
	}
	s.InvalidateCompany(ctx, companyID)
	return saved, nil
}

func (s *Service) DeleteMonthly(ctx context.Context, id, companyID int64) error {
	if err := s.store.DeleteMonthly(ctx, id, companyID); err != nil {
		return err
	}
	s.InvalidateCompany(ctx, companyID)
	return nil
}

func (s *Service) ensureDepartment(ctx context.Context, departmentID, companyID int64) error {
	owner, err := s.store.DepartmentCompany(ctx, departmentID)
	if err != nil {
		return err
	}
	if owner != companyID {
		return ErrDepartmentNotFound
	}
	return nil
}

func (s *Service) withMonthly(ctx context.Context, g Goal) (Goal, error) {
	goals := []Goal{g}
	if err := s.attachMonthly(ctx, goals); err != nil {
		return Goal{}, err
	}
	return goals[0], nil
}

// attachMonthly agrupa em memória o resultado de uma única consulta de metas mensais.
func (s *Service) attachMonthly(ctx context.Context, goals []Goal) error {
	if len(goals) == 0 {
		return nil
	}
	ids := make([]int64, len(goals))
	for i, g := range goals {
		ids[i] = g.ID
	}

	monthly, err := s.store.MonthlyFor(ctx, ids)
	if err != nil {
		return err
	}
	byParent := make(map[int64][]MonthlyGoal, len(goals))
	for _, m := range monthly {
		byParent[m.ParentGoalID] = append(byParent[m.ParentGoalID], m)
	}

	for i := range goals {
		items := byParent[goals[i].ID]
		if items == nil {
			items = []MonthlyGoal{}
		}
		goals[i].MonthlyGoals = items
		goals[i].Rollup = rollup(items)
	}
	return nil
}

func rollup(items []MonthlyGoal) *Rollup {
	r := &Rollup{MonthsTotal: len(items)}
	for _, m := range items {
		r.MonthlyTargetTotal += m.TargetValue
		r.MonthlyAchievedTotal += m.AchievedValue
		if m.Status == MonthlyDone {
			r.MonthsCompleted++
		}
	}
	r.MonthlyProgress = progress(r.MonthlyAchievedTotal, r.MonthlyTargetTotal)
	return r
}

func patchDate(v any) *Date {
	t, ok := v.(time.Time)
	if !ok {
		return nil
	}
	d := NewDate(t)
	return &d
}
