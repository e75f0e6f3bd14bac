package goal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contabhub/onety/internal/db"
)

const dbTimeout = 5 * time.Second

const goalColumns = `g.id, g.empresa_id, g.departamento_id, d.nome, g.nome, g.descricao, g.valor_alvo, g.valor_atual,
	g.data_inicio, g.data_fim, g.status, g.tipo_calculo, g.tipo_indicador, g.tipo_progresso, g.criado_em, g.atualizado_em`

const monthlyColumns = `m.id, m.meta_id, m.data_inicio, m.data_fim, m.valor_alvo, m.valor_alcancado, m.status, m.criado_em`

// Repository persiste metas e metas mensais.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository cria instância do repositório.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List aplica o mesmo filtro na contagem e na página.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Goal, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var (
		clauses = []string{"d.status = 'ativo'"}
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.DepartmentID != 0 {
		add("g.departamento_id = $%d", filter.DepartmentID)
	} else {
		add("g.empresa_id = $%d", filter.CompanyID)
	}
	if filter.DepartmentIDs != nil {
		add("g.departamento_id = ANY($%d)", filter.DepartmentIDs)
	}
	if filter.Period != nil {
		add("(g.data_inicio IS NULL OR g.data_inicio <= $%d)", filter.Period.End.Time)
		add("(g.data_fim IS NULL OR g.data_fim >= $%d)", filter.Period.Start.Time)
	}

	where := " WHERE " + strings.Join(clauses, " AND ")
	from := ` FROM metas_departamentais g JOIN departamentos d ON d.id = g.departamento_id`

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	query := `SELECT ` + goalColumns + from + where +
		fmt.Sprintf(" ORDER BY g.data_inicio DESC NULLS LAST, g.id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)

	rows, err := r.pool.Query(ctx, query, append(args, filter.Limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	goals, err := collectGoals(rows)
	return goals, total, err
}

// ListForOrganogram devolve todas as metas de departamentos ativos da empresa.
func (r *Repository) ListForOrganogram(ctx context.Context, companyID int64) ([]Goal, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+goalColumns+`
		FROM metas_departamentais g
		JOIN departamentos d ON d.id = g.departamento_id
		WHERE g.empresa_id = $1 AND d.status = 'ativo'
		ORDER BY d.nome, g.nome
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectGoals(rows)
}

// MonthlyFor busca de uma vez as metas mensais das metas informadas.
func (r *Repository) MonthlyFor(ctx context.Context, goalIDs []int64) ([]MonthlyGoal, error) {
	if len(goalIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+monthlyColumns+`
		FROM metas_mensais_departamentais m
		WHERE m.meta_id = ANY($1)
		ORDER BY m.meta_id, m.data_inicio
	`, goalIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMonthly(rows)
}

func (r *Repository) Get(ctx context.Context, id, companyID int64) (Goal, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		SELECT `+goalColumns+`
		FROM metas_departamentais g
		JOIN departamentos d ON d.id = g.departamento_id
		WHERE g.id = $1 AND g.empresa_id = $2
	`, id, companyID)
	g, err := scanGoal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Goal{}, ErrNotFound
	}
	return g, err
}

// DepartmentCompany devolve a empresa de um departamento ativo.
func (r *Repository) DepartmentCompany(ctx context.Context, departmentID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var companyID int64
	err := r.pool.QueryRow(ctx, `
		SELECT empresa_id FROM departamentos WHERE id = $1 AND status = 'ativo'
	`, departmentID).Scan(&companyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrDepartmentNotFound
	}
	return companyID, err
}

func (r *Repository) Insert(ctx context.Context, in CreateInput) (Goal, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO metas_departamentais (
			empresa_id, departamento_id, nome, descricao, valor_alvo, valor_atual,
			data_inicio, data_fim, status, tipo_calculo, tipo_indicador, tipo_progresso
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`,
		in.CompanyID, in.DepartmentID, in.Title, in.Description, in.TargetValue, *in.CurrentValue,
		dateArg(in.StartDate), dateArg(in.EndDate), in.Status, in.CalculationType, in.IndicatorType, in.ProgressType,
	).Scan(&id)
	if err != nil {
		return Goal{}, err
	}
	return r.Get(ctx, id, in.CompanyID)
}

// Update grava somente as colunas do patch; os nomes vêm de GoalFields.
func (r *Repository) Update(ctx context.Context, id, companyID int64, patch Patch) (Goal, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	sets := make([]string, 0, len(patch)+1)
	args := []any{id, companyID}
	for _, col := range patch.Columns() {
		args = append(args, patch[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "atualizado_em = now()")

	tag, err := r.pool.Exec(ctx, `
		UPDATE metas_departamentais SET `+strings.Join(sets, ", ")+`
		WHERE id = $1 AND empresa_id = $2
	`, args...)
	if err != nil {
		return Goal{}, err
	}
	if tag.RowsAffected() == 0 {
		return Goal{}, ErrNotFound
	}
	return r.Get(ctx, id, companyID)
}

// Delete remove a meta e suas metas mensais na mesma transação.
func (r *Repository) Delete(ctx context.Context, id, companyID int64) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		ctx, cancel := context.WithTimeout(ctx, dbTimeout)
		defer cancel()

		if _, err := tx.Exec(ctx, `
			DELETE FROM metas_mensais_departamentais m
			USING metas_departamentais g
			WHERE m.meta_id = g.id AND g.id = $1 AND g.empresa_id = $2
		`, id, companyID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM metas_departamentais WHERE id = $1 AND empresa_id = $2`, id, companyID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *Repository) ListMonthly(ctx context.Context, parentID, companyID int64) ([]MonthlyGoal, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+monthlyColumns+`
		FROM metas_mensais_departamentais m
		JOIN metas_departamentais g ON g.id = m.meta_id
		WHERE m.meta_id = $1 AND g.empresa_id = $2
		ORDER BY m.data_inicio
	`, parentID, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMonthly(rows)
}

// GetMonthly só encontra a meta mensal se a meta principal for da empresa.
func (r *Repository) GetMonthly(ctx context.Context, id, companyID int64) (MonthlyGoal, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		SELECT `+monthlyColumns+`
		FROM metas_mensais_departamentais m
		JOIN metas_departamentais g ON g.id = m.meta_id
		WHERE m.id = $1 AND g.empresa_id = $2
	`, id, companyID)
	m, err := scanMonthly(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return MonthlyGoal{}, ErrMonthlyNotFound
	}
	return m, err
}

// SaveMonthly insere (ID zero) ou altera a meta mensal. A meta principal fica bloqueada
// durante a checagem de sobreposição, serializando gravações concorrentes.
func (r *Repository) SaveMonthly(ctx context.Context, companyID int64, m MonthlyGoal) (MonthlyGoal, error) {
	var saved MonthlyGoal
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		ctx, cancel := context.WithTimeout(ctx, dbTimeout)
		defer cancel()

		var locked int64
		err := tx.QueryRow(ctx, `
			SELECT id FROM metas_departamentais WHERE id = $1 AND empresa_id = $2 FOR UPDATE
		`, m.ParentGoalID, companyID).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
			SELECT `+monthlyColumns+`
			FROM metas_mensais_departamentais m
			WHERE m.meta_id = $1
		`, m.ParentGoalID)
		if err != nil {
			return err
		}
		existing, err := collectMonthly(rows)
		rows.Close()
		if err != nil {
			return err
		}
		if FindOverlap(existing, m.StartDate, m.EndDate, m.ID) != nil {
			return ErrOverlap
		}

		var row pgx.Row
		if m.ID == 0 {
			row = tx.QueryRow(ctx, `
				INSERT INTO metas_mensais_departamentais (meta_id, data_inicio, data_fim, valor_alvo, valor_alcancado, status)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id, meta_id, data_inicio, data_fim, valor_alvo, valor_alcancado, status, criado_em
			`, m.ParentGoalID, m.StartDate.Time, m.EndDate.Time, m.TargetValue, m.AchievedValue, m.Status)
		} else {
			row = tx.QueryRow(ctx, `
				UPDATE metas_mensais_departamentais
				SET data_inicio = $3, data_fim = $4, valor_alvo = $5, valor_alcancado = $6, status = $7
				WHERE id = $1 AND meta_id = $2
				RETURNING id, meta_id, data_inicio, data_fim, valor_alvo, valor_alcancado, status, criado_em
			`, m.ID, m.ParentGoalID, m.StartDate.Time, m.EndDate.Time, m.TargetValue, m.AchievedValue, m.Status)
		}
		saved, err = scanMonthly(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMonthlyNotFound
		}
		return err
	})
	return saved, err
}

func (r *Repository) DeleteMonthly(ctx context.Context, id, companyID int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM metas_mensais_departamentais m
		USING metas_departamentais g
		WHERE m.meta_id = g.id AND m.id = $1 AND g.empresa_id = $2
	`, id, companyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMonthlyNotFound
	}
	return nil
}

func dateArg(d *Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.Time
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (Goal, error) {
	var (
		g          Goal
		start, end *time.Time
	)
	err := row.Scan(
		&g.ID,
		&g.CompanyID,
		&g.DepartmentID,
		&g.DepartmentName,
		&g.Title,
		&g.Description,
		&g.TargetValue,
		&g.CurrentValue,
		&start,
		&end,
		&g.Status,
		&g.CalculationType,
		&g.IndicatorType,
		&g.ProgressType,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return Goal{}, err
	}
	if start != nil {
		d := NewDate(*start)
		g.StartDate = &d
	}
	if end != nil {
		d := NewDate(*end)
		g.EndDate = &d
	}
	return g, nil
}

func collectGoals(rows pgx.Rows) ([]Goal, error) {
	goals := []Goal{}
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func scanMonthly(row rowScanner) (MonthlyGoal, error) {
	var m MonthlyGoal
	err := row.Scan(
		&m.ID,
		&m.ParentGoalID,
		&m.StartDate.Time,
		&m.EndDate.Time,
		&m.TargetValue,
		&m.AchievedValue,
		&m.Status,
		&m.CreatedAt,
	)
	if err != nil {
		return MonthlyGoal{}, err
	}
	m.Progress = progress(m.AchievedValue, m.TargetValue)
	return m, nil
}

func collectMonthly(rows pgx.Rows) ([]MonthlyGoal, error) {
	var out []MonthlyGoal
	for rows.Next() {
		m, err := scanMonthly(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
