package department

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contabhub/onety/internal/db"
)

const dbTimeout = 5 * time.Second

const rootIndex = "departamentos_raiz_unica"

const departmentColumns = `id, empresa_id, nome, descricao, parent_id, responsavel_id, nivel, status, criado_em, atualizado_em`

// Repository persiste departamentos no Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository cria instância do repositório.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ListActive(ctx context.Context, companyID int64) ([]Department, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+departmentColumns+`
		FROM departamentos
		WHERE empresa_id = $1 AND status = 'ativo'
		ORDER BY nome, id
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	depts := []Department{}
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		depts = append(depts, d)
	}
	return depts, rows.Err()
}

// Get busca um departamento ativo da empresa.
func (r *Repository) Get(ctx context.Context, id, companyID int64) (Department, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		SELECT `+departmentColumns+`
		FROM departamentos
		WHERE id = $1 AND empresa_id = $2 AND status = 'ativo'
	`, id, companyID)
	d, err := scanDepartment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Department{}, ErrNotFound
	}
	return d, err
}

func (r *Repository) RootExists(ctx context.Context, companyID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM departamentos
			WHERE empresa_id = $1 AND parent_id IS NULL AND status = 'ativo'
		)
	`, companyID).Scan(&exists)
	return exists, err
}

// Insert grava o departamento com nível 1; a violação do índice de raiz única vira ErrRootExists.
func (r *Repository) Insert(ctx context.Context, in CreateInput) (Department, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO departamentos (empresa_id, nome, descricao, parent_id, responsavel_id, nivel, status)
		VALUES ($1, $2, $3, $4, $5, 1, 'ativo')
		RETURNING `+departmentColumns,
		in.CompanyID, in.Title, in.Description, in.ParentID, in.ManagerID,
	)
	d, err := scanDepartment(row)
	if db.IsUniqueViolation(err, rootIndex) {
		return Department{}, ErrRootExists
	}
	return d, err
}

func (r *Repository) Update(ctx context.Context, id, companyID int64, in UpdateInput) (Department, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := r.pool.QueryRow(ctx, `
		UPDATE departamentos SET
			nome = COALESCE($3, nome),
			descricao = COALESCE($4, descricao),
			responsavel_id = CASE WHEN $6 THEN NULL ELSE COALESCE($5, responsavel_id) END,
			parent_id = COALESCE($7, parent_id),
			atualizado_em = now()
		WHERE id = $1 AND empresa_id = $2 AND status = 'ativo'
		RETURNING `+departmentColumns,
		id, companyID, in.Title, in.Description, in.ManagerID, in.ClearManager, in.ParentID,
	)
	d, err := scanDepartment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Department{}, ErrNotFound
	}
	return d, err
}

func (r *Repository) Members(ctx context.Context, id, companyID int64) ([]Member, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.nome, u.email, ue.cargo, ue.departamento_id
		FROM usuarios_empresas ue
		JOIN usuarios u ON u.id = ue.usuario_id
		WHERE ue.departamento_id = $1 AND ue.empresa_id = $2
		ORDER BY u.nome
	`, id, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Name, &m.Email, &m.Role, &m.DepartmentID); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *Repository) LinkMember(ctx context.Context, id, companyID, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE usuarios_empresas SET departamento_id = $1
		WHERE usuario_id = $2 AND empresa_id = $3
	`, id, userID, companyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (r *Repository) UnlinkMember(ctx context.Context, id, companyID, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE usuarios_empresas SET departamento_id = NULL
		WHERE usuario_id = $1 AND empresa_id = $2 AND departamento_id = $3
	`, userID, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// Cascade executa fn com passos independentes ou, quando atomic, dentro de uma transação.
func (r *Repository) Cascade(ctx context.Context, atomic bool, fn func(ctx context.Context, ops CascadeOps) error) error {
	if !atomic {
		return fn(ctx, cascadeOps{db: r.pool})
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, cascadeOps{db: tx})
	})
}

type cascadeOps struct {
	db db.DBTX
}

func (o cascadeOps) exec(ctx context.Context, query string, args ...any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := o.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (o cascadeOps) ReparentChildren(ctx context.Context, id, parentID int64) (int64, error) {
	return o.exec(ctx, `
		UPDATE departamentos SET parent_id = $2, atualizado_em = now()
		WHERE parent_id = $1 AND status = 'ativo'
	`, id, parentID)
}

func (o cascadeOps) UnlinkMembers(ctx context.Context, id int64) (int64, error) {
	return o.exec(ctx, `UPDATE usuarios_empresas SET departamento_id = NULL WHERE departamento_id = $1`, id)
}

func (o cascadeOps) DeleteTasks(ctx context.Context, id int64) (int64, error) {
	return o.exec(ctx, `DELETE FROM tarefas WHERE departamento_id = $1`, id)
}

func (o cascadeOps) MoveTasks(ctx context.Context, from, to int64) (int64, error) {
	return o.exec(ctx, `UPDATE tarefas SET departamento_id = $2 WHERE departamento_id = $1`, from, to)
}

func (o cascadeOps) MoveGoals(ctx context.Context, from, to int64) (int64, error) {
	return o.exec(ctx, `
		UPDATE metas_departamentais SET departamento_id = $2, atualizado_em = now()
		WHERE departamento_id = $1
	`, from, to)
}

func (o cascadeOps) UnlinkKPIs(ctx context.Context, id int64) (int64, error) {
	return o.exec(ctx, `UPDATE kpis SET departamento_id = NULL WHERE departamento_id = $1`, id)
}

func (o cascadeOps) Deactivate(ctx context.Context, id int64) (int64, error) {
	return o.exec(ctx, `
		UPDATE departamentos SET status = 'inativo', atualizado_em = now()
		WHERE id = $1
	`, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDepartment(row rowScanner) (Department, error) {
	var d Department
	err := row.Scan(
		&d.ID,
		&d.CompanyID,
		&d.Title,
		&d.Description,
		&d.ParentID,
		&d.ManagerID,
		&d.Level,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	return d, err
}
