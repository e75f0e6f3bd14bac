package access

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// Repository lê vínculos de usuarios_empresas e departamentos.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository cria instância do repositório.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) IsMember(ctx context.Context, userID, companyID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM usuarios_empresas WHERE usuario_id = $1 AND empresa_id = $2
		)
	`, userID, companyID).Scan(&exists)
	return exists, err
}

func (r *Repository) LinkedDepartments(ctx context.Context, userID, companyID int64) ([]int64, error) {
	return r.ids(ctx, `
		SELECT DISTINCT departamento_id
		FROM usuarios_empresas
		WHERE usuario_id = $1 AND empresa_id = $2 AND departamento_id IS NOT NULL
	`, userID, companyID)
}

func (r *Repository) LedDepartments(ctx context.Context, userID, companyID int64) ([]int64, error) {
	return r.ids(ctx, `
		SELECT id
		FROM departamentos
		WHERE responsavel_id = $1 AND empresa_id = $2 AND status = 'ativo'
	`, userID, companyID)
}

func (r *Repository) ids(ctx context.Context, query string, args ...any) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
