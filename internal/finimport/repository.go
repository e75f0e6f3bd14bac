package finimport

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contabhub/onety/internal/db"
)

const importTimeout = 30 * time.Second

var payableColumns = []string{"empresa_id", "tipo", "descricao", "valor", "vencimento", "fornecedor", "categoria", "status", "origem"}

// Repository grava contas a pagar importadas.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertPayables usa COPY dentro de uma transação; ou entram todas as linhas ou nenhuma.
func (r *Repository) InsertPayables(ctx context.Context, companyID int64, rows []Row) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, importTimeout)
	defer cancel()

	var copied int64
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"transacoes"}, payableColumns, pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			row := rows[i]
			return []any{companyID, "saida", row.Description, row.Amount, row.DueDate, row.Supplier, row.Category, "pendente", "importacao"}, nil
		}))
		copied = n
		return err
	})
	return copied, err
}
