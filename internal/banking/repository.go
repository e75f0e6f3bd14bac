package banking

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contabhub/onety/internal/db"
)

const dbTimeout = 5 * time.Second

// Repository persiste contas Inter.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create insere a conta; quando padrao, as demais contas da empresa deixam de ser padrão na mesma transação.
func (r *Repository) Create(ctx context.Context, in CreateInput) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var id int64
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if in.Default {
			if _, err := tx.Exec(ctx, `UPDATE inter_contas SET padrao = FALSE WHERE empresa_id = $1 AND padrao`, in.CompanyID); err != nil {
				return err
			}
		}
		return tx.QueryRow(ctx, `
			INSERT INTO inter_contas (empresa_id, apelido, conta_corrente, client_id, client_secret, certificado, chave, padrao)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`, in.CompanyID, in.Nickname, in.AccountNumber, in.ClientID, in.ClientSecret, in.Certificate, in.Key, in.Default).Scan(&id)
	})
	return id, err
}

func (r *Repository) List(ctx context.Context, companyID int64) ([]Account, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT id, empresa_id, apelido, conta_corrente, client_id, certificado IS NOT NULL AND certificado <> '', padrao, criado_em
		FROM inter_contas
		WHERE empresa_id = $1
		ORDER BY padrao DESC, apelido, id
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Account{}
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Nickname, &a.AccountNumber, &a.ClientID, &a.HasCertificate, &a.Default, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetDefault troca a conta padrão da empresa de forma atômica.
func (r *Repository) SetDefault(ctx context.Context, id, companyID int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var found int64
		err := tx.QueryRow(ctx, `SELECT id FROM inter_contas WHERE id = $1 AND empresa_id = $2 FOR UPDATE`, id, companyID).Scan(&found)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE inter_contas SET padrao = FALSE WHERE empresa_id = $1 AND padrao AND id <> $2`, companyID, id); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE inter_contas SET padrao = TRUE WHERE id = $1`, id)
		return err
	})
}
