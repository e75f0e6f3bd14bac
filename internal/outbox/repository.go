package outbox

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

// lease evita que uma entrega reivindicada seja reenviada por outro worker enquanto está em voo.
const lease = 5 * time.Minute

const deliveryColumns = `id, tipo_pesquisa, pesquisa_id, canal, destino, payload, status, tentativas, ultimo_erro, proxima_tentativa_em, criado_em, enviado_em`

// Enqueue grava uma entrega. Aceita transação aberta para gravar junto com a pesquisa.
// Status vazio vira pendente; entregas já resolvidas (envio síncrono) gravam o resultado direto.
func Enqueue(ctx context.Context, q db.DBTX, d Delivery) (int64, error) {
	if !validChannel(d.Channel) {
		return 0, fmt.Errorf("canal inválido: %q", d.Channel)
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	if len(d.Payload) == 0 {
		d.Payload = []byte(`{}`)
	}

	var sentAt *time.Time
	if d.Status == StatusSent {
		now := time.Now()
		sentAt = &now
	}

	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO pesquisa_entregas (tipo_pesquisa, pesquisa_id, canal, destino, payload, status, tentativas, ultimo_erro, enviado_em)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, d.SurveyKind, d.SurveyID, d.Channel, d.Destination, []byte(d.Payload), d.Status, d.Attempts, d.LastError, sentAt).Scan(&id)
	return id, err
}

// Repository acessa a fila de entregas.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Claim reserva até limit entregas vencidas. Linhas travadas por outro worker são puladas.
func (r *Repository) Claim(ctx context.Context, limit int) ([]Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var claimed []Delivery
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT `+deliveryColumns+`
			FROM pesquisa_entregas
			WHERE status = 'pendente' AND proxima_tentativa_em <= now()
			ORDER BY proxima_tentativa_em, id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return err
		}
		claimed, err = collect(rows)
		if err != nil || len(claimed) == 0 {
			return err
		}

		ids := make([]int64, len(claimed))
		for i, d := range claimed {
			ids[i] = d.ID
		}
		_, err = tx.Exec(ctx, `
			UPDATE pesquisa_entregas
			SET proxima_tentativa_em = now() + make_interval(secs => $2)
			WHERE id = ANY($1)
		`, ids, lease.Seconds())
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *Repository) MarkSent(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		UPDATE pesquisa_entregas
		SET status = 'enviado', tentativas = tentativas + 1, ultimo_erro = NULL, enviado_em = now()
		WHERE id = $1
	`, id)
	return err
}

// MarkFailed registra a falha. next nulo encerra a entrega como falhou.
func (r *Repository) MarkFailed(ctx context.Context, id int64, reason string, next *time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	status := StatusPending
	nextAt := time.Now()
	if next == nil {
		status = StatusFailed
	} else {
		nextAt = *next
	}

	_, err := r.pool.Exec(ctx, `
		UPDATE pesquisa_entregas
		SET status = $2, tentativas = tentativas + 1, ultimo_erro = $3, proxima_tentativa_em = $4
		WHERE id = $1
	`, id, status, reason, nextAt)
	return err
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var where []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Channel != "" {
		args = append(args, f.Channel)
		where = append(where, fmt.Sprintf("canal = $%d", len(args)))
	}

	query := `SELECT ` + deliveryColumns + ` FROM pesquisa_entregas`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(` ORDER BY criado_em DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Retry devolve uma entrega com falha para a fila.
func (r *Repository) Retry(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM pesquisa_entregas WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status != StatusFailed {
		return ErrNotFailed
	}

	_, err = r.pool.Exec(ctx, `
		UPDATE pesquisa_entregas
		SET status = 'pendente', tentativas = 0, proxima_tentativa_em = now()
		WHERE id = $1 AND status = 'falhou'
	`, id)
	return err
}

func collect(rows pgx.Rows) ([]Delivery, error) {
	defer rows.Close()

	out := []Delivery{}
	for rows.Next() {
		var d Delivery
		var payload []byte
		if err := rows.Scan(
			&d.ID, &d.SurveyKind, &d.SurveyID, &d.Channel, &d.Destination, &payload,
			&d.Status, &d.Attempts, &d.LastError, &d.NextAttemptAt, &d.CreatedAt, &d.SentAt,
		); err != nil {
			return nil, err
		}
		d.Payload = payload
		out = append(out, d)
	}
	return out, rows.Err()
}
