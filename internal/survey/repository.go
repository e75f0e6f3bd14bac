package survey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/contabhub/onety/internal/db"
	"github.com/contabhub/onety/internal/outbox"
)

const dbTimeout = 5 * time.Second

// tables descreve o esquema paralelo de cada tipo de pesquisa.
type tables struct {
	surveys  string
	subjects string
	subject  string
}

func tablesFor(kind Kind) tables {
	if kind == KindFranchisee {
		return tables{surveys: "pesquisas_satisfacao_franqueados", subjects: "franqueados", subject: "franqueado_id"}
	}
	return tables{surveys: "pesquisas_satisfacao", subjects: "clientes", subject: "cliente_id"}
}

// DeliveryBuilder monta as entregas de uma pesquisa recém-criada.
type DeliveryBuilder func(s Survey, subj Subject) []outbox.Delivery

// Repository persiste pesquisas e enfileira entregas no Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EligibleSubjects lista destinatários ativos de empresas com pesquisa habilitada.
func (r *Repository) EligibleSubjects(ctx context.Context, kind Kind) ([]Subject, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t := tablesFor(kind)
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.empresa_id, e.nome, s.nome, COALESCE(s.email, ''), COALESCE(s.telefone, '')
		FROM `+t.subjects+` s
		JOIN empresas e ON e.id = s.empresa_id
		WHERE e.pesquisa_satisfacao_ativa AND s.status = 'ativo'
		ORDER BY s.empresa_id, s.id
	`)
	if err != nil {
		return nil, err
	}
	return collectSubjects(rows)
}

// SubjectsPage pagina destinatários ativos de uma empresa por id (keyset).
func (r *Repository) SubjectsPage(ctx context.Context, kind Kind, companyID, afterID int64, limit int) ([]Subject, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t := tablesFor(kind)
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.empresa_id, e.nome, s.nome, COALESCE(s.email, ''), COALESCE(s.telefone, '')
		FROM `+t.subjects+` s
		JOIN empresas e ON e.id = s.empresa_id
		WHERE s.empresa_id = $1 AND s.status = 'ativo' AND s.id > $2
		ORDER BY s.id
		LIMIT $3
	`, companyID, afterID, limit)
	if err != nil {
		return nil, err
	}
	return collectSubjects(rows)
}

// CreateIfDue cria a pesquisa se o destinatário não recebeu outra dentro da janela.
// A checagem e a inserção rodam sob um advisory lock por destinatário; as entregas
// montadas por build entram na mesma transação.
func (r *Repository) CreateIfDue(ctx context.Context, kind Kind, subj Subject, token string, window time.Duration, build DeliveryBuilder) (Survey, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t := tablesFor(kind)
	var created Survey
	var ok bool

	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		lockKey := fmt.Sprintf("pesquisa:%s:%d", kind, subj.ID)
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
			return err
		}

		var recent bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM `+t.surveys+`
				WHERE `+t.subject+` = $1 AND enviado_em > now() - make_interval(secs => $2)
			)
		`, subj.ID, window.Seconds()).Scan(&recent)
		if err != nil || recent {
			return err
		}

		created = Survey{
			Kind:           kind,
			CompanyID:      subj.CompanyID,
			CompanyName:    subj.CompanyName,
			SubjectID:      subj.ID,
			SubjectName:    subj.Name,
			Token:          token,
			Status:         StatusSent,
			Classification: ClassNone,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO `+t.surveys+` (empresa_id, `+t.subject+`, token, status, classificacao_nps)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, enviado_em
		`, subj.CompanyID, subj.ID, token, StatusSent, ClassNone).Scan(&created.ID, &created.SentAt)
		if err != nil {
			return err
		}

		if build != nil {
			for _, d := range build(created, subj) {
				if _, err := outbox.Enqueue(ctx, tx, d); err != nil {
					return fmt.Errorf("enfileirar %s: %w", d.Channel, err)
				}
			}
		}
		ok = true
		return nil
	})
	if err != nil {
		return Survey{}, false, err
	}
	return created, ok, nil
}

// RecordDelivery grava uma entrega já resolvida fora da fila.
func (r *Repository) RecordDelivery(ctx context.Context, d outbox.Delivery) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := outbox.Enqueue(ctx, r.pool, d)
	return err
}

func (r *Repository) GetByToken(ctx context.Context, kind Kind, token string) (Survey, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t := tablesFor(kind)
	row := r.pool.QueryRow(ctx, `
		SELECT `+surveyColumns(kind)+`
		FROM `+t.surveys+` p
		JOIN empresas e ON e.id = p.empresa_id
		JOIN `+t.subjects+` s ON s.id = p.`+t.subject+`
		WHERE p.token = $1
	`, token)
	sv, err := scanSurvey(row, kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return Survey{}, ErrNotFound
	}
	return sv, err
}

// Answer grava a resposta. Somente pesquisas em enviado aceitam resposta.
func (r *Repository) Answer(ctx context.Context, kind Kind, a Answer, classification string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t := tablesFor(kind)
	var comment *string
	if a.Comment != "" {
		comment = &a.Comment
	}

	var tag pgconn.CommandTag
	var err error
	if kind == KindFranchisee {
		tag, err = r.pool.Exec(ctx, `
			UPDATE `+t.surveys+`
			SET nota = $2, comentario = $3, classificacao_nps = $4, status = 'respondido', respondido_em = now(),
			    nota_fiscal = $5, nota_pessoal = $6, nota_contabil = $7
			WHERE token = $1 AND status = 'enviado'
		`, a.Token, a.Score, comment, classification, a.FiscalScore, a.PersonalScore, a.AccountScore)
	} else {
		tag, err = r.pool.Exec(ctx, `
			UPDATE `+t.surveys+`
			SET nota = $2, comentario = $3, classificacao_nps = $4, status = 'respondido', respondido_em = now()
			WHERE token = $1 AND status = 'enviado'
		`, a.Token, a.Score, comment, classification)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+t.surveys+` WHERE token = $1)`, a.Token).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrAlreadyAnswered
	}
	return ErrNotFound
}

func (r *Repository) List(ctx context.Context, kind Kind, f ListFilter) ([]Survey, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t := tablesFor(kind)
	where := ` WHERE p.empresa_id = $1 AND ($2 = '' OR p.status = $2)`

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM `+t.surveys+` p`+where, f.CompanyID, f.Status).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+surveyColumns(kind)+`
		FROM `+t.surveys+` p
		JOIN empresas e ON e.id = p.empresa_id
		JOIN `+t.subjects+` s ON s.id = p.`+t.subject+where+`
		ORDER BY p.enviado_em DESC, p.id DESC
		LIMIT $3 OFFSET $4
	`, f.CompanyID, f.Status, f.Limit, (f.Page-1)*f.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Survey{}
	for rows.Next() {
		sv, err := scanSurvey(rows, kind)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sv)
	}
	return out, total, rows.Err()
}

func (r *Repository) Counts(ctx context.Context, kind Kind, companyID int64) (Counts, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t := tablesFor(kind)
	extra := `NULL::float8, NULL::float8, NULL::float8`
	if kind == KindFranchisee {
		extra = `avg(nota_fiscal)::float8, avg(nota_pessoal)::float8, avg(nota_contabil)::float8`
	}

	var c Counts
	err := r.pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'respondido'),
			count(*) FILTER (WHERE classificacao_nps = 'sala_verde'),
			count(*) FILTER (WHERE classificacao_nps = 'sala_amarela'),
			count(*) FILTER (WHERE classificacao_nps = 'sala_vermelha'),
			COALESCE(sum(nota) FILTER (WHERE status = 'respondido'), 0),
			`+extra+`
		FROM `+t.surveys+`
		WHERE empresa_id = $1
	`, companyID).Scan(&c.Total, &c.Answered, &c.Green, &c.Yellow, &c.Red, &c.ScoreSum, &c.FiscalAvg, &c.PersonalAvg, &c.AccountAvg)
	return c, err
}

func surveyColumns(kind Kind) string {
	cols := `p.id, p.empresa_id, e.nome, p.` + tablesFor(kind).subject + `, s.nome, p.token, p.enviado_em, p.respondido_em,
		p.nota, p.comentario, p.status, p.classificacao_nps`
	if kind == KindFranchisee {
		cols += `, p.nota_fiscal, p.nota_pessoal, p.nota_contabil`
	}
	return cols
}

func scanSurvey(row pgx.Row, kind Kind) (Survey, error) {
	sv := Survey{Kind: kind}
	var score *int16
	dest := []any{
		&sv.ID, &sv.CompanyID, &sv.CompanyName, &sv.SubjectID, &sv.SubjectName, &sv.Token, &sv.SentAt, &sv.RespondedAt,
		&score, &sv.Comment, &sv.Status, &sv.Classification,
	}
	var fiscal, personal, account *int16
	if kind == KindFranchisee {
		dest = append(dest, &fiscal, &personal, &account)
	}
	if err := row.Scan(dest...); err != nil {
		return Survey{}, err
	}
	sv.Score = widen(score)
	sv.FiscalScore = widen(fiscal)
	sv.PersonalScore = widen(personal)
	sv.AccountScore = widen(account)
	return sv, nil
}

func widen(v *int16) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func collectSubjects(rows pgx.Rows) ([]Subject, error) {
	defer rows.Close()

	out := []Subject{}
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.ID, &s.CompanyID, &s.CompanyName, &s.Name, &s.Email, &s.Phone); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
