package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrKeyNotFound indica prefixo desconhecido.
var ErrKeyNotFound = errors.New("api key não encontrada")

// APIKeyRecord é a linha de api_keys usada na autenticação.
type APIKeyRecord struct {
	ID        int64
	Prefix    string
	Hash      string
	UserID    int64
	EmpresaID int64
	Role      string
	Active    bool
}

// KeyRepository persiste chaves de integração.
type KeyRepository struct {
	pool *pgxpool.Pool
}

// NewKeyRepository cria o repositório de chaves.
func NewKeyRepository(pool *pgxpool.Pool) *KeyRepository {
	return &KeyRepository{pool: pool}
}

// FindAPIKey busca a chave pelo prefixo público.
func (r *KeyRepository) FindAPIKey(ctx context.Context, prefix string) (APIKeyRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var rec APIKeyRecord
	err := r.pool.QueryRow(ctx, `
		SELECT id, prefixo, hash, usuario_id, empresa_id, cargo, ativo
		FROM api_keys
		WHERE prefixo = $1
	`, prefix).Scan(&rec.ID, &rec.Prefix, &rec.Hash, &rec.UserID, &rec.EmpresaID, &rec.Role, &rec.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKeyRecord{}, ErrKeyNotFound
	}
	return rec, err
}

// CreateAPIKey grava nova chave já com o hash do segredo.
func (r *KeyRepository) CreateAPIKey(ctx context.Context, rec APIKeyRecord) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO api_keys (prefixo, hash, usuario_id, empresa_id, cargo, ativo)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id
	`, rec.Prefix, rec.Hash, rec.UserID, rec.EmpresaID, rec.Role).Scan(&id)
	return id, err
}
