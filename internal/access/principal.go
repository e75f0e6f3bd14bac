package access

import (
	"context"
	"strings"
)

const (
	RoleSuperAdmin  = "SUPERADMIN"
	RoleAdmin       = "ADMIN"
	RoleRH          = "RH"
	RoleGestor      = "GESTOR"
	RoleFuncionario = "FUNCIONARIO"
)

// Principal é o usuário autenticado anexado pela middleware de auth.
type Principal struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	EmpresaID int64  `json:"empresaId"`
}

// Bypass indica papéis que ignoram o escopo de empresa.
func (p Principal) Bypass() bool {
	switch NormalizeRole(p.Role) {
	case RoleSuperAdmin, RoleAdmin, RoleRH:
		return true
	}
	return false
}

// HasRole verifica se o principal possui algum dos papéis.
func (p Principal) HasRole(roles ...string) bool {
	role := NormalizeRole(p.Role)
	for _, r := range roles {
		if role == NormalizeRole(r) {
			return true
		}
	}
	return false
}

// NormalizeRole padroniza papel em caixa alta.
func NormalizeRole(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}

type principalKey struct{}

// WithPrincipal injeta o principal no contexto.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext recupera o principal autenticado.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
