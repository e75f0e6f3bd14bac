package access

import (
	"context"
	"errors"
)

var (
	// ErrForbidden indica ausência de vínculo com a empresa ou departamento.
	ErrForbidden = errors.New("acesso negado")
)

// MembershipStore resolve vínculos usuário ↔ empresa.
type MembershipStore interface {
	IsMember(ctx context.Context, userID, companyID int64) (bool, error)
	LinkedDepartments(ctx context.Context, userID, companyID int64) ([]int64, error)
	LedDepartments(ctx context.Context, userID, companyID int64) ([]int64, error)
}

// Scope descreve quais departamentos um principal enxerga.
type Scope struct {
	All bool
	IDs map[int64]struct{}
}

// Allows indica se o departamento está no escopo.
func (s Scope) Allows(departmentID int64) bool {
	if s.All {
		return true
	}
	_, ok := s.IDs[departmentID]
	return ok
}

// Empty indica escopo sem departamentos.
func (s Scope) Empty() bool {
	return !s.All && len(s.IDs) == 0
}

// List devolve os ids do escopo restrito.
func (s Scope) List() []int64 {
	ids := make([]int64, 0, len(s.IDs))
	for id := range s.IDs {
		ids = append(ids, id)
	}
	return ids
}

// Policy concentra as regras de acesso por papel.
type Policy struct {
	store MembershipStore
}

// NewPolicy cria a política sobre o armazenamento de vínculos.
func NewPolicy(store MembershipStore) *Policy {
	return &Policy{store: store}
}

// RequireCompany garante que o principal pode operar na empresa.
func (p *Policy) RequireCompany(ctx context.Context, principal Principal, companyID int64) error {
	if principal.Bypass() {
		return nil
	}
	ok, err := p.store.IsMember(ctx, principal.ID, companyID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// AllowedDepartments resolve o conjunto de departamentos visíveis na empresa.
func (p *Policy) AllowedDepartments(ctx context.Context, principal Principal, companyID int64) (Scope, error) {
	if principal.Bypass() {
		return Scope{All: true}, nil
	}

	scope := Scope{IDs: map[int64]struct{}{}}
	role := NormalizeRole(principal.Role)
	if role != RoleGestor && role != RoleFuncionario {
		return scope, nil
	}

	linked, err := p.store.LinkedDepartments(ctx, principal.ID, companyID)
	if err != nil {
		return Scope{}, err
	}
	for _, id := range linked {
		scope.IDs[id] = struct{}{}
	}

	if role == RoleFuncionario {
		led, err := p.store.LedDepartments(ctx, principal.ID, companyID)
		if err != nil {
			return Scope{}, err
		}
		for _, id := range led {
			scope.IDs[id] = struct{}{}
		}
	}

	return scope, nil
}
