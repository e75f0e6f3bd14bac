package banking

import (
	"context"
	"strings"

	"github.com/contabhub/onety/internal/util"
)

// Store abstrai o repositório para testes.
type Store interface {
	Create(ctx context.Context, in CreateInput) (int64, error)
	List(ctx context.Context, companyID int64) ([]Account, error)
	SetDefault(ctx context.Context, id, companyID int64) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (int64, error) {
	in.Nickname = strings.TrimSpace(in.Nickname)
	in.AccountNumber = strings.TrimSpace(in.AccountNumber)
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.ClientSecret = strings.TrimSpace(in.ClientSecret)
	if err := util.ValidateStruct(in); err != nil {
		return 0, err
	}
	return s.store.Create(ctx, in)
}

func (s *Service) List(ctx context.Context, companyID int64) ([]Account, error) {
	return s.store.List(ctx, companyID)
}

func (s *Service) SetDefault(ctx context.Context, id, companyID int64) error {
	return s.store.SetDefault(ctx, id, companyID)
}
