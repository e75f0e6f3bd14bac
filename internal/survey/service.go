package survey

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/contabhub/onety/internal/util"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Store é o acesso a dados usado pelo serviço e pelo disparo inteligente.
type Store interface {
	EligibleSubjects(ctx context.Context, kind Kind) ([]Subject, error)
	SubjectsPage(ctx context.Context, kind Kind, companyID, afterID int64, limit int) ([]Subject, error)
	CreateIfDue(ctx context.Context, kind Kind, subj Subject, token string, window time.Duration, build DeliveryBuilder) (Survey, bool, error)
	GetByToken(ctx context.Context, kind Kind, token string) (Survey, error)
	Answer(ctx context.Context, kind Kind, a Answer, classification string) error
	List(ctx context.Context, kind Kind, f ListFilter) ([]Survey, int64, error)
	Counts(ctx context.Context, kind Kind, companyID int64) (Counts, error)
}

// Service concentra o ciclo de vida das pesquisas.
type Service struct {
	store    Store
	messages Messages
	logger   zerolog.Logger
	newToken func() (string, error)
}

func NewService(store Store, messages Messages, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		messages: messages,
		logger:   logger,
		newToken: func() (string, error) { return util.RandomHex(tokenBytes) },
	}
}

// GenerateForAllEligible cria pesquisas para todos os destinatários elegíveis.
// Falhas individuais são registradas e não interrompem a rodada.
func (s *Service) GenerateForAllEligible(ctx context.Context, kind Kind) (GenerateResult, error) {
	var res GenerateResult

	subjects, err := s.store.EligibleSubjects(ctx, kind)
	if err != nil {
		return res, fmt.Errorf("listar destinatários: %w", err)
	}

	build := s.messages.Deliveries(true)
	for _, subj := range subjects {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		token, err := s.newToken()
		if err != nil {
			return res, fmt.Errorf("gerar token: %w", err)
		}

		_, created, err := s.store.CreateIfDue(ctx, kind, subj, token, dedupWindow, build)
		switch {
		case err != nil:
			res.Failed++
			s.logger.Warn().Err(err).Str("tipo", string(kind)).Int64("destinatario_id", subj.ID).Msg("pesquisa: criação falhou")
		case created:
			res.Created++
		default:
			res.Skipped++
		}
	}

	s.logger.Info().
		Str("tipo", string(kind)).
		Int("created", res.Created).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("pesquisa: geração concluída")
	return res, nil
}

// Respond registra a resposta do portador do token e devolve a classificação.
func (s *Service) Respond(ctx context.Context, kind Kind, a Answer) (string, error) {
	a.Token = strings.TrimSpace(a.Token)
	if a.Token == "" {
		return "", util.Invalid("token é obrigatório")
	}
	classification, err := Classify(a.Score)
	if err != nil {
		return "", util.Invalid(err.Error())
	}
	for _, extra := range []*int{a.FiscalScore, a.PersonalScore, a.AccountScore} {
		if extra != nil && (*extra < 0 || *extra > 10) {
			return "", util.Invalid(ErrInvalidScore.Error())
		}
	}
	if kind != KindFranchisee {
		a.FiscalScore, a.PersonalScore, a.AccountScore = nil, nil, nil
	}
	a.Comment = strings.TrimSpace(a.Comment)

	if err := s.store.Answer(ctx, kind, a, classification); err != nil {
		return "", err
	}
	return classification, nil
}

func (s *Service) GetByToken(ctx context.Context, kind Kind, token string) (Survey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Survey{}, ErrNotFound
	}
	return s.store.GetByToken(ctx, kind, token)
}

func (s *Service) Stats(ctx context.Context, kind Kind, companyID int64) (Stats, error) {
	c, err := s.store.Counts(ctx, kind, companyID)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(c, kind), nil
}

func (s *Service) List(ctx context.Context, kind Kind, f ListFilter) (Page, error) {
	switch f.Status {
	case "", StatusSent, StatusAnswered:
	default:
		return Page{}, util.Invalid("status inválido")
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}

	items, total, err := s.store.List(ctx, kind, f)
	if err != nil {
		return Page{}, err
	}
	return Page{Data: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// ParseScore aceita apenas números JSON inteiros entre 0 e 10.
func ParseScore(raw json.RawMessage, field string, required bool) (*int, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		if required {
			return nil, util.Invalid(field + " é obrigatória")
		}
		return nil, nil
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, util.Invalid(field + " deve ser numérica")
	}
	if v != math.Trunc(v) || v < 0 || v > 10 {
		return nil, util.Invalid(field + " deve ser um inteiro entre 0 e 10")
	}
	n := int(v)
	return &n, nil
}
