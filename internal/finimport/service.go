package finimport

import (
	"context"
	"io"

	"github.com/rs/zerolog"
)

// Store grava as linhas válidas.
type Store interface {
	InsertPayables(ctx context.Context, companyID int64, rows []Row) (int64, error)
}

// Preview é a resposta de ?preview=true.
type Preview struct {
	Preview bool       `json:"preview"`
	Total   int        `json:"total"`
	Valid   int        `json:"validas"`
	Rows    []Row      `json:"linhas"`
	Errors  []RowError `json:"erros"`
}

// Summary é a resposta de uma importação efetiva.
type Summary struct {
	Imported int64      `json:"importadas"`
	Ignored  int        `json:"ignoradas"`
	Errors   []RowError `json:"erros"`
}

type Service struct {
	store  Store
	logger zerolog.Logger
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

func (s *Service) parse(filename string, r io.Reader) ([]Row, []RowError, error) {
	records, err := ReadRecords(filename, r)
	if err != nil {
		return nil, nil, err
	}
	return Parse(records)
}

// Preview interpreta a planilha sem gravar.
func (s *Service) Preview(filename string, r io.Reader) (Preview, error) {
	rows, rowErrs, err := s.parse(filename, r)
	if err != nil {
		return Preview{}, err
	}
	return Preview{
		Preview: true,
		Total:   len(rows) + len(rowErrs),
		Valid:   len(rows),
		Rows:    rows,
		Errors:  rowErrs,
	}, nil
}

// Import grava as linhas válidas como contas a pagar pendentes.
func (s *Service) Import(ctx context.Context, companyID int64, filename string, r io.Reader) (Summary, error) {
	rows, rowErrs, err := s.parse(filename, r)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Ignored: len(rowErrs), Errors: rowErrs}
	if len(rows) == 0 {
		return summary, nil
	}

	n, err := s.store.InsertPayables(ctx, companyID, rows)
	if err != nil {
		return Summary{}, err
	}
	summary.Imported = n

	s.logger.Info().
		Int64("empresa_id", companyID).
		Int64("importadas", n).
		Int("ignoradas", len(rowErrs)).
		Msg("importação de contas a pagar concluída")
	return summary, nil
}
