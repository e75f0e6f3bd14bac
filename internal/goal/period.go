package goal

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/contabhub/onety/internal/util"
)

// DateLayout é o formato de datas trocado com os clientes.
const DateLayout = "2006-01-02"

var dateLayouts = []string{DateLayout, time.RFC3339, "2006-01-02 15:04:05", "02/01/2006"}

// Date serializa como YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate descarta hora e fuso.
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.New("data inválida")
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDate aceita ISO, ISO com hora e DD/MM/AAAA.
func ParseDate(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return NewDate(t), nil
		}
	}
	return Date{}, errors.New("data inválida: " + raw)
}

// Period é um intervalo fechado de datas.
type Period struct {
	Start Date
	End   Date
}

// QuarterRange devolve o intervalo do trimestre: 1=jan–mar … 4=out–dez.
func QuarterRange(quarter, year int) (Period, error) {
	if quarter < 1 || quarter > 4 {
		return Period{}, util.Invalid("trimestre deve estar entre 1 e 4")
	}
	startMonth := time.Month((quarter-1)*3 + 1)
	start := time.Date(year, startMonth, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 3, -1)
	return Period{Start: Date{start}, End: Date{end}}, nil
}

// ResolvePeriod interpreta trimestre/ano da query. Só ano cobre o ano todo; só trimestre usa o ano corrente.
func ResolvePeriod(trimestre, ano string, now time.Time) (*Period, error) {
	trimestre = strings.TrimSpace(trimestre)
	ano = strings.TrimSpace(ano)
	if trimestre == "" && ano == "" {
		return nil, nil
	}

	year := now.Year()
	if ano != "" {
		y, err := strconv.Atoi(ano)
		if err != nil || y < 1900 || y > 9999 {
			return nil, util.Invalid("ano inválido")
		}
		year = y
	}

	if trimestre == "" {
		return &Period{
			Start: Date{time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)},
			End:   Date{time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)},
		}, nil
	}

	q, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(trimestre), "Q"))
	if err != nil {
		return nil, util.Invalid("trimestre inválido")
	}
	p, err := QuarterRange(q, year)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Overlaps compara intervalos fechados [s1,e1] e [s2,e2].
func Overlaps(s1, e1, s2, e2 Date) bool {
	return !s1.After(e2.Time) && !s2.After(e1.Time)
}

// FindOverlap devolve a primeira meta mensal que conflita com o intervalo, ignorando excludeID.
func FindOverlap(existing []MonthlyGoal, start, end Date, excludeID int64) *MonthlyGoal {
	for i := range existing {
		m := existing[i]
		if m.ID == excludeID {
			continue
		}
		if Overlaps(m.StartDate, m.EndDate, start, end) {
			return &m
		}
	}
	return nil
}

// NormalizePage aplica page ≥ 1 e limit entre 1 e 100 (padrão 10).
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

// NewPagination calcula os metadados a partir do total.
func NewPagination(page, limit int, total int64) Pagination {
	totalPages := 0
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(limit)))
	}
	return Pagination{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalCount:  total,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
		Limit:       limit,
	}
}

// ParseMonthlyStatus aceita ausente/nulo (pendente) ou um texto do enum; outros tipos JSON são rejeitados.
func ParseMonthlyStatus(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return DefaultMonthlyStatus, nil
	}

	var status string
	if err := json.Unmarshal(trimmed, &status); err != nil {
		return "", util.Invalid("status deve ser um texto: pendente, em_andamento, concluida ou nao_atingida")
	}
	status = normalizeStatus(status)
	if status == "" {
		return DefaultMonthlyStatus, nil
	}
	if !IsMonthlyStatus(status) {
		return "", util.Invalid("status inválido: " + status)
	}
	return status, nil
}

func progress(achieved, target float64) float64 {
	if target == 0 {
		return 0
	}
	return math.Round(achieved/target*10000) / 100
}
