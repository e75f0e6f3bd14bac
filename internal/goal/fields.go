package goal

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/contabhub/onety/internal/util"
)

// FieldMap traduz nomes da API para colunas e vice-versa.
type FieldMap struct {
	toColumn map[string]string
	toAPI    map[string]string
}

func newFieldMap(pairs ...[2]string) FieldMap {
	m := FieldMap{
		toColumn: make(map[string]string, len(pairs)),
		toAPI:    make(map[string]string, len(pairs)),
	}
	for _, p := range pairs {
		if _, dup := m.toColumn[p[0]]; dup {
			panic("campo duplicado: " + p[0])
		}
		if _, dup := m.toAPI[p[1]]; dup {
			panic("coluna duplicada: " + p[1])
		}
		m.toColumn[p[0]] = p[1]
		m.toAPI[p[1]] = p[0]
	}
	return m
}

// Column devolve a coluna do campo da API.
func (m FieldMap) Column(field string) (string, bool) {
	col, ok := m.toColumn[field]
	return col, ok
}

// Field devolve o nome da API para a coluna.
func (m FieldMap) Field(column string) (string, bool) {
	field, ok := m.toAPI[column]
	return field, ok
}

// Fields lista os nomes da API em ordem alfabética.
func (m FieldMap) Fields() []string {
	out := make([]string, 0, len(m.toColumn))
	for f := range m.toColumn {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// GoalFields cobre metas_departamentais.
var GoalFields = newFieldMap(
	[2]string{"title", "nome"},
	[2]string{"description", "descricao"},
	[2]string{"target_value", "valor_alvo"},
	[2]string{"current_value", "valor_atual"},
	[2]string{"start_date", "data_inicio"},
	[2]string{"end_date", "data_fim"},
	[2]string{"status", "status"},
	[2]string{"calculation_type", "tipo_calculo"},
	[2]string{"indicator_type", "tipo_indicador"},
	[2]string{"progress_type", "tipo_progresso"},
	[2]string{"department_id", "departamento_id"},
	[2]string{"company_id", "empresa_id"},
)

// MonthlyFields cobre metas_mensais_departamentais.
var MonthlyFields = newFieldMap(
	[2]string{"parent_goal_id", "meta_id"},
	[2]string{"start_date", "data_inicio"},
	[2]string{"end_date", "data_fim"},
	[2]string{"target_value", "valor_alvo"},
	[2]string{"achieved_value", "valor_alcancado"},
	[2]string{"status", "status"},
)

// immutableGoalFields não podem ser alterados por PUT.
var immutableGoalFields = map[string]bool{"company_id": true}

type columnDecoder func(raw json.RawMessage) (any, error)

var goalDecoders = map[string]columnDecoder{
	"nome":            decodeRequiredText,
	"descricao":       decodeText,
	"valor_alvo":      decodeNumber,
	"valor_atual":     decodeNumber,
	"data_inicio":     decodeDate,
	"data_fim":        decodeDate,
	"status":          decodeRequiredText,
	"tipo_calculo":    decodeText,
	"tipo_indicador":  decodeText,
	"tipo_progresso":  decodeText,
	"departamento_id": decodeID,
}

// Patch é uma alteração parcial já traduzida para colunas.
type Patch map[string]any

// Columns devolve as colunas em ordem estável.
func (p Patch) Columns() []string {
	cols := make([]string, 0, len(p))
	for c := range p {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// TranslatePatch converte um corpo {campo_api: valor} em colunas tipadas. Campos desconhecidos são ignorados.
func TranslatePatch(body map[string]json.RawMessage) (Patch, error) {
	patch := Patch{}
	for field, raw := range body {
		col, ok := GoalFields.Column(field)
		if !ok {
			continue
		}
		if immutableGoalFields[field] {
			return nil, util.Invalid(field + " não pode ser alterado")
		}
		value, err := goalDecoders[col](raw)
		if err != nil {
			return nil, util.Invalid(fmt.Sprintf("%s inválido", field))
		}
		patch[col] = value
	}
	return patch, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func decodeText(raw json.RawMessage) (any, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return strings.TrimSpace(s), nil
}

func decodeRequiredText(raw json.RawMessage) (any, error) {
	v, err := decodeText(raw)
	if err != nil {
		return nil, err
	}
	if v.(string) == "" {
		return nil, fmt.Errorf("vazio")
	}
	return v, nil
}

func decodeNumber(raw json.RawMessage) (any, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return f, nil
}

func decodeDate(raw json.RawMessage) (any, error) {
	if isNull(raw) {
		return nil, nil
	}
	var d Date
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d.Time, nil
}

func decodeID(raw json.RawMessage) (any, error) {
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil || id <= 0 {
		return nil, fmt.Errorf("id inválido")
	}
	return id, nil
}
