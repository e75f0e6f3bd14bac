package goal

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldMapsAreBijective(t *testing.T) {
	for name, m := range map[string]FieldMap{"goal": GoalFields, "monthly": MonthlyFields} {
		for _, field := range m.Fields() {
			col, ok := m.Column(field)
			require.True(t, ok, "%s: %s", name, field)
			back, ok := m.Field(col)
			require.True(t, ok, "%s: %s", name, col)
			assert.Equal(t, field, back, name)
		}
	}
}

func TestFieldMapsMatchResponseNames(t *testing.T) {
	check := func(v any, m FieldMap) {
		tags := map[string]bool{}
		typ := reflect.TypeOf(v)
		for i := 0; i < typ.NumField(); i++ {
			tags[strings.Split(typ.Field(i).Tag.Get("json"), ",")[0]] = true
		}
		for _, field := range m.Fields() {
			assert.True(t, tags[field], "%s sem campo %s", typ.Name(), field)
		}
	}
	check(Goal{}, GoalFields)
	check(MonthlyGoal{}, MonthlyFields)
}

func TestFieldMapRejectsDuplicates(t *testing.T) {
	assert.Panics(t, func() {
		newFieldMap([2]string{"a", "x"}, [2]string{"b", "x"})
	})
}

func TestTranslatePatch(t *testing.T) {
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(`{
		"title": " Faturamento ",
		"target_value": 1500.5,
		"end_date": "2024-03-31",
		"start_date": null,
		"department_id": 4,
		"desconhecido": true
	}`), &body))

	patch, err := TranslatePatch(body)
	require.NoError(t, err)
	assert.Equal(t, []string{"data_fim", "data_inicio", "departamento_id", "nome", "valor_alvo"}, patch.Columns())
	assert.Equal(t, "Faturamento", patch["nome"])
	assert.Equal(t, 1500.5, patch["valor_alvo"])
	assert.Equal(t, int64(4), patch["departamento_id"])
	assert.Nil(t, patch["data_inicio"])

	for _, raw := range []string{
		`{"company_id": 2}`,
		`{"title": ""}`,
		`{"target_value": "muito"}`,
		`{"end_date": "ontem"}`,
		`{"department_id": 0}`,
	} {
		var body map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(raw), &body))
		_, err := TranslatePatch(body)
		assert.Error(t, err, raw)
	}
}
