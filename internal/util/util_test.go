package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	CompanyID    int64  `json:"company_id" validate:"required"`
	DepartmentID int64  `json:"department_id" validate:"required"`
	Title        string `json:"title" validate:"required"`
	Status       string `json:"status" validate:"omitempty,oneof=a b"`
}

func TestValidateStruct(t *testing.T) {
	err := ValidateStruct(sample{Title: "x", Status: "c"})
	require.Error(t, err)
	assert.Equal(t, "campos obrigatórios: company_id, department_id; campo inválido: status", err.Error())

	assert.NoError(t, ValidateStruct(sample{CompanyID: 1, DepartmentID: 2, Title: "ok", Status: "a"}))
}

func TestRandomHex(t *testing.T) {
	a, err := RandomHex(48)
	require.NoError(t, err)
	b, err := RandomHex(48)
	require.NoError(t, err)

	assert.Len(t, a, 96)
	assert.NotEqual(t, a, b)
}

func TestRequireString(t *testing.T) {
	assert.EqualError(t, RequireString("  ", "nome"), "nome obrigatório")
	assert.NoError(t, RequireString("x", "nome"))
}

func TestAsValidation(t *testing.T) {
	msg, ok := AsValidation(ValidateStruct(sample{}))
	require.True(t, ok)
	assert.Contains(t, msg, "company_id")

	_, ok = AsValidation(assert.AnError)
	assert.False(t, ok)
}
