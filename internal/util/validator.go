package util

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return field.Name
			}
			return name
		})
	})
	return validate
}

// ValidateStruct aplica as tags `validate` e devolve mensagem em português com os campos.
func ValidateStruct(s any) error {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	var missing, invalid []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			missing = append(missing, fe.Field())
		default:
			invalid = append(invalid, fe.Field())
		}
	}

	var parts []string
	if len(missing) == 1 {
		parts = append(parts, "campo obrigatório: "+missing[0])
	} else if len(missing) > 1 {
		parts = append(parts, "campos obrigatórios: "+strings.Join(missing, ", "))
	}
	if len(invalid) == 1 {
		parts = append(parts, "campo inválido: "+invalid[0])
	} else if len(invalid) > 1 {
		parts = append(parts, "campos inválidos: "+strings.Join(invalid, ", "))
	}
	return Invalid(strings.Join(parts, "; "))
}

// RequireString garante string não vazia.
func RequireString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return Invalid(field + " obrigatório")
	}
	return nil
}
