package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/contabhub/onety/internal/access"
	"github.com/contabhub/onety/internal/auth"
)

var (
	keyUser    int64
	keyCompany int64
	keyRole    string
)

func init() {
	createKeyCmd.Flags().Int64Var(&keyUser, "user", 0, "id do usuário dono da chave")
	createKeyCmd.Flags().Int64Var(&keyCompany, "company", 0, "id da empresa")
	createKeyCmd.Flags().StringVar(&keyRole, "role", access.RoleAdmin, "papel concedido à chave")

	apikeyCmd.AddCommand(createKeyCmd)
	rootCmd.AddCommand(apikeyCmd)
}

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Chaves de API para integrações",
}

var createKeyCmd = &cobra.Command{
	Use:   "create",
	Short: "Gera uma chave <prefixo>.<segredo>; apenas o hash é gravado",
	RunE: func(cmd *cobra.Command, _ []string) error {
		role, err := validateKey(keyUser, keyCompany, keyRole)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		d, err := openDeps(ctx)
		if err != nil {
			return err
		}
		defer d.Close()

		key, prefix, hash, err := auth.GenerateAPIKey()
		if err != nil {
			return err
		}

		id, err := auth.NewKeyRepository(d.pool).CreateAPIKey(ctx, auth.APIKeyRecord{
			Prefix:    prefix,
			Hash:      hash,
			UserID:    keyUser,
			EmpresaID: keyCompany,
			Role:      role,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "id: %d\nchave: %s\n", id, key)
		fmt.Fprintln(cmd.ErrOrStderr(), "guarde a chave agora; ela não pode ser recuperada")
		return nil
	},
}

func validateKey(user, company int64, role string) (string, error) {
	if user <= 0 || company <= 0 {
		return "", errors.New("--user e --company são obrigatórios")
	}
	role = access.NormalizeRole(role)
	switch role {
	case access.RoleSuperAdmin, access.RoleAdmin, access.RoleRH, access.RoleGestor, access.RoleFuncionario:
		return role, nil
	}
	return "", fmt.Errorf("papel desconhecido: %s", role)
}
