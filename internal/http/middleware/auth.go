package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/contabhub/onety/internal/access"
	"github.com/contabhub/onety/internal/auth"
	"github.com/contabhub/onety/internal/http/render"
)

// APIKeyStore resolve chaves de integração pelo prefixo público.
type APIKeyStore interface {
	FindAPIKey(ctx context.Context, prefix string) (auth.APIKeyRecord, error)
}

// Auth aceita Bearer JWT ou X-API-Key e injeta o principal no contexto.
func Auth(jwtManager *auth.JWTManager, keys APIKeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				principal access.Principal
				err       error
			)

			if apiKey := strings.TrimSpace(r.Header.Get("X-API-Key")); apiKey != "" && keys != nil {
				principal, err = principalFromAPIKey(r.Context(), keys, apiKey)
			} else {
				principal, err = principalFromBearer(jwtManager, r.Header.Get("Authorization"))
			}
			if err != nil {
				render.ErrorCode(w, http.StatusUnauthorized, "AUTH", err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(access.WithPrincipal(r.Context(), principal)))
		})
	}
}

func principalFromBearer(jwtManager *auth.JWTManager, header string) (access.Principal, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return access.Principal{}, errors.New("token ausente")
	}

	claims, err := jwtManager.ParseAndValidate(strings.TrimSpace(parts[1]))
	if err != nil {
		return access.Principal{}, errors.New("token inválido")
	}

	userID, err := claims.UserID()
	if err != nil {
		return access.Principal{}, errors.New("token inválido")
	}

	return access.Principal{ID: userID, Role: access.NormalizeRole(claims.Role), EmpresaID: claims.EmpresaID}, nil
}

func principalFromAPIKey(ctx context.Context, keys APIKeyStore, key string) (access.Principal, error) {
	prefix, secret, err := auth.SplitAPIKey(key)
	if err != nil {
		return access.Principal{}, errors.New("api key inválida")
	}

	record, err := keys.FindAPIKey(ctx, prefix)
	if err != nil || !record.Active {
		return access.Principal{}, errors.New("api key inválida")
	}

	ok, err := auth.VerifyAPIKey(secret, record.Hash)
	if err != nil || !ok {
		return access.Principal{}, errors.New("api key inválida")
	}

	return access.Principal{ID: record.UserID, Role: access.NormalizeRole(record.Role), EmpresaID: record.EmpresaID}, nil
}

// RequireRoles garante que o principal possua pelo menos um dos papéis informados.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := access.FromContext(r.Context())
			if !ok {
				render.ErrorCode(w, http.StatusUnauthorized, "AUTH", "token ausente")
				return
			}
			if !principal.HasRole(roles...) {
				render.ErrorCode(w, http.StatusForbidden, "FORBIDDEN", "acesso restrito")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
