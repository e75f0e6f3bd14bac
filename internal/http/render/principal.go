package render

import (
	"net/http"

	"github.com/contabhub/onety/internal/access"
)

// Principal recupera o usuário autenticado ou responde 401.
func Principal(w http.ResponseWriter, r *http.Request) (access.Principal, bool) {
	p, ok := access.FromContext(r.Context())
	if !ok {
		ErrorCode(w, http.StatusUnauthorized, "AUTH", "não autenticado")
		return access.Principal{}, false
	}
	return p, true
}
