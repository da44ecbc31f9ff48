package controllers

import (
	"net/http"

	"github.com/angelmondragon/campus-loyalty/api/middleware"
	"github.com/angelmondragon/campus-loyalty/api/responses"
	pkgerrors "github.com/angelmondragon/campus-loyalty/pkg/errors"
	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

const maxRemarkLen = 500

// requireIdentity writes 401 and returns false when the request carries no
// authenticated caller.
func requireIdentity(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (middleware.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return middleware.Identity{}, false
	}
	return identity, true
}

func unavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger, name string) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" unavailable"))
}
