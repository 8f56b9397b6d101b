package http

import (
	"net/http"

	mw "github.com/lorrc/service-desk-realtime/internal/adapters/primary/http/middleware"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-realtime/internal/core/errors"
)

// currentActor returns the authenticated actor, writing a 401 when the
// request carries no claims.
func currentActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	claims, ok := mw.GetClaims(r.Context())
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "Not authorized",
			Code:  apperrors.CodeUnauthorized,
		})
		return domain.Actor{}, false
	}
	return claims.Actor(), true
}
