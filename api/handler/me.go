package handler

import (
	"net/http"
	"time"

	"github.com/jrsteele09/synchub/api/middleware"
	"github.com/jrsteele09/synchub/api/response"
	"github.com/jrsteele09/synchub/claims"
)

type MeResponse struct {
	claims.Claims
	ExpiresAt time.Time `json:"expires_at"`
}

// Me echoes the verified claims of the caller.
func Me(w http.ResponseWriter, r *http.Request) {
	c := middleware.GetClaims(r.Context())
	response.WriteJSON(w, http.StatusOK, MeResponse{Claims: c, ExpiresAt: c.ExpiresAt()})
}
