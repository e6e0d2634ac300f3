package response

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/synchub/authz"
	apperrors "github.com/jrsteele09/synchub/internal/errors"
	"github.com/rs/zerolog"
)

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteDenied answers a gate denial with 401 or 403. The body names the
// policy reason but never whether the resource exists.
func WriteDenied(w http.ResponseWriter, d authz.Decision) {
	status := d.Status()
	message := "forbidden"
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="synchub"`)
		message = "unauthorized"
	}
	WriteJSON(w, status, ErrorResponse{Error: message, Reason: string(d.Reason)})
}

// WriteServiceError maps a service error to its status. Unexpected errors
// are logged and reported as a bare 500.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case apperrors.Is(err, apperrors.ErrInvalidRequest):
		WriteError(w, http.StatusBadRequest, err.Error())
	case apperrors.Is(err, apperrors.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not found")
	case apperrors.Is(err, apperrors.ErrUnauthorized):
		WriteDenied(w, authz.Decision{Reason: authz.ReasonUnauthenticated})
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
