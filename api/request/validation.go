package request

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/jrsteele09/synchub/internal/errors"
)

var validate = validator.New()

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Decode reads a JSON body into v and validates it. Failures wrap
// ErrInvalidRequest.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", apperrors.ErrInvalidRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: validation error: %v", apperrors.ErrInvalidRequest, err)
	}
	return nil
}
