package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	validator "github.com/go-playground/validator/v10"
)

// DecodeJSON reads a JSON body into dst and validates it when v is set.
// An empty body leaves dst untouched.
func DecodeJSON(r *http.Request, dst any, v *validator.Validate) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return BadRequest("invalid JSON body", err)
	}
	if v == nil {
		return nil
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return NewAppError("VALIDATION_FAILED", "validation failed", http.StatusUnprocessableEntity, err).WithDetails(fields)
		}
		return BadRequest(fmt.Sprintf("invalid payload: %v", err), err)
	}
	return nil
}
