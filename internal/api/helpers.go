package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 4 << 20

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error *schema.Error `json:"error"`
}

// writeError maps err to a status code and writes it as JSON. Errors that
// are not *schema.Error become 500 STORE_ERROR responses.
func writeError(w http.ResponseWriter, err error) {
	var se *schema.Error
	if !errors.As(err, &se) {
		se = schema.NewError(schema.ErrCodeStore, err.Error())
	}
	writeJSON(w, statusFor(se.Code), errorBody{Error: se})
}

func statusFor(code string) int {
	switch code {
	case schema.ErrCodeInvalidInput, schema.ErrCodeExpression:
		return http.StatusBadRequest
	case schema.ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return schema.NewErrorf(schema.ErrCodeInvalidInput, "invalid JSON: %v", err)
	}
	return nil
}

// queryInt extracts a non-negative integer query param with a default value.
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, schema.NewError(schema.ErrCodeInvalidInput, fmt.Sprintf("%s must be a non-negative integer", key))
	}
	return n, nil
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(key))
	return b
}
