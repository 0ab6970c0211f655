package api

import (
	"encoding/json"
	"net/http"
)

// apiError is a client-visible failure with a stable code and a hint.
type apiError struct {
	Status int    `json:"-"`
	Code   string `json:"code"`
	Hint   string `json:"hint"`
}

func (e *apiError) Error() string {
	return e.Code + ": " + e.Hint
}

func badRequest(code, hint string) *apiError {
	return &apiError{Status: http.StatusBadRequest, Code: code, Hint: hint}
}

var (
	errNotFound = &apiError{
		Status: http.StatusNotFound,
		Code:   "notFound",
		Hint:   "no resource at this path; see the API reference for available endpoints",
	}
	errMethodNotAllowed = &apiError{
		Status: http.StatusMethodNotAllowed,
		Code:   "methodNotAllowed",
		Hint:   "this resource does not support the request method",
	}
	errUnsupportedContentType = &apiError{
		Status: http.StatusUnsupportedMediaType,
		Code:   "unsupportedContentType",
		Hint:   "accepted content types are application/json and text/plain",
	}
	errNoAncestor = &apiError{
		Status: http.StatusNotFound,
		Code:   "noAncestor",
		Hint:   "there is no known block at or before this slot",
	}
)

// writeError renders an apiError (or wraps an unexpected error as a 500)
// without ever letting a handler panic escape to the client.
func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*apiError)
	if !ok {
		apiErr = &apiError{
			Status: http.StatusInternalServerError,
			Code:   "unexpectedError",
			Hint:   "something went wrong; the incident is in the server logs",
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	json.NewEncoder(w).Encode(apiErr)
}
