package client

import (
	"errors"
	"fmt"
	"net/http"

	"quicktask/domain"
)

// ErrDuplicateRequest is returned when the API rejects a replayed create.
var ErrDuplicateRequest = errors.New("duplicate request")

// APIError is a non-2xx response. It unwraps to the domain error matching its
// status so callers can use errors.Is on both sides of the wire.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusNotFound:
		return domain.ErrTaskNotFound
	case http.StatusConflict:
		return ErrDuplicateRequest
	}
	return nil
}

// errorBody covers both {message} from the tasks API and {detail} from the
// analytics service.
type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (b errorBody) text() string {
	if b.Message != "" {
		return b.Message
	}
	return b.Detail
}
