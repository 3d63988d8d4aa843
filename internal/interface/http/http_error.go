package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yanqian/formfiller/pkg/errors"
)

// HTTPError is rendered by errorHandlingMiddleware as {"error":{"code","message"}}.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *HTTPError) Unwrap() error { return e.Err }

// NewHTTPError builds an HTTPError.
func NewHTTPError(status int, code, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message, Err: err}
}

type domainStatus struct {
	status int
	code   string
}

// Upstream failures (form host, LLM provider) surface as 502; storage
// backends as 503.
var domainStatuses = map[string]domainStatus{
	apperrors.CodeInvalidInput: {http.StatusBadRequest, "invalid_request"},
	apperrors.CodeNotFound:     {http.StatusNotFound, "not_found"},
	apperrors.CodeFormError:    {http.StatusBadGateway, "form_error"},
	apperrors.CodeLLMError:     {http.StatusBadGateway, "llm_error"},
	apperrors.CodeSubmitError:  {http.StatusBadGateway, "submit_error"},
	apperrors.CodeStorageError: {http.StatusServiceUnavailable, "storage_error"},
}

// fromDomainError maps an autofill error to its HTTP status. Errors without
// a known code become a 500 tagged with fallbackCode.
func fromDomainError(err error, fallbackCode string) *HTTPError {
	mapped, ok := domainStatuses[apperrors.CodeOf(err)]
	if !ok {
		mapped = domainStatus{http.StatusInternalServerError, fallbackCode}
	}
	return NewHTTPError(mapped.status, mapped.code, errMessage(err), err)
}

func asHTTPError(err error) *HTTPError {
	if httpErr := (*HTTPError)(nil); errors.As(err, &httpErr) {
		return httpErr
	}
	return NewHTTPError(http.StatusInternalServerError, "internal_error", "something went wrong", err)
}

func abortWithError(c *gin.Context, err *HTTPError) {
	_ = c.Error(err)
	c.Abort()
}
